package domain

import (
	"fmt"
	"strings"
)

// WorkerState — состояние воркера.
//
// Жизненный цикл:
//
//	INITIALIZING → INITIALIZED → STARTING → RUNNING ⇄ PAUSED
//	                                        RUNNING → STOPPING → STOPPED
//	                                        PAUSED  → STOPPING
//	(любое состояние) → ERROR
type WorkerState string

const (
	// WorkerStateInitializing — воркер создан, загружается стратегия.
	WorkerStateInitializing WorkerState = "INITIALIZING"

	// WorkerStateInitialized — стратегия загружена, воркер готов к старту.
	WorkerStateInitialized WorkerState = "INITIALIZED"

	// WorkerStateStarting — воркер запускается.
	WorkerStateStarting WorkerState = "STARTING"

	// WorkerStateRunning — воркер работает и получает данные.
	WorkerStateRunning WorkerState = "RUNNING"

	// WorkerStatePaused — воркер приостановлен.
	WorkerStatePaused WorkerState = "PAUSED"

	// WorkerStateStopping — воркер останавливается.
	WorkerStateStopping WorkerState = "STOPPING"

	// WorkerStateStopped — воркер остановлен.
	WorkerStateStopped WorkerState = "STOPPED"

	// WorkerStateError — воркер упал.
	WorkerStateError WorkerState = "ERROR"
)

// workerTransitions — разрешённые переходы (кроме перехода в ERROR).
var workerTransitions = map[WorkerState][]WorkerState{
	WorkerStateInitializing: {WorkerStateInitialized},
	WorkerStateInitialized:  {WorkerStateStarting},
	WorkerStateStarting:     {WorkerStateRunning},
	WorkerStateRunning:      {WorkerStatePaused, WorkerStateStopping},
	WorkerStatePaused:       {WorkerStateRunning, WorkerStateStopping},
	WorkerStateStopping:     {WorkerStateStopped},
}

// WorkerStates возвращает все состояния в порядке жизненного цикла.
func WorkerStates() []WorkerState {
	return []WorkerState{
		WorkerStateInitializing,
		WorkerStateInitialized,
		WorkerStateStarting,
		WorkerStateRunning,
		WorkerStatePaused,
		WorkerStateStopping,
		WorkerStateStopped,
		WorkerStateError,
	}
}

// IsValid возвращает true для известных состояний.
func (s WorkerState) IsValid() bool {
	switch s {
	case WorkerStateInitializing, WorkerStateInitialized, WorkerStateStarting,
		WorkerStateRunning, WorkerStatePaused, WorkerStateStopping,
		WorkerStateStopped, WorkerStateError:
		return true
	default:
		return false
	}
}

// IsActive возвращает true, если воркер работает (RUNNING или PAUSED).
func (s WorkerState) IsActive() bool {
	return s == WorkerStateRunning || s == WorkerStatePaused
}

// IsTerminal возвращает true, если состояние финальное.
func (s WorkerState) IsTerminal() bool {
	return s == WorkerStateStopped || s == WorkerStateError
}

// CanTransitionTo проверяет переход s → target по таблице переходов.
// Переход в ERROR разрешён из любого состояния, кроме самого ERROR.
func (s WorkerState) CanTransitionTo(target WorkerState) bool {
	if !s.IsValid() || !target.IsValid() || s == target {
		return false
	}
	if target == WorkerStateError {
		return true
	}
	for _, next := range workerTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// String возвращает строковое представление WorkerState.
func (s WorkerState) String() string {
	return string(s)
}

// ParseWorkerState парсит строку в WorkerState (без учёта регистра).
func ParseWorkerState(s string) (WorkerState, error) {
	state := WorkerState(strings.ToUpper(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return state, nil
}

// canWorkerTransition — TransitionFunc для engine.StateMachine.
func canWorkerTransition(from, to WorkerState) bool {
	return from.CanTransitionTo(to)
}
