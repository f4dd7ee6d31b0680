package domain

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/stratvisor/internal/engine"
)

// DefaultHeartbeatTimeout — таймаут heartbeat по умолчанию для IsHealthy.
const DefaultHeartbeatTimeout = 30 * time.Second

// WorkerStatus — запись о здоровье и метаданных одного воркера.
//
// WorkerStatus создаётся при регистрации воркера в Supervisor
// и принадлежит ему. Состояние ведёт собственный StateMachine
// (начальное состояние INITIALIZING).
//
// Потокобезопасен.
type WorkerStatus struct {
	// WorkerID — идентификатор воркера.
	WorkerID string

	// StrategyPath — путь к стратегии, которую исполняет воркер.
	StrategyPath string

	// Symbols — торговые пары стратегии.
	Symbols []string

	machine *engine.StateMachine[WorkerState]

	mu            sync.RWMutex
	pid           int
	createdAt     time.Time
	startedAt     time.Time
	lastHeartbeat time.Time
	errorsCount   int
	lastError     string
	lastErrorTime time.Time

	now func() time.Time
}

// StatusOption настраивает WorkerStatus.
type StatusOption func(*statusOptions)

type statusOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) StatusOption {
	return func(o *statusOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger задаёт логгер для паник обработчиков переходов.
func WithLogger(logger *slog.Logger) StatusOption {
	return func(o *statusOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewWorkerStatus создаёт WorkerStatus в состоянии INITIALIZING.
func NewWorkerStatus(workerID, strategyPath string, symbols []string, opts ...StatusOption) *WorkerStatus {
	o := statusOptions{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	w := &WorkerStatus{
		WorkerID:     workerID,
		StrategyPath: strategyPath,
		Symbols:      append([]string(nil), symbols...),
		createdAt:    o.now(),
		now:          o.now,
	}
	w.machine = engine.NewStateMachine(WorkerStateInitializing, canWorkerTransition,
		engine.WithClock[WorkerState](o.now),
		engine.WithLogger[WorkerState](o.logger),
	)

	// started_at фиксируется при первом входе в RUNNING
	w.machine.OnEnter(WorkerStateRunning, func(_, _ WorkerState) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.startedAt.IsZero() {
			w.startedAt = w.now()
		}
	})

	return w
}

// State возвращает текущее состояние.
func (w *WorkerStatus) State() WorkerState {
	return w.machine.State()
}

// UpdateState переводит воркер в новое состояние.
// Возвращает false, если переход не разрешён.
func (w *WorkerStatus) UpdateState(state WorkerState) bool {
	return w.machine.TransitionTo(state)
}

// CanTransitionTo проверяет переход без изменения состояния.
func (w *WorkerStatus) CanTransitionTo(state WorkerState) bool {
	return w.machine.CanTransitionTo(state)
}

// OnStateEnter регистрирует обработчик входа в состояние.
func (w *WorkerStatus) OnStateEnter(state WorkerState, h engine.TransitionHandler[WorkerState]) {
	w.machine.OnEnter(state, h)
}

// History возвращает историю состояний.
func (w *WorkerStatus) History() []engine.Transition[WorkerState] {
	return w.machine.History()
}

// UpdateHeartbeat отмечает heartbeat. Идемпотентен.
func (w *WorkerStatus) UpdateHeartbeat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastHeartbeat = w.now()
}

// RecordError увеличивает счётчик ошибок и запоминает последнюю ошибку.
// Предыдущие ошибки не сохраняются.
func (w *WorkerStatus) RecordError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorsCount++
	w.lastError = msg
	w.lastErrorTime = w.now()
}

// SetPID запоминает PID процесса воркера.
func (w *WorkerStatus) SetPID(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pid = pid
}

// PID возвращает PID процесса воркера (0, если неизвестен).
func (w *WorkerStatus) PID() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pid
}

// LastHeartbeat возвращает время последнего heartbeat.
// false, если heartbeat ещё не было.
func (w *WorkerStatus) LastHeartbeat() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastHeartbeat, !w.lastHeartbeat.IsZero()
}

// StartedAt возвращает время первого входа в RUNNING.
func (w *WorkerStatus) StartedAt() (time.Time, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.startedAt, !w.startedAt.IsZero()
}

// ErrorsCount возвращает количество зарегистрированных ошибок.
func (w *WorkerStatus) ErrorsCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.errorsCount
}

// LastError возвращает последнюю ошибку и время её регистрации.
func (w *WorkerStatus) LastError() (string, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError, w.lastErrorTime
}

// IsHealthy возвращает true, если воркер в RUNNING, heartbeat был
// и с последнего heartbeat прошло меньше timeout.
func (w *WorkerStatus) IsHealthy(timeout time.Duration) bool {
	if w.State() != WorkerStateRunning {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.lastHeartbeat.IsZero() {
		return false
	}
	return w.now().Sub(w.lastHeartbeat) < timeout
}

// WorkerSnapshot — плоский снимок WorkerStatus для отчётов.
type WorkerSnapshot struct {
	WorkerID      string      `json:"worker_id"`
	StrategyPath  string      `json:"strategy_path"`
	Symbols       []string    `json:"symbols"`
	State         WorkerState `json:"state"`
	PID           int         `json:"pid,omitempty"`
	CreatedAt     string      `json:"created_at"`
	StartedAt     string      `json:"started_at,omitempty"`
	LastHeartbeat string      `json:"last_heartbeat,omitempty"`
	ErrorsCount   int         `json:"errors_count"`
	LastError     string      `json:"last_error,omitempty"`
	LastErrorTime string      `json:"last_error_time,omitempty"`
	IsHealthy     bool        `json:"is_healthy"`
}

// Snapshot возвращает снимок для внешней отчётности.
// IsHealthy считается по heartbeatTimeout (как IsHealthy).
// Время — RFC 3339, незаполненные времена — пустые строки.
func (w *WorkerStatus) Snapshot(heartbeatTimeout time.Duration) WorkerSnapshot {
	state := w.State()
	healthy := w.IsHealthy(heartbeatTimeout)

	w.mu.RLock()
	defer w.mu.RUnlock()

	symbols := append([]string{}, w.Symbols...)

	return WorkerSnapshot{
		WorkerID:      w.WorkerID,
		StrategyPath:  w.StrategyPath,
		Symbols:       symbols,
		State:         state,
		PID:           w.pid,
		CreatedAt:     formatTime(w.createdAt),
		StartedAt:     formatTime(w.startedAt),
		LastHeartbeat: formatTime(w.lastHeartbeat),
		ErrorsCount:   w.errorsCount,
		LastError:     w.lastError,
		LastErrorTime: formatTime(w.lastErrorTime),
		IsHealthy:     healthy,
	}
}

// formatTime форматирует время в RFC 3339 (UTC). Нулевое время — пустая строка.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
