package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TransitionFunc — таблица переходов: разрешён ли переход from → to.
type TransitionFunc[S comparable] func(from, to S) bool

// TransitionHandler вызывается после успешного перехода в состояние,
// для которого он зарегистрирован.
type TransitionHandler[S comparable] func(from, to S)

// Transition — запись истории: состояние и момент входа в него.
type Transition[S comparable] struct {
	State S
	At    time.Time
}

// StateMachine — конечный автомат с таблицей переходов и историей.
//
// Недопустимый переход — нормальная ситуация: TransitionTo возвращает false,
// состояние и история не меняются. Вызывающие часто "пробуют" переход,
// чтобы узнать, что сейчас разрешено.
//
// Обработчики вызываются синхронно, в порядке регистрации, после фиксации
// перехода и вне блокировки. Паника обработчика перехватывается и не мешает
// остальным обработчикам.
type StateMachine[S comparable] struct {
	mu       sync.RWMutex
	current  S
	allowed  TransitionFunc[S]
	history  []Transition[S]
	handlers map[S][]TransitionHandler[S]

	logger *slog.Logger
	now    func() time.Time
}

// Option настраивает StateMachine.
type Option[S comparable] func(*StateMachine[S])

// WithLogger задаёт логгер для паник обработчиков.
func WithLogger[S comparable](logger *slog.Logger) Option[S] {
	return func(m *StateMachine[S]) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock задаёт источник времени для истории.
func WithClock[S comparable](now func() time.Time) Option[S] {
	return func(m *StateMachine[S]) {
		if now != nil {
			m.now = now
		}
	}
}

// NewStateMachine создаёт автомат в начальном состоянии initial.
// История начинается с одной записи для initial.
func NewStateMachine[S comparable](initial S, allowed TransitionFunc[S], opts ...Option[S]) *StateMachine[S] {
	m := &StateMachine[S]{
		current:  initial,
		allowed:  allowed,
		handlers: make(map[S][]TransitionHandler[S]),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.history = []Transition[S]{{State: initial, At: m.now()}}
	return m
}

// State возвращает текущее состояние.
func (m *StateMachine[S]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanTransitionTo проверяет, разрешён ли переход из текущего состояния.
// Не меняет состояние.
func (m *StateMachine[S]) CanTransitionTo(target S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canTransition(m.current, target)
}

func (m *StateMachine[S]) canTransition(from, to S) bool {
	if m.allowed == nil {
		return false
	}
	return m.allowed(from, to)
}

// TransitionTo выполняет переход в target.
// Возвращает false, если переход не разрешён таблицей.
func (m *StateMachine[S]) TransitionTo(target S) bool {
	m.mu.Lock()
	from := m.current
	if !m.canTransition(from, target) {
		m.mu.Unlock()
		return false
	}

	m.current = target
	m.history = append(m.history, Transition[S]{State: target, At: m.now()})

	// Копия, чтобы регистрация во время вызова не влияла на текущий переход
	handlers := append([]TransitionHandler[S](nil), m.handlers[target]...)
	m.mu.Unlock()

	for i, h := range handlers {
		m.invoke(i, h, from, target)
	}
	return true
}

// invoke вызывает обработчик с перехватом паники.
func (m *StateMachine[S]) invoke(idx int, h TransitionHandler[S], from, to S) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("transition handler panicked",
				"handler", idx,
				"from", fmt.Sprint(from),
				"to", fmt.Sprint(to),
				"panic", r,
			)
		}
	}()
	h(from, to)
}

// OnEnter регистрирует обработчик перехода в состояние target.
func (m *StateMachine[S]) OnEnter(target S, h TransitionHandler[S]) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[target] = append(m.handlers[target], h)
}

// History возвращает копию истории переходов в порядке их выполнения.
func (m *StateMachine[S]) History() []Transition[S] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition[S], len(m.history))
	copy(out, m.history)
	return out
}
