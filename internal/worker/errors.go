package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoPublisher — не задан Publisher.
	ErrNoPublisher = errors.New("publisher is required")

	// ErrNoStrategy — не задана стратегия.
	ErrNoStrategy = errors.New("strategy is required")

	// ErrNotRunning — воркер не в состоянии RUNNING.
	ErrNotRunning = errors.New("worker is not running")

	// ErrStrategyPanic — стратегия запаниковала при обработке данных.
	ErrStrategyPanic = errors.New("strategy panicked")
)
