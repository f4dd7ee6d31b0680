package supervisor

import "errors"

// Ошибки supervisor.
var (
	// ErrWorkerAlreadyRegistered — воркер с таким ID уже зарегистрирован.
	ErrWorkerAlreadyRegistered = errors.New("worker already registered")

	// ErrNilStatus — при регистрации не передан WorkerStatus.
	ErrNilStatus = errors.New("worker status is nil")

	// ErrEmptyWorkerID — пустой ID воркера.
	ErrEmptyWorkerID = errors.New("worker id is empty")
)
