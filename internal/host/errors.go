package host

import "errors"

// Ошибки host.
var (
	// ErrUnknownWorker — воркер не зарегистрирован.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNoControlSender — не задан транспорт для команд.
	ErrNoControlSender = errors.New("no control sender configured")

	// ErrInvalidPayload — в payload нет обязательного поля.
	ErrInvalidPayload = errors.New("invalid payload")
)
