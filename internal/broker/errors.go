package broker

import "errors"

// Ошибки брокера.
var (
	// ErrNoTransport — брокер создан без Transport.
	ErrNoTransport = errors.New("transport is not configured")

	// ErrFiltered — сообщение отброшено препроцессором.
	ErrFiltered = errors.New("message filtered by preprocessor")

	// ErrEmptyPreprocessorName — препроцессор без имени.
	ErrEmptyPreprocessorName = errors.New("preprocessor name is empty")

	// ErrNilPreprocessor — препроцессор без функции.
	ErrNilPreprocessor = errors.New("preprocessor func is nil")
)
