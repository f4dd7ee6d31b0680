package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrUnknownState — строка не является состоянием воркера.
	ErrUnknownState = errors.New("unknown worker state")
)
