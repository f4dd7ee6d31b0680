package mq

import "errors"

// Ошибки транспорта.
var (
	// ErrNoChannel — AMQP канал недоступен (нет соединения).
	ErrNoChannel = errors.New("no channel available")

	// ErrNoRecipient — у сообщения нет адресата.
	ErrNoRecipient = errors.New("message has no worker_id")
)
