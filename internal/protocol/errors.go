package protocol

import "errors"

// Ошибки протокола.
var (
	// ErrInvalidUTF8 — тело сообщения не является валидным UTF-8.
	ErrInvalidUTF8 = errors.New("message is not valid UTF-8")

	// ErrUnknownMessageType — неизвестный msg_type.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrInvalidTopic — строка не является топиком известного вида.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNotControlType — тип сообщения не является командой управления.
	ErrNotControlType = errors.New("message type is not a control command")
)
