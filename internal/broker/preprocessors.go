package broker

import (
	"time"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// StaleFilter отбрасывает сообщения старше maxAge.
func StaleFilter(maxAge time.Duration, now func() time.Time) Preprocessor {
	if now == nil {
		now = time.Now
	}
	return func(msg protocol.Message) (*protocol.Message, error) {
		if msg.Age(now()) > maxAge {
			return nil, nil
		}
		return &msg, nil
	}
}

// SourceFilter пропускает только сообщения из перечисленных источников.
// Сообщения без source отбрасываются.
func SourceFilter(allowed ...string) Preprocessor {
	set := newStringSet(allowed...)
	return func(msg protocol.Message) (*protocol.Message, error) {
		source, ok := msg.Payload.GetString(protocol.KeySource)
		if !ok || !set.has(source) {
			return nil, nil
		}
		return &msg, nil
	}
}

// TagSource добавляет в payload ключ "host" с идентификатором хоста,
// который разослал сообщение.
func TagSource(hostID string) Preprocessor {
	return func(msg protocol.Message) (*protocol.Message, error) {
		if msg.Payload == nil {
			msg.Payload = protocol.Payload{}
		}
		msg.Payload["host"] = protocol.String(hostID)
		return &msg, nil
	}
}
