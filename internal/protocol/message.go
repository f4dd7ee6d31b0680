package protocol

import (
	"math"
	"time"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	// Рыночные данные.
	MessageTypeMarketData MessageType = "market_data"
	MessageTypeTickData   MessageType = "tick_data"
	MessageTypeBarData    MessageType = "bar_data"

	// Команды управления воркером.
	MessageTypeStart  MessageType = "start"
	MessageTypeStop   MessageType = "stop"
	MessageTypePause  MessageType = "pause"
	MessageTypeResume MessageType = "resume"

	// Служебные сообщения от воркера.
	MessageTypeHeartbeat    MessageType = "heartbeat"
	MessageTypeStatusUpdate MessageType = "status_update"
	MessageTypeError        MessageType = "error"

	// Ордера.
	MessageTypeOrderRequest  MessageType = "order_request"
	MessageTypeOrderResponse MessageType = "order_response"
)

// MessageTypes возвращает все известные типы сообщений.
func MessageTypes() []MessageType {
	return []MessageType{
		MessageTypeMarketData, MessageTypeTickData, MessageTypeBarData,
		MessageTypeStart, MessageTypeStop, MessageTypePause, MessageTypeResume,
		MessageTypeHeartbeat, MessageTypeStatusUpdate, MessageTypeError,
		MessageTypeOrderRequest, MessageTypeOrderResponse,
	}
}

// IsValid возвращает true для известных типов.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeMarketData, MessageTypeTickData, MessageTypeBarData,
		MessageTypeStart, MessageTypeStop, MessageTypePause, MessageTypeResume,
		MessageTypeHeartbeat, MessageTypeStatusUpdate, MessageTypeError,
		MessageTypeOrderRequest, MessageTypeOrderResponse:
		return true
	default:
		return false
	}
}

// IsControl возвращает true для команд управления воркером.
func (t MessageType) IsControl() bool {
	switch t {
	case MessageTypeStart, MessageTypeStop, MessageTypePause, MessageTypeResume:
		return true
	default:
		return false
	}
}

// IsData возвращает true для рыночных данных.
func (t MessageType) IsData() bool {
	switch t {
	case MessageTypeMarketData, MessageTypeTickData, MessageTypeBarData:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление MessageType.
func (t MessageType) String() string {
	return string(t)
}

// Message — конверт для всего трафика между процессами.
//
// После создания сообщение не изменяется: препроцессоры и транспорты
// работают с копиями (см. Clone).
//
// Пустые WorkerID и MsgID кодируются как null.
type Message struct {
	// Type — тип сообщения.
	Type MessageType

	// WorkerID — адресат или отправитель. Пустая строка — не указан.
	WorkerID string

	// Payload — полезная нагрузка.
	Payload Payload

	// Timestamp — время создания, секунды с начала эпохи.
	Timestamp float64

	// MsgID — непрозрачный идентификатор сообщения. Пустая строка — не указан.
	MsgID string
}

// New создаёт сообщение с текущим временем и пустым MsgID.
func New(msgType MessageType, workerID string, payload Payload) Message {
	if payload == nil {
		payload = Payload{}
	}
	return Message{
		Type:      msgType,
		WorkerID:  workerID,
		Payload:   payload,
		Timestamp: EpochSeconds(time.Now()),
	}
}

// Time возвращает Timestamp как time.Time.
func (m Message) Time() time.Time {
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Age возвращает возраст сообщения относительно now.
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Time())
}

// Clone возвращает глубокую копию сообщения.
func (m Message) Clone() Message {
	m.Payload = m.Payload.Clone()
	return m
}

// WithWorkerID возвращает копию сообщения с другим адресатом.
func (m Message) WithWorkerID(workerID string) Message {
	c := m.Clone()
	c.WorkerID = workerID
	return c
}

// Equal сравнивает сообщения поле за полем.
// nil и пустой Payload считаются равными.
func (m Message) Equal(o Message) bool {
	return m.Type == o.Type &&
		m.WorkerID == o.WorkerID &&
		m.Timestamp == o.Timestamp &&
		m.MsgID == o.MsgID &&
		m.Payload.Equal(o.Payload)
}

// EpochSeconds переводит время в секунды с начала эпохи.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
