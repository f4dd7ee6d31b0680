package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// wireMessage — представление Message на проводе.
type wireMessage struct {
	MsgType   MessageType `json:"msg_type"`
	WorkerID  *string     `json:"worker_id"`
	Payload   Payload     `json:"payload"`
	Timestamp float64     `json:"timestamp"`
	MsgID     *string     `json:"msg_id"`
}

// Encode сериализует сообщение в UTF-8 JSON.
//
// Строки с невалидным UTF-8 отклоняются с ErrInvalidUTF8: encoding/json
// заменил бы их на U+FFFD, и Decode вернул бы другое сообщение.
func Encode(m Message) ([]byte, error) {
	if !validMessageUTF8(m) {
		return nil, ErrInvalidUTF8
	}

	payload := m.Payload
	if payload == nil {
		payload = Payload{}
	}

	body, err := json.Marshal(wireMessage{
		MsgType:   m.Type,
		WorkerID:  nullable(m.WorkerID),
		Payload:   payload,
		Timestamp: m.Timestamp,
		MsgID:     nullable(m.MsgID),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}

func validMessageUTF8(m Message) bool {
	return utf8.ValidString(string(m.Type)) &&
		utf8.ValidString(m.WorkerID) &&
		utf8.ValidString(m.MsgID) &&
		validPayloadUTF8(m.Payload)
}

func validPayloadUTF8(p Payload) bool {
	for k, v := range p {
		if !utf8.ValidString(k) || !validValueUTF8(v) {
			return false
		}
	}
	return true
}

func validValueUTF8(v Value) bool {
	switch v.kind {
	case KindString:
		return utf8.ValidString(v.s)
	case KindMap:
		return validPayloadUTF8(v.m)
	case KindList:
		for _, item := range v.l {
			if !validValueUTF8(item) {
				return false
			}
		}
	}
	return true
}

// Decode разбирает сообщение, сериализованное Encode.
func Decode(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return Message{}, ErrInvalidUTF8
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}

	if !w.MsgType.IsValid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.MsgType)
	}

	m := Message{
		Type:      w.MsgType,
		Payload:   w.Payload,
		Timestamp: w.Timestamp,
	}
	if m.Payload == nil {
		m.Payload = Payload{}
	}
	if w.WorkerID != nil {
		m.WorkerID = *w.WorkerID
	}
	if w.MsgID != nil {
		m.MsgID = *w.MsgID
	}
	return m, nil
}

// MarshalJSON реализует json.Marshaler, чтобы Message можно было
// вкладывать в другие JSON-структуры (например, ответы API).
func (m Message) MarshalJSON() ([]byte, error) {
	return Encode(m)
}

// UnmarshalJSON реализует json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
