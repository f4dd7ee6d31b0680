package protocol

import (
	"fmt"
	"strings"
)

// Префиксы топиков.
const (
	TopicPrefixMarket  = "market"
	TopicPrefixControl = "control"
	TopicPrefixStatus  = "status"
)

// MarketDataTopic возвращает топик рыночных данных: market.<symbol>.<data_type>.
//
// Символ подставляется как есть: "BTC/USDT" и "BTC-PERP" допустимы.
func MarketDataTopic(symbol, dataType string) string {
	return TopicPrefixMarket + "." + symbol + "." + dataType
}

// ControlTopic возвращает топик команд воркеру: control.<worker_id>.
func ControlTopic(workerID string) string {
	return TopicPrefixControl + "." + workerID
}

// StatusTopic возвращает топик статусов воркера: status.<worker_id>.
func StatusTopic(workerID string) string {
	return TopicPrefixStatus + "." + workerID
}

// Topic — разобранный топик.
type Topic struct {
	Prefix   string
	Symbol   string // только для market
	DataType string // только для market
	WorkerID string // только для control/status
}

// String собирает топик обратно.
func (t Topic) String() string {
	switch t.Prefix {
	case TopicPrefixMarket:
		return MarketDataTopic(t.Symbol, t.DataType)
	case TopicPrefixControl:
		return ControlTopic(t.WorkerID)
	case TopicPrefixStatus:
		return StatusTopic(t.WorkerID)
	default:
		return ""
	}
}

// ParseTopic разбирает строку топика.
//
// Для market-топиков тип данных — часть после последней точки,
// поэтому символ может содержать точки.
func ParseTopic(s string) (Topic, error) {
	prefix, rest, ok := strings.Cut(s, ".")
	if !ok || rest == "" {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}

	switch prefix {
	case TopicPrefixMarket:
		i := strings.LastIndex(rest, ".")
		if i <= 0 || i == len(rest)-1 {
			return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
		}
		return Topic{Prefix: prefix, Symbol: rest[:i], DataType: rest[i+1:]}, nil
	case TopicPrefixControl, TopicPrefixStatus:
		return Topic{Prefix: prefix, WorkerID: rest}, nil
	default:
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
	}
}
