package broker

import (
	"sort"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// DefaultDataType — тип данных подписки по умолчанию.
const DefaultDataType = "kline"

// stringSet — множество строк.
type stringSet map[string]struct{}

func newStringSet(items ...string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s stringSet) has(item string) bool {
	_, ok := s[item]
	return ok
}

// sorted возвращает элементы в порядке возрастания.
func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// DataSubscription — интерес воркера: символы × типы данных.
type DataSubscription struct {
	WorkerID  string
	symbols   stringSet
	dataTypes stringSet
}

// NewDataSubscription создаёт подписку. Пустой dataTypes — {"kline"}.
func NewDataSubscription(workerID string, symbols, dataTypes []string) *DataSubscription {
	if len(dataTypes) == 0 {
		dataTypes = []string{DefaultDataType}
	}
	return &DataSubscription{
		WorkerID:  workerID,
		symbols:   newStringSet(symbols...),
		dataTypes: newStringSet(dataTypes...),
	}
}

// Symbols возвращает отсортированный список символов.
func (s *DataSubscription) Symbols() []string {
	return s.symbols.sorted()
}

// DataTypes возвращает отсортированный список типов данных.
func (s *DataSubscription) DataTypes() []string {
	return s.dataTypes.sorted()
}

// Topics возвращает топики подписки: декартово произведение symbols × data_types.
func (s *DataSubscription) Topics() []string {
	symbols := s.Symbols()
	types := s.DataTypes()

	topics := make([]string, 0, len(symbols)*len(types))
	for _, sym := range symbols {
		for _, dt := range types {
			topics = append(topics, protocol.MarketDataTopic(sym, dt))
		}
	}
	return topics
}

// Matches проверяет, покрывает ли подписка пару symbol/dataType.
func (s *DataSubscription) Matches(symbol, dataType string) bool {
	return s.symbols.has(symbol) && s.dataTypes.has(dataType)
}

// IsEmpty возвращает true, если подписка не даёт ни одного топика.
func (s *DataSubscription) IsEmpty() bool {
	return len(s.symbols) == 0 || len(s.dataTypes) == 0
}

// clone возвращает независимую копию.
func (s *DataSubscription) clone() *DataSubscription {
	return &DataSubscription{
		WorkerID:  s.WorkerID,
		symbols:   newStringSet(s.Symbols()...),
		dataTypes: newStringSet(s.DataTypes()...),
	}
}
