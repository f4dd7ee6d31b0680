package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// Transport доставляет сообщение одному воркеру.
//
// topic — рыночный топик (market.<symbol>.<data_type>), msg.WorkerID — адресат.
type Transport interface {
	PublishData(ctx context.Context, topic string, msg protocol.Message) error
}

// TransportFunc — адаптер функции к Transport.
type TransportFunc func(ctx context.Context, topic string, msg protocol.Message) error

// PublishData вызывает f(ctx, topic, msg).
func (f TransportFunc) PublishData(ctx context.Context, topic string, msg protocol.Message) error {
	return f(ctx, topic, msg)
}

// Preprocessor преобразует или фильтрует сообщение перед рассылкой.
// nil без ошибки — сообщение отфильтровано.
type Preprocessor func(msg protocol.Message) (*protocol.Message, error)

type namedPreprocessor struct {
	name string
	fn   Preprocessor
}

// PublishRequest — одно сообщение для PublishBatch.
type PublishRequest struct {
	Symbol   string
	DataType string
	Data     protocol.Payload
	Source   string
}

// Stats — статистика брокера.
type Stats struct {
	TotalSubscriptions int      `json:"total_subscriptions"`
	TotalTopics        int      `json:"total_topics"`
	MessagesPublished  uint64   `json:"messages_published"`
	MessagesDropped    uint64   `json:"messages_dropped"`
	Preprocessors      []string `json:"preprocessors"`
}

// Broker маршрутизирует рыночные данные подписанным воркерам.
//
// Все методы потокобезопасны. Publish может блокироваться на Transport,
// блокировка таблицы маршрутизации на это время не удерживается.
type Broker struct {
	transport Transport

	mu            sync.RWMutex
	subscriptions map[string]*DataSubscription
	routing       map[string]stringSet // topic → worker_id

	preMu         sync.RWMutex
	preprocessors []namedPreprocessor

	published atomic.Uint64
	dropped   atomic.Uint64

	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Config — конфигурация Broker.
type Config struct {
	// Transport — доставка сообщений воркерам.
	Transport Transport

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Broker.
func New(cfg Config) *Broker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		transport:     cfg.Transport,
		subscriptions: make(map[string]*DataSubscription),
		routing:       make(map[string]stringSet),
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// --- Подписки ---

// Subscribe подписывает воркер на symbols × dataTypes.
//
// Если подписка уже есть, новые символы и типы добавляются к ней.
// Пустой dataTypes — {"kline"}. Новая подписка без символов не хранится.
func (b *Broker) Subscribe(workerID string, symbols, dataTypes []string) {
	if len(dataTypes) == 0 {
		dataTypes = []string{DefaultDataType}
	}

	b.mu.Lock()
	sub, exists := b.subscriptions[workerID]
	if !exists {
		sub = NewDataSubscription(workerID, symbols, dataTypes)
		if sub.IsEmpty() {
			b.mu.Unlock()
			b.logger.Debug("empty subscription ignored", "worker_id", workerID)
			return
		}
		b.subscriptions[workerID] = sub
	} else {
		for _, s := range symbols {
			sub.symbols[s] = struct{}{}
		}
		for _, dt := range dataTypes {
			sub.dataTypes[dt] = struct{}{}
		}
	}

	for _, topic := range sub.Topics() {
		workers, ok := b.routing[topic]
		if !ok {
			workers = newStringSet()
			b.routing[topic] = workers
		}
		workers[workerID] = struct{}{}
	}
	subs, topics := len(b.subscriptions), len(b.routing)
	b.mu.Unlock()

	b.metrics.SetRouting(subs, topics)
	b.logger.Info("worker subscribed",
		"worker_id", workerID,
		"symbols", symbols,
		"data_types", dataTypes,
	)
}

// Unsubscribe удаляет символы и типы данных из подписки воркера.
//
// nil symbols и nil dataTypes — полная отписка. Если после удаления
// подписка не даёт ни одного топика, она удаляется.
// Отписка воркера без подписки — не ошибка.
func (b *Broker) Unsubscribe(workerID string, symbols, dataTypes []string) {
	if symbols == nil && dataTypes == nil {
		b.UnsubscribeAll(workerID)
		return
	}

	b.mu.Lock()
	sub, ok := b.subscriptions[workerID]
	if !ok {
		b.mu.Unlock()
		return
	}

	before := sub.Topics()
	for _, s := range symbols {
		delete(sub.symbols, s)
	}
	for _, dt := range dataTypes {
		delete(sub.dataTypes, dt)
	}

	after := newStringSet(sub.Topics()...)
	for _, topic := range before {
		if !after.has(topic) {
			b.removeRouteLocked(topic, workerID)
		}
	}

	removed := sub.IsEmpty()
	if removed {
		delete(b.subscriptions, workerID)
	}
	subs, topics := len(b.subscriptions), len(b.routing)
	b.mu.Unlock()

	b.metrics.SetRouting(subs, topics)
	b.logger.Info("worker unsubscribed",
		"worker_id", workerID,
		"symbols", symbols,
		"data_types", dataTypes,
		"subscription_removed", removed,
	)
}

// UnsubscribeAll удаляет подписку воркера целиком.
func (b *Broker) UnsubscribeAll(workerID string) {
	b.mu.Lock()
	sub, ok := b.subscriptions[workerID]
	if !ok {
		b.mu.Unlock()
		return
	}

	for _, topic := range sub.Topics() {
		b.removeRouteLocked(topic, workerID)
	}
	delete(b.subscriptions, workerID)
	subs, topics := len(b.subscriptions), len(b.routing)
	b.mu.Unlock()

	b.metrics.SetRouting(subs, topics)
	b.logger.Info("worker unsubscribed from all topics", "worker_id", workerID)
}

// removeRouteLocked удаляет воркер из топика и пустой топик из индекса.
func (b *Broker) removeRouteLocked(topic, workerID string) {
	workers, ok := b.routing[topic]
	if !ok {
		return
	}
	delete(workers, workerID)
	if len(workers) == 0 {
		delete(b.routing, topic)
	}
}

// --- Публикация ---

// Publish рассылает рыночные данные подписчикам symbol/dataType.
//
// Сообщение проходит цепочку препроцессоров, затем Transport вызывается
// по одному разу на каждого подписчика. Возвращает false, если сообщение
// отфильтровано или доставка хотя бы одному подписчику не удалась;
// остальным подписчикам сообщение всё равно отправляется.
func (b *Broker) Publish(ctx context.Context, symbol, dataType string, data protocol.Payload, source string) bool {
	msg, err := b.process(protocol.NewMarketData(symbol, dataType, data, source))
	if err != nil {
		b.dropped.Add(1)
		b.metrics.MessageDropped(telemetry.DropReasonFiltered)
		b.logger.Debug("market data dropped",
			"symbol", symbol,
			"data_type", dataType,
			"error", err,
		)
		return false
	}

	topic := protocol.MarketDataTopic(symbol, dataType)
	subscribers := b.Subscribers(symbol, dataType)

	if len(subscribers) > 0 && b.transport == nil {
		b.dropped.Add(1)
		b.metrics.MessageDropped(telemetry.DropReasonTransport)
		b.logger.Error("publish failed", "topic", topic, "error", ErrNoTransport)
		return false
	}

	failed := 0
	for _, workerID := range subscribers {
		if err := b.transport.PublishData(ctx, topic, msg.WithWorkerID(workerID)); err != nil {
			failed++
			b.logger.Warn("publish to worker failed",
				"topic", topic,
				"worker_id", workerID,
				"error", err,
			)
		}
	}

	if failed > 0 {
		b.dropped.Add(1)
		b.metrics.MessageDropped(telemetry.DropReasonTransport)
		return false
	}

	b.published.Add(1)
	b.metrics.MessagePublished()
	return true
}

// PublishBatch публикует сообщения независимо друг от друга.
// Возвращает число успешных публикаций.
func (b *Broker) PublishBatch(ctx context.Context, reqs []PublishRequest) int {
	ok := 0
	for _, r := range reqs {
		if b.Publish(ctx, r.Symbol, r.DataType, r.Data, r.Source) {
			ok++
		}
	}
	return ok
}

// process прогоняет сообщение через препроцессоры в порядке регистрации.
// Первый nil, ошибка или паника прерывают цепочку.
func (b *Broker) process(msg protocol.Message) (protocol.Message, error) {
	b.preMu.RLock()
	chain := append([]namedPreprocessor(nil), b.preprocessors...)
	b.preMu.RUnlock()

	for _, p := range chain {
		next, err := b.runPreprocessor(p, msg)
		if err != nil {
			b.metrics.PreprocessorError(p.name)
			b.logger.Warn("preprocessor failed",
				"preprocessor", p.name,
				"msg_id", msg.MsgID,
				"error", err,
			)
			return protocol.Message{}, fmt.Errorf("preprocessor %s: %w", p.name, err)
		}
		if next == nil {
			return protocol.Message{}, fmt.Errorf("preprocessor %s: %w", p.name, ErrFiltered)
		}
		msg = *next
	}
	return msg, nil
}

// runPreprocessor вызывает препроцессор, превращая панику в ошибку.
func (b *Broker) runPreprocessor(p namedPreprocessor, msg protocol.Message) (out *protocol.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.fn(msg.Clone())
}

// --- Препроцессоры ---

// RegisterPreprocessor добавляет препроцессор в конец цепочки.
// Повторная регистрация имени заменяет функцию на её прежнем месте.
func (b *Broker) RegisterPreprocessor(name string, fn Preprocessor) error {
	if name == "" {
		return ErrEmptyPreprocessorName
	}
	if fn == nil {
		return ErrNilPreprocessor
	}

	b.preMu.Lock()
	defer b.preMu.Unlock()

	for i, p := range b.preprocessors {
		if p.name == name {
			b.preprocessors[i].fn = fn
			return nil
		}
	}
	b.preprocessors = append(b.preprocessors, namedPreprocessor{name: name, fn: fn})
	b.logger.Info("preprocessor registered", "preprocessor", name)
	return nil
}

// UnregisterPreprocessor удаляет препроцессор.
// Возвращает false, если препроцессор не был зарегистрирован.
func (b *Broker) UnregisterPreprocessor(name string) bool {
	b.preMu.Lock()
	defer b.preMu.Unlock()

	for i, p := range b.preprocessors {
		if p.name == name {
			b.preprocessors = append(b.preprocessors[:i:i], b.preprocessors[i+1:]...)
			b.logger.Info("preprocessor unregistered", "preprocessor", name)
			return true
		}
	}
	return false
}

// Preprocessors возвращает имена препроцессоров в порядке вызова.
func (b *Broker) Preprocessors() []string {
	b.preMu.RLock()
	defer b.preMu.RUnlock()

	names := make([]string, len(b.preprocessors))
	for i, p := range b.preprocessors {
		names[i] = p.name
	}
	return names
}

// --- Чтение ---

// Subscribers возвращает отсортированный список подписчиков symbol/dataType.
func (b *Broker) Subscribers(symbol, dataType string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	workers, ok := b.routing[protocol.MarketDataTopic(symbol, dataType)]
	if !ok {
		return nil
	}
	return workers.sorted()
}

// TopicStats возвращает число подписчиков по топикам.
func (b *Broker) TopicStats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := make(map[string]int, len(b.routing))
	for topic, workers := range b.routing {
		stats[topic] = len(workers)
	}
	return stats
}

// Stats возвращает статистику брокера.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	subs, topics := len(b.subscriptions), len(b.routing)
	b.mu.RUnlock()

	return Stats{
		TotalSubscriptions: subs,
		TotalTopics:        topics,
		MessagesPublished:  b.published.Load(),
		MessagesDropped:    b.dropped.Load(),
		Preprocessors:      b.Preprocessors(),
	}
}

// IsSubscribed проверяет подписку воркера на symbol/dataType.
func (b *Broker) IsSubscribed(workerID, symbol, dataType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subscriptions[workerID]
	return ok && sub.Matches(symbol, dataType)
}

// Subscription возвращает копию подписки воркера.
func (b *Broker) Subscription(workerID string) (*DataSubscription, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subscriptions[workerID]
	if !ok {
		return nil, false
	}
	return sub.clone(), true
}

// WorkerSymbols возвращает отсортированные символы подписки воркера.
func (b *Broker) WorkerSymbols(workerID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subscriptions[workerID]
	if !ok {
		return nil
	}
	return sub.Symbols()
}

// SymbolWorkers возвращает воркеры, подписанные на symbol с любым типом данных.
func (b *Broker) SymbolWorkers(symbol string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var workers []string
	for id, sub := range b.subscriptions {
		if sub.symbols.has(symbol) {
			workers = append(workers, id)
		}
	}
	sort.Strings(workers)
	return workers
}
