package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// Exchanges — имена обменников.
const (
	// ExchangeData — рыночные данные воркерам (direct, routing key = worker_id).
	ExchangeData Exchange = "stratvisor.data"

	// ExchangeControl — команды воркерам (topic, control.<worker_id>).
	ExchangeControl Exchange = "stratvisor.control"

	// ExchangeStatus — сообщения от воркеров (topic, status.<worker_id>).
	ExchangeStatus Exchange = "stratvisor.status"

	// ExchangeFeed — рыночные данные от адаптеров бирж (topic, market.<symbol>.<data_type>).
	ExchangeFeed Exchange = "stratvisor.feed"

	// ExchangeDLQ — сообщения, которые не удалось разобрать.
	ExchangeDLQ Exchange = "stratvisor.dlq"
)

// Queues — имена очередей host.
const (
	QueueInbound Queue = "host.inbound"
	QueueFeed    Queue = "host.feed"
	QueueDLQ     Queue = "dlq.inbound"
)

// Шаблоны привязок.
const (
	bindingStatusAll = "status.#"
	bindingMarketAll = "market.#"
	routingKeyDLQ    = "inbound"
)

// HeaderTopic — заголовок с исходным топиком сообщения.
const HeaderTopic = "topic"

// SetupTopology объявляет обменники и очереди host.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeData, amqp.ExchangeDirect},
		{ExchangeControl, amqp.ExchangeTopic},
		{ExchangeStatus, amqp.ExchangeTopic},
		{ExchangeFeed, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": routingKeyDLQ,
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// host.inbound — heartbeat, status_update, error, order_request от воркеров
		{QueueInbound, dlqArgs},

		// host.feed — рыночные данные; старые данные бесполезны, без DLQ
		{QueueFeed, amqp.Table{"x-message-ttl": int32(60_000)}},

		{QueueDLQ, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	for _, b := range hostBindings() {
		if err := ch.QueueBind(string(b.queue), b.key, string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

type binding struct {
	queue    Queue
	key      string
	exchange Exchange
}

func hostBindings() []binding {
	return []binding{
		{QueueInbound, bindingStatusAll, ExchangeStatus},
		{QueueFeed, bindingMarketAll, ExchangeFeed},
		{QueueDLQ, routingKeyDLQ, ExchangeDLQ},
	}
}

// WorkerQueue возвращает имя очереди воркера.
func WorkerQueue(workerID string) Queue {
	return Queue("worker." + workerID)
}

// workerBindings — привязки очереди воркера: данные и команды.
func workerBindings(workerID string) []binding {
	q := WorkerQueue(workerID)
	return []binding{
		{q, workerID, ExchangeData},
		{q, protocol.ControlTopic(workerID), ExchangeControl},
	}
}

// DeclareWorkerQueue объявляет очередь воркера и привязывает её
// к обменникам данных и команд.
func DeclareWorkerQueue(ctx context.Context, conn *Connection, workerID string) error {
	if workerID == "" {
		return ErrNoRecipient
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q := WorkerQueue(workerID)
		if _, err := ch.QueueDeclare(string(q), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		for _, b := range workerBindings(workerID) {
			if err := ch.QueueBind(string(b.queue), b.key, string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  stratvisor RabbitMQ topology:

    stratvisor.status (topic)
    └── host.inbound [status.#]            DLQ: dlq.inbound
    stratvisor.feed (topic)
    └── host.feed [market.#]               TTL 60s
    stratvisor.data (direct)
    └── worker.<id> [<id>]                 header topic = market.<symbol>.<data_type>
    stratvisor.control (topic)
    └── worker.<id> [control.<id>]
    stratvisor.dlq (direct)
    └── dlq.inbound [inbound]
`
}
