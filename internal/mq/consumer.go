package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack).
type Handler func(ctx context.Context, msg *Delivery) error

// MessageHandler обрабатывает только декодированное сообщение.
type MessageHandler func(ctx context.Context, msg protocol.Message) error

// HandleMessages адаптирует MessageHandler к Handler.
func HandleMessages(h MessageHandler) Handler {
	return func(ctx context.Context, d *Delivery) error {
		return h(ctx, d.Message)
	}
}

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — декодированное сообщение.
	Message protocol.Message

	// Topic — routing key или заголовок HeaderTopic.
	Topic string

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer потребляет сообщения из очереди RabbitMQ.
//
// Сообщение, которое не удалось декодировать, уходит в DLQ очереди.
// Ошибка обработчика возвращает сообщение в очередь, если Requeue
// включён, иначе тоже отправляет его в DLQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int
	requeue  bool

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Requeue — возвращать сообщение в очередь при ошибке обработчика.
	Requeue bool
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
		requeue:  cfg.Requeue,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setupConsume настраивает канал и начинает потребление.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (мы ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery, err := decodeDelivery(raw)
	if err != nil {
		c.logger.Error("failed to decode message",
			"queue", c.queue,
			"routing_key", raw.RoutingKey,
			"error", err,
		)
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"topic", delivery.Topic,
		"msg_id", delivery.Message.MsgID,
		"msg_type", delivery.Message.Type,
	)

	if err := c.handler(ctx, delivery); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"msg_id", delivery.Message.MsgID,
			"msg_type", delivery.Message.Type,
			"error", err,
		)
		raw.Nack(false, c.requeue)
		return
	}

	raw.Ack(false)
}

// decodeDelivery декодирует тело и определяет топик сообщения.
func decodeDelivery(raw amqp.Delivery) (*Delivery, error) {
	msg, err := protocol.Decode(raw.Body)
	if err != nil {
		return nil, err
	}

	topic := raw.RoutingKey
	if v, ok := raw.Headers[HeaderTopic].(string); ok && v != "" {
		topic = v
	}

	return &Delivery{
		Message: msg,
		Topic:   topic,
		Raw:     raw,
	}, nil
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// QueueSource возвращает функцию, которая потребляет очередь queue
// и передаёт декодированные сообщения обработчику.
// Блокируется до отмены ctx.
func QueueSource(conn *Connection, logger *slog.Logger, queue Queue, prefetch int) func(ctx context.Context, h MessageHandler) error {
	return func(ctx context.Context, h MessageHandler) error {
		c := NewConsumer(conn, logger, ConsumerConfig{
			Queue:    queue,
			Handler:  HandleMessages(h),
			Prefetch: prefetch,
		})
		return c.Start(ctx)
	}
}
