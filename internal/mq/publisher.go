package mq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// Publisher публикует protocol.Message в RabbitMQ.
//
// Реализует broker.Transport (PublishData) и отправку команд (PublishControl).
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, msg protocol.Message, headers amqp.Table) error {
	publishing, err := newPublishing(msg, headers)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, string(exchange), routingKey, false, false, publishing); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"msg_id", msg.MsgID,
			"msg_type", msg.Type,
		)
		return nil
	})
}

// PublishData отправляет рыночные данные воркеру msg.WorkerID.
// Топик передаётся в заголовке HeaderTopic.
func (p *Publisher) PublishData(ctx context.Context, topic string, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return p.Publish(ctx, ExchangeData, msg.WorkerID, msg, amqp.Table{HeaderTopic: topic})
}

// PublishControl отправляет команду воркеру msg.WorkerID.
func (p *Publisher) PublishControl(ctx context.Context, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return p.Publish(ctx, ExchangeControl, protocol.ControlTopic(msg.WorkerID), msg, nil)
}

// PublishStatus публикует сообщение от имени воркера (heartbeat, status_update, error).
// Используется адаптерами воркеров и в интеграционных сценариях.
func (p *Publisher) PublishStatus(ctx context.Context, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return p.Publish(ctx, ExchangeStatus, protocol.StatusTopic(msg.WorkerID), msg, nil)
}

// newPublishing кодирует сообщение в AMQP publishing.
//
// Рыночные данные не переживают рестарт RabbitMQ (Transient),
// остальные сообщения — Persistent.
func newPublishing(msg protocol.Message, headers amqp.Table) (amqp.Publishing, error) {
	body, err := protocol.Encode(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode message: %w", err)
	}

	mode := amqp.Persistent
	if msg.Type.IsData() {
		mode = amqp.Transient
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: mode,
		MessageId:    msg.MsgID,
		Type:         string(msg.Type),
		Timestamp:    msg.Time(),
		Body:         body,
	}, nil
}
