package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// DefaultRedisPrefix — префикс каналов Redis по умолчанию.
const DefaultRedisPrefix = "stratvisor:"

// RedisTransport — транспорт через Redis Pub/Sub.
//
// Каналы (с префиксом):
//
//	<prefix>data.<worker_id>      рыночные данные воркеру
//	<prefix>control.<worker_id>   команды воркеру
//	<prefix>status.<worker_id>    сообщения от воркера
//	<prefix>market.<symbol>.<dt>  рыночные данные от адаптеров бирж
//
// Pub/Sub не хранит сообщения: воркер, не подписанный в момент
// публикации, их не получит.
type RedisTransport struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisTransport создаёт транспорт поверх готового клиента.
// Пустой prefix — DefaultRedisPrefix.
func NewRedisTransport(client *redis.Client, prefix string, logger *slog.Logger) *RedisTransport {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTransport{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis"),
	}
}

// DialRedis создаёт клиента по redis:// URL и проверяет соединение.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// DataChannel возвращает канал данных воркера.
func (t *RedisTransport) DataChannel(workerID string) string {
	return t.prefix + "data." + workerID
}

// ControlChannel возвращает канал команд воркера.
func (t *RedisTransport) ControlChannel(workerID string) string {
	return t.prefix + protocol.ControlTopic(workerID)
}

// PublishData отправляет рыночные данные воркеру msg.WorkerID.
func (t *RedisTransport) PublishData(ctx context.Context, _ string, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return t.publish(ctx, t.DataChannel(msg.WorkerID), msg)
}

// PublishControl отправляет команду воркеру msg.WorkerID.
func (t *RedisTransport) PublishControl(ctx context.Context, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return t.publish(ctx, t.ControlChannel(msg.WorkerID), msg)
}

func (t *RedisTransport) publish(ctx context.Context, channel string, msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	receivers, err := t.client.Publish(ctx, channel, body).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	t.logger.Debug("published message",
		"channel", channel,
		"msg_id", msg.MsgID,
		"msg_type", msg.Type,
		"receivers", receivers,
	)
	return nil
}

// PublishStatus публикует сообщение от имени воркера msg.WorkerID.
func (t *RedisTransport) PublishStatus(ctx context.Context, msg protocol.Message) error {
	if msg.WorkerID == "" {
		return ErrNoRecipient
	}
	return t.publish(ctx, t.prefix+protocol.StatusTopic(msg.WorkerID), msg)
}

// Consume подписывается на сообщения воркеров и адаптеров бирж
// и передаёт их обработчику. Блокируется до отмены ctx.
//
// Сообщения, которые не удалось декодировать, пропускаются.
func (t *RedisTransport) Consume(ctx context.Context, handler MessageHandler) error {
	pubsub := t.client.PSubscribe(ctx, t.inboundPatterns()...)
	return t.receive(ctx, pubsub, handler)
}

// ConsumeWorker подписывается на каналы данных и команд воркера.
// Блокируется до отмены ctx.
func (t *RedisTransport) ConsumeWorker(ctx context.Context, workerID string, handler MessageHandler) error {
	pubsub := t.client.Subscribe(ctx, t.DataChannel(workerID), t.ControlChannel(workerID))
	return t.receive(ctx, pubsub, handler)
}

func (t *RedisTransport) receive(ctx context.Context, pubsub *redis.PubSub, handler MessageHandler) error {
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	t.logger.Info("consumer started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m, ok := <-ch:
			if !ok {
				return errDeliveriesClosed
			}

			msg, err := protocol.Decode([]byte(m.Payload))
			if err != nil {
				t.logger.Error("failed to decode message", "channel", m.Channel, "error", err)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				t.logger.Error("handler failed",
					"channel", m.Channel,
					"msg_id", msg.MsgID,
					"msg_type", msg.Type,
					"error", err,
				)
			}
		}
	}
}

// inboundPatterns — шаблоны входящих каналов.
func (t *RedisTransport) inboundPatterns() []string {
	return []string{
		t.prefix + protocol.StatusTopic("*"),
		t.prefix + "market.*",
	}
}

// Close закрывает клиента Redis.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
