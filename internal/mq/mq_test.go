package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/stratvisor/internal/protocol"
)

// --- Publishing Tests ---

func TestNewPublishing(t *testing.T) {
	msg := protocol.NewMarketData("BTC/USDT", "kline", protocol.Payload{"close": protocol.Number(1)}, "binance")
	msg = msg.WithWorkerID("w1")

	pub, err := newPublishing(msg, amqp.Table{HeaderTopic: "market.BTC/USDT.kline"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.DeliveryMode != amqp.Transient {
		t.Errorf("market data should be transient, got %d", pub.DeliveryMode)
	}
	if pub.MessageId != msg.MsgID {
		t.Errorf("expected message id %s, got %s", msg.MsgID, pub.MessageId)
	}
	if pub.Type != "market_data" {
		t.Errorf("expected type market_data, got %s", pub.Type)
	}

	decoded, err := protocol.Decode(pub.Body)
	if err != nil {
		t.Fatalf("body should decode: %v", err)
	}
	if !decoded.Equal(msg) {
		t.Errorf("round trip mismatch: %+v vs %+v", decoded, msg)
	}
}

func TestNewPublishing_ControlIsPersistent(t *testing.T) {
	msg, err := protocol.NewControl(protocol.MessageTypeStop, "w1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub, err := newPublishing(msg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.DeliveryMode != amqp.Persistent {
		t.Errorf("control should be persistent, got %d", pub.DeliveryMode)
	}
}

func TestPublisher_RequiresRecipient(t *testing.T) {
	p := NewPublisher(nil, nil)
	msg := protocol.NewMarketData("BTC/USDT", "kline", nil, "test")
	ctx := context.Background()

	if err := p.PublishData(ctx, "market.BTC/USDT.kline", msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("PublishData: expected ErrNoRecipient, got %v", err)
	}
	if err := p.PublishControl(ctx, msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("PublishControl: expected ErrNoRecipient, got %v", err)
	}
	if err := p.PublishStatus(ctx, msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("PublishStatus: expected ErrNoRecipient, got %v", err)
	}
}

// --- Delivery Tests ---

func TestDecodeDelivery(t *testing.T) {
	msg := protocol.NewHeartbeat("w1", protocol.Payload{"uptime": protocol.Int(60)})
	body, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	t.Run("topic from routing key", func(t *testing.T) {
		d, err := decodeDelivery(amqp.Delivery{RoutingKey: "status.w1", Body: body})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Topic != "status.w1" {
			t.Errorf("expected topic status.w1, got %s", d.Topic)
		}
		if !d.Message.Equal(msg) {
			t.Errorf("message mismatch")
		}
	})

	t.Run("topic from header", func(t *testing.T) {
		d, err := decodeDelivery(amqp.Delivery{
			RoutingKey: "w1",
			Headers:    amqp.Table{HeaderTopic: "market.ETH/USDT.tick"},
			Body:       body,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Topic != "market.ETH/USDT.tick" {
			t.Errorf("expected header topic, got %s", d.Topic)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		_, err := decodeDelivery(amqp.Delivery{Body: []byte(`{"msg_type":"bogus","payload":{}}`)})
		if !errors.Is(err, protocol.ErrUnknownMessageType) {
			t.Errorf("expected ErrUnknownMessageType, got %v", err)
		}
	})
}

func TestHandleMessages(t *testing.T) {
	var got protocol.Message
	h := HandleMessages(func(_ context.Context, msg protocol.Message) error {
		got = msg
		return nil
	})

	msg := protocol.NewHeartbeat("w7", nil)
	if err := h(context.Background(), &Delivery{Message: msg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.WorkerID != "w7" {
		t.Errorf("expected worker w7, got %s", got.WorkerID)
	}
}

// --- Topology Tests ---

func TestWorkerBindings(t *testing.T) {
	bindings := workerBindings("w1")

	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	if bindings[0].queue != "worker.w1" || bindings[0].key != "w1" || bindings[0].exchange != ExchangeData {
		t.Errorf("unexpected data binding %+v", bindings[0])
	}
	if bindings[1].key != "control.w1" || bindings[1].exchange != ExchangeControl {
		t.Errorf("unexpected control binding %+v", bindings[1])
	}
}

func TestHostBindings(t *testing.T) {
	want := map[Queue]string{
		QueueInbound: "status.#",
		QueueFeed:    "market.#",
		QueueDLQ:     "inbound",
	}
	for _, b := range hostBindings() {
		if want[b.queue] != b.key {
			t.Errorf("queue %s: expected key %q, got %q", b.queue, want[b.queue], b.key)
		}
	}
}

func TestNextReconnectDelay(t *testing.T) {
	d := minReconnectDelay
	var seen []time.Duration
	for i := 0; i < 7; i++ {
		d = nextReconnectDelay(d)
		seen = append(seen, d)
	}

	want := []time.Duration{2, 4, 8, 16, 30, 30, 30}
	for i, w := range want {
		if seen[i] != w*time.Second {
			t.Errorf("step %d: expected %v, got %v", i, w*time.Second, seen[i])
		}
	}
}

// --- Redis Tests ---

func TestRedisTransport_Channels(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tr := NewRedisTransport(client, "", nil)

	if got := tr.DataChannel("w1"); got != "stratvisor:data.w1" {
		t.Errorf("unexpected data channel %s", got)
	}
	if got := tr.ControlChannel("w1"); got != "stratvisor:control.w1" {
		t.Errorf("unexpected control channel %s", got)
	}

	patterns := tr.inboundPatterns()
	if len(patterns) != 2 || patterns[0] != "stratvisor:status.*" || patterns[1] != "stratvisor:market.*" {
		t.Errorf("unexpected patterns %v", patterns)
	}

	msg := protocol.NewMarketData("BTC/USDT", "kline", nil, "test")
	if err := tr.PublishData(context.Background(), "market.BTC/USDT.kline", msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
	if err := tr.PublishStatus(context.Background(), msg); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient for status, got %v", err)
	}
}
