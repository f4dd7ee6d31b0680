package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/mq"
	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/supervisor"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type delivered struct {
	topic string
	msg   protocol.Message
}

// fakeTransport запоминает данные и команды.
type fakeTransport struct {
	mu       sync.Mutex
	data     []delivered
	controls []protocol.Message
}

func (f *fakeTransport) PublishData(_ context.Context, topic string, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, delivered{topic: topic, msg: msg})
	return nil
}

func (f *fakeTransport) PublishControl(_ context.Context, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, msg)
	return nil
}

func (f *fakeTransport) Data() []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivered(nil), f.data...)
}

func (f *fakeTransport) Controls() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.controls...)
}

type testHost struct {
	*Host
	transport *fakeTransport
	declared  []string
}

func newTestHost(t *testing.T, mutate func(*Config)) *testHost {
	t.Helper()

	tr := &fakeTransport{}
	th := &testHost{transport: tr}

	cfg := Config{
		InstanceID: "host-test",
		Supervisor: supervisor.New(supervisor.Config{Clock: fixedClock, Logger: quietLogger()}),
		Broker:     broker.New(broker.Config{Transport: tr, Logger: quietLogger()}),
		Control:    tr,
		DeclareWorkerQueue: func(_ context.Context, id string) error {
			th.declared = append(th.declared, id)
			return nil
		},
		Clock:  fixedClock,
		Logger: quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	th.Host = New(cfg)
	return th
}

func initializing(workerID string, symbols ...string) protocol.Message {
	return protocol.NewRegistration(workerID, "strategies/"+workerID+".py", symbols, nil, 0)
}

// bringUp регистрирует воркер через status_update и доводит его до RUNNING.
func bringUp(t *testing.T, h *testHost, workerID string, symbols ...string) {
	t.Helper()
	ctx := context.Background()

	if err := h.HandleMessage(ctx, initializing(workerID, symbols...)); err != nil {
		t.Fatalf("register %s: %v", workerID, err)
	}
	for _, st := range []string{"INITIALIZED", "STARTING", "RUNNING"} {
		if err := h.HandleMessage(ctx, protocol.NewStatusUpdate(workerID, st, 4242)); err != nil {
			t.Fatalf("status %s: %v", st, err)
		}
	}
}

// --- Registration Tests ---

func TestStatusUpdate_AutoRegister(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT", "ETH/USDT")

	status, ok := h.Supervisor().Worker("w1")
	if !ok {
		t.Fatal("worker should be registered")
	}
	if status.State() != domain.WorkerStateRunning {
		t.Errorf("expected RUNNING, got %s", status.State())
	}
	if status.PID() != 4242 {
		t.Errorf("expected pid 4242, got %d", status.PID())
	}
	if status.StrategyPath != "strategies/w1.py" {
		t.Errorf("unexpected strategy path %s", status.StrategyPath)
	}
	if !h.Broker().IsSubscribed("w1", "ETH/USDT", "kline") {
		t.Error("worker should be subscribed to its symbols")
	}
	if len(h.declared) != 1 || h.declared[0] != "w1" {
		t.Errorf("expected worker queue declared, got %v", h.declared)
	}
}

func TestRegisterWorker_DeclareFailure(t *testing.T) {
	h := newTestHost(t, func(cfg *Config) {
		cfg.DeclareWorkerQueue = func(context.Context, string) error {
			return errors.New("channel closed")
		}
	})

	err := h.RegisterWorker(context.Background(), WorkerSpec{WorkerID: "w1", Symbols: []string{"BTC/USDT"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := h.Supervisor().Worker("w1"); ok {
		t.Error("failed registration should be rolled back")
	}
	if h.Broker().IsSubscribed("w1", "BTC/USDT", "kline") {
		t.Error("failed registration should not subscribe")
	}
}

func TestRegisterWorker_Duplicate(t *testing.T) {
	h := newTestHost(t, nil)
	spec := WorkerSpec{WorkerID: "w1", StrategyPath: "s.py"}

	if err := h.RegisterWorker(context.Background(), spec); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := h.RegisterWorker(context.Background(), spec); !errors.Is(err, supervisor.ErrWorkerAlreadyRegistered) {
		t.Errorf("expected ErrWorkerAlreadyRegistered, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")

	if !h.Unregister("w1") {
		t.Fatal("Unregister should report a known worker")
	}
	if h.Unregister("w1") {
		t.Error("second Unregister should report false")
	}
	if subs := h.Broker().Subscribers("BTC/USDT", "kline"); len(subs) != 0 {
		t.Errorf("expected no subscribers, got %v", subs)
	}
}

// --- Dispatch Tests ---

func TestStatusUpdate_InvalidPayload(t *testing.T) {
	h := newTestHost(t, nil)
	ctx := context.Background()

	msg := protocol.New(protocol.MessageTypeStatusUpdate, "w1", protocol.Payload{})
	if err := h.HandleMessage(ctx, msg); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("missing state: expected ErrInvalidPayload, got %v", err)
	}

	msg = protocol.NewStatusUpdate("w1", "SLEEPING", 0)
	if err := h.HandleMessage(ctx, msg); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("unknown state: expected ErrInvalidPayload, got %v", err)
	}
}

func TestStatusUpdate_UnknownWorkerIgnored(t *testing.T) {
	h := newTestHost(t, nil)

	if err := h.HandleMessage(context.Background(), protocol.NewStatusUpdate("ghost", "RUNNING", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := h.Supervisor().Worker("ghost"); ok {
		t.Error("non-initializing status must not register a worker")
	}
}

func TestHeartbeat(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.HandleMessage(ctx, protocol.NewHeartbeat("w1", nil)); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
	}
	if err := h.HandleMessage(ctx, protocol.NewHeartbeat("ghost", nil)); err != nil {
		t.Errorf("unknown worker heartbeat should be ignored, got %v", err)
	}

	report, _ := h.Supervisor().HealthReport("w1")
	if report.HeartbeatCount != 3 {
		t.Errorf("expected 3 heartbeats, got %d", report.HeartbeatCount)
	}
	if !report.IsHealthy {
		t.Error("worker should be healthy")
	}
}

func TestError_Fatal(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	if err := h.HandleMessage(ctx, protocol.NewError("w1", "slow tick", nil)); err != nil {
		t.Fatalf("error message: %v", err)
	}
	status, _ := h.Supervisor().Worker("w1")
	if status.State() != domain.WorkerStateRunning {
		t.Errorf("non-fatal error should keep RUNNING, got %s", status.State())
	}

	fatal := protocol.NewError("w1", "strategy crashed", protocol.Payload{protocol.KeyFatal: protocol.Bool(true)})
	if err := h.HandleMessage(ctx, fatal); err != nil {
		t.Fatalf("fatal error message: %v", err)
	}
	if status.State() != domain.WorkerStateError {
		t.Errorf("fatal error should move to ERROR, got %s", status.State())
	}
	if status.ErrorsCount() != 2 {
		t.Errorf("expected 2 errors, got %d", status.ErrorsCount())
	}
	if msg, _ := status.LastError(); msg != "strategy crashed" {
		t.Errorf("unexpected last error %q", msg)
	}
}

func TestRestartAfterError(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	fatal := protocol.NewError("w1", "boom", protocol.Payload{protocol.KeyFatal: protocol.Bool(true)})
	if err := h.HandleMessage(ctx, fatal); err != nil {
		t.Fatalf("fatal: %v", err)
	}

	var restarts []int
	h.Supervisor().OnRestart(func(_ string, n int) { restarts = append(restarts, n) })

	if err := h.HandleMessage(ctx, initializing("w1", "BTC/USDT")); err != nil {
		t.Fatalf("restart: %v", err)
	}

	status, _ := h.Supervisor().Worker("w1")
	if status.State() != domain.WorkerStateInitializing {
		t.Errorf("expected INITIALIZING after restart, got %s", status.State())
	}
	if h.Supervisor().RestartCount("w1") != 1 {
		t.Errorf("expected 1 restart, got %d", h.Supervisor().RestartCount("w1"))
	}
	if len(restarts) != 1 || restarts[0] != 1 {
		t.Errorf("unexpected restart notifications %v", restarts)
	}
}

func TestStopped_Unsubscribes(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	for _, st := range []string{"STOPPING", "STOPPED"} {
		if err := h.HandleMessage(ctx, protocol.NewStatusUpdate("w1", st, 0)); err != nil {
			t.Fatalf("status %s: %v", st, err)
		}
	}
	if h.Broker().IsSubscribed("w1", "BTC/USDT", "kline") {
		t.Error("stopped worker should be unsubscribed")
	}
	if _, ok := h.Supervisor().Worker("w1"); !ok {
		t.Error("stopped worker should stay registered")
	}
}

func TestRestartAfterCrash(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	// Процесс убит без отчёта и вернулся с новым PID.
	if err := h.HandleMessage(ctx, protocol.NewRegistration("w1", "strategies/w1.py", []string{"BTC/USDT"}, nil, 5151)); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := h.HandleMessage(ctx, protocol.NewStatusUpdate("w1", "INITIALIZED", 5151)); err != nil {
		t.Fatalf("initialized: %v", err)
	}

	status, _ := h.Supervisor().Worker("w1")
	if status.State() != domain.WorkerStateInitialized {
		t.Errorf("expected INITIALIZED, got %s", status.State())
	}
	if status.PID() != 5151 {
		t.Errorf("expected new pid 5151, got %d", status.PID())
	}
	if n := h.Supervisor().RestartCount("w1"); n != 1 {
		t.Errorf("expected 1 restart, got %d", n)
	}
	if !h.Broker().IsSubscribed("w1", "BTC/USDT", "kline") {
		t.Error("restarted worker should stay subscribed")
	}
}

func TestRestart_DuplicateInitializingIgnored(t *testing.T) {
	h := newTestHost(t, nil)
	ctx := context.Background()

	for range 2 {
		if err := h.HandleMessage(ctx, initializing("w1", "BTC/USDT")); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if n := h.Supervisor().RestartCount("w1"); n != 0 {
		t.Errorf("repeated INITIALIZING is not a restart, got %d restarts", n)
	}
}

func TestRestart_KeepsDataTypes(t *testing.T) {
	h := newTestHost(t, nil)
	ctx := context.Background()

	reg := protocol.NewRegistration("w1", "strategies/w1.py", []string{"BTC/USDT"}, []string{"tick"}, 0)
	if err := h.HandleMessage(ctx, reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, st := range []string{"INITIALIZED", "STARTING", "RUNNING", "STOPPING", "STOPPED"} {
		if err := h.HandleMessage(ctx, protocol.NewStatusUpdate("w1", st, 0)); err != nil {
			t.Fatalf("status %s: %v", st, err)
		}
	}

	// Повторная регистрация без data_types берёт их из прошлой.
	if err := h.HandleMessage(ctx, initializing("w1", "BTC/USDT")); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !h.Broker().IsSubscribed("w1", "BTC/USDT", "tick") {
		t.Error("restarted worker should be subscribed to tick")
	}
	if h.Broker().IsSubscribed("w1", "BTC/USDT", "kline") {
		t.Error("restarted worker should not fall back to kline")
	}

	// Новые параметры из сообщения заменяют прошлые.
	if err := h.HandleMessage(ctx, protocol.NewStatusUpdate("w1", "ERROR", 0)); err != nil {
		t.Fatalf("error state: %v", err)
	}
	next := protocol.NewRegistration("w1", "strategies/w1.py", []string{"ETH/USDT"}, []string{"bar"}, 0)
	if err := h.HandleMessage(ctx, next); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !h.Broker().IsSubscribed("w1", "ETH/USDT", "bar") || h.Broker().IsSubscribed("w1", "BTC/USDT", "tick") {
		t.Errorf("subscription not rebuilt: %v", h.Broker().WorkerSymbols("w1"))
	}
	if spec, _ := h.Spec("w1"); spec.DataTypes[0] != "bar" {
		t.Errorf("unexpected stored spec %+v", spec)
	}
}

func TestMarketData_Routed(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	bringUp(t, h, "w2", "ETH/USDT")

	feed := protocol.NewMarketData("BTC/USDT", "kline", protocol.Payload{"close": protocol.Number(64000)}, "binance")
	if err := h.HandleMessage(context.Background(), feed); err != nil {
		t.Fatalf("market data: %v", err)
	}

	data := h.transport.Data()
	if len(data) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(data))
	}
	if data[0].topic != "market.BTC/USDT.kline" || data[0].msg.WorkerID != "w1" {
		t.Errorf("unexpected delivery %s to %s", data[0].topic, data[0].msg.WorkerID)
	}
	if v, _ := data[0].msg.Payload.GetMap(protocol.KeyData); !v.Equal(protocol.Payload{"close": protocol.Number(64000)}) {
		t.Errorf("unexpected data %v", v)
	}
}

func TestMarketData_DefaultDataType(t *testing.T) {
	h := newTestHost(t, nil)
	if err := h.RegisterWorker(context.Background(), WorkerSpec{
		WorkerID:  "w1",
		Symbols:   []string{"BTC/USDT"},
		DataTypes: []string{"tick"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	msg := protocol.New(protocol.MessageTypeTickData, "", protocol.Payload{
		protocol.KeySymbol: protocol.String("BTC/USDT"),
	})
	if err := h.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("tick data: %v", err)
	}
	if data := h.transport.Data(); len(data) != 1 || data[0].topic != "market.BTC/USDT.tick" {
		t.Errorf("expected tick delivery, got %+v", data)
	}

	bad := protocol.New(protocol.MessageTypeMarketData, "", protocol.Payload{})
	if err := h.HandleMessage(context.Background(), bad); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestOrderRequest(t *testing.T) {
	var got []protocol.OrderRequest
	h := newTestHost(t, func(cfg *Config) {
		cfg.Orders = func(_ context.Context, workerID string, req protocol.OrderRequest) error {
			if workerID != "w1" {
				t.Errorf("unexpected worker %s", workerID)
			}
			got = append(got, req)
			return nil
		}
	})
	ctx := context.Background()

	order := protocol.NewOrderRequest("w1", protocol.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      protocol.SideBuy,
		OrderType: protocol.OrderTypeLimit,
		Amount:    0.5,
		Price:     63000,
	})
	if err := h.HandleMessage(ctx, order); err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 order, got %d", len(got))
	}
	if got[0].Symbol != "BTC/USDT" || got[0].Side != "buy" || got[0].Amount != 0.5 || got[0].Price != 63000 {
		t.Errorf("unexpected order %+v", got[0])
	}

	market := protocol.NewOrderRequest("w1", protocol.OrderRequest{Symbol: "BTC/USDT", Side: protocol.SideSell, Amount: 1})
	if err := h.HandleMessage(ctx, market); err != nil {
		t.Fatalf("market order: %v", err)
	}
	if got[1].OrderType != protocol.OrderTypeMarket || got[1].Price != 0 {
		t.Errorf("unexpected market order %+v", got[1])
	}

	bad := protocol.NewOrderRequest("w1", protocol.OrderRequest{Symbol: "BTC/USDT", Side: "hold", Amount: 1})
	if err := h.HandleMessage(ctx, bad); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestHandleMessage_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestHost(t, func(cfg *Config) {
		cfg.Metrics = telemetry.NewMetrics(reg)
	})
	ctx := context.Background()

	_ = h.HandleMessage(ctx, protocol.NewHeartbeat("w1", nil))
	_ = h.HandleMessage(ctx, protocol.NewHeartbeat("w1", nil))
	_ = h.HandleMessage(ctx, protocol.NewError("w1", "x", nil))

	n, err := testutil.GatherAndCount(reg, "stratvisor_host_inbound_messages_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 msg_type series, got %d", n)
	}
}

// --- Control Tests ---

func TestSendControl(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")
	ctx := context.Background()

	if err := h.SendControl(ctx, "w1", protocol.MessageTypePause, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	controls := h.transport.Controls()
	if len(controls) != 1 || controls[0].Type != protocol.MessageTypePause || controls[0].WorkerID != "w1" {
		t.Errorf("unexpected controls %+v", controls)
	}

	if err := h.SendControl(ctx, "ghost", protocol.MessageTypeStop, nil); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("expected ErrUnknownWorker, got %v", err)
	}
	if err := h.SendControl(ctx, "w1", protocol.MessageTypeHeartbeat, nil); !errors.Is(err, protocol.ErrNotControlType) {
		t.Errorf("expected ErrNotControlType, got %v", err)
	}
}

func TestSendControl_NoSender(t *testing.T) {
	h := newTestHost(t, func(cfg *Config) { cfg.Control = nil })

	if err := h.SendControl(context.Background(), "w1", protocol.MessageTypeStart, nil); !errors.Is(err, ErrNoControlSender) {
		t.Errorf("expected ErrNoControlSender, got %v", err)
	}
}

// --- Lifecycle Tests ---

func TestStartStop_Sources(t *testing.T) {
	handled := make(chan struct{})

	var src Source = func(ctx context.Context, handle mq.MessageHandler) error {
		if err := handle(ctx, initializing("w1", "BTC/USDT")); err != nil {
			t.Errorf("handle: %v", err)
		}
		close(handled)
		<-ctx.Done()
		return ctx.Err()
	}

	h := newTestHost(t, func(cfg *Config) {
		cfg.Sources = []Source{src}
		cfg.StatsSchedule = "@every 1h"
	})

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("source did not deliver")
	}
	if _, ok := h.Supervisor().Worker("w1"); !ok {
		t.Error("worker from source should be registered")
	}
	if !h.Supervisor().IsRunning() {
		t.Error("supervisor should be running")
	}

	done := make(chan struct{})
	go func() {
		h.Stop()
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if h.Supervisor().IsRunning() {
		t.Error("supervisor should be stopped")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	h := newTestHost(t, func(cfg *Config) { cfg.StatsSchedule = "every so often" })

	if err := h.Start(context.Background()); err == nil {
		h.Stop()
		t.Fatal("expected error for invalid schedule")
	}
}

func TestReportStats(t *testing.T) {
	h := newTestHost(t, nil)
	bringUp(t, h, "w1", "BTC/USDT")

	// Не должен паниковать на нездоровом воркере без heartbeat.
	h.ReportStats(context.Background())
}
