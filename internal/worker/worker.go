package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/mq"
	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// Default configuration values.
const (
	defaultHeartbeatInterval = 5 * time.Second
	publishTimeout           = 5 * time.Second
)

// MarketData — рыночные данные, переданные стратегии.
type MarketData struct {
	Symbol   string
	DataType string
	Source   string
	Data     protocol.Payload
	Time     time.Time
}

// Strategy — логика стратегии.
type Strategy interface {
	OnData(ctx context.Context, md MarketData) error
}

// StrategyFunc адаптирует функцию к Strategy.
type StrategyFunc func(ctx context.Context, md MarketData) error

// OnData вызывает f.
func (f StrategyFunc) OnData(ctx context.Context, md MarketData) error {
	return f(ctx, md)
}

// Lifecycle — необязательные хуки стратегии на start и stop.
type Lifecycle interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
}

// Publisher отправляет сообщения воркера host.
// Реализуют mq.Publisher и mq.RedisTransport.
type Publisher interface {
	PublishStatus(ctx context.Context, msg protocol.Message) error
}

// Source доставляет воркеру данные и команды.
// Блокируется до отмены ctx.
type Source func(ctx context.Context, handle mq.MessageHandler) error

// Worker — рантайм стратегии.
type Worker struct {
	id           string
	strategyPath string
	symbols      []string
	dataTypes    []string
	pid          int

	strategy  Strategy
	publisher Publisher
	source    Source

	status            *domain.WorkerStatus
	heartbeatInterval time.Duration
	autoStart         bool

	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	runningMu  sync.Mutex

	// opMu сериализует смену состояния и вызовы стратегии.
	opMu sync.Mutex
}

// Config — конфигурация Worker.
type Config struct {
	WorkerID     string
	StrategyPath string
	Symbols      []string
	DataTypes    []string

	Strategy  Strategy
	Publisher Publisher

	// Source — источник данных и команд (опционально; без него
	// сообщения передаются через HandleMessage).
	Source Source

	// HeartbeatInterval — период heartbeat (default: 5s).
	HeartbeatInterval time.Duration

	// AutoStart — перейти в RUNNING сразу, не дожидаясь команды start.
	AutoStart bool

	// PID — PID процесса (default: os.Getpid()).
	PID int

	Clock  func() time.Time
	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Strategy == nil {
		return nil, ErrNoStrategy
	}
	if cfg.Publisher == nil {
		return nil, ErrNoPublisher
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	pid := cfg.PID
	if pid <= 0 {
		pid = os.Getpid()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithWorkerID(logger, cfg.WorkerID)

	return &Worker{
		id:                cfg.WorkerID,
		strategyPath:      cfg.StrategyPath,
		symbols:           cfg.Symbols,
		dataTypes:         cfg.DataTypes,
		pid:               pid,
		strategy:          cfg.Strategy,
		publisher:         cfg.Publisher,
		source:            cfg.Source,
		status:            domain.NewWorkerStatus(cfg.WorkerID, cfg.StrategyPath, cfg.Symbols, domain.WithClock(now), domain.WithLogger(logger)),
		heartbeatInterval: interval,
		autoStart:         cfg.AutoStart,
		logger:            logger,
	}, nil
}

// ID возвращает идентификатор воркера.
func (w *Worker) ID() string {
	return w.id
}

// State возвращает текущее состояние.
func (w *Worker) State() domain.WorkerState {
	return w.status.State()
}

// Stats — счётчики обработки данных.
type Stats struct {
	Processed int64
	Failed    int64
	Skipped   int64
}

// Stats возвращает счётчики обработки.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Skipped:   w.skipped.Load(),
	}
}

// Start регистрирует воркер у host и запускает heartbeat и источник.
//
// Повторный вызов ничего не делает.
func (w *Worker) Start(ctx context.Context) error {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()
	if w.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)

	w.logger.Info("starting worker",
		"strategy_path", w.strategyPath,
		"symbols", w.symbols,
		"heartbeat_interval", w.heartbeatInterval,
	)

	reg := protocol.NewRegistration(w.id, w.strategyPath, w.symbols, w.dataTypes, w.pid)
	if err := w.publisher.PublishStatus(ctx, reg); err != nil {
		cancel()
		return fmt.Errorf("register worker: %w", err)
	}

	w.opMu.Lock()
	w.transition(ctx, domain.WorkerStateInitialized)
	if w.autoStart {
		w.begin(ctx)
	}
	w.opMu.Unlock()

	w.cancelFunc = cancel
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.heartbeatLoop(ctx)
	}()

	if w.source != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.source(ctx, w.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("source stopped", "error", err)
			}
		}()
	}

	w.logger.Info("worker started", "state", w.State())
	return nil
}

// Stop останавливает стратегию, сообщает STOPPED и ждёт горутины.
func (w *Worker) Stop() {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()
	if !w.running {
		return
	}

	w.logger.Info("stopping worker...")

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	w.opMu.Lock()
	w.halt(ctx)
	w.opMu.Unlock()

	w.cancelFunc()
	w.wg.Wait()
	w.running = false

	w.logger.Info("worker stopped", "state", w.State())
}

// heartbeatLoop отправляет heartbeat каждые heartbeatInterval.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.SendHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SendHeartbeat(ctx)
		}
	}
}

// SendHeartbeat отправляет heartbeat с текущими счётчиками.
func (w *Worker) SendHeartbeat(ctx context.Context) {
	s := w.Stats()
	msg := protocol.NewHeartbeat(w.id, protocol.Payload{
		"state":     protocol.String(string(w.State())),
		"processed": protocol.Int(s.Processed),
		"failed":    protocol.Int(s.Failed),
		"skipped":   protocol.Int(s.Skipped),
	})
	w.publish(ctx, msg)
}

// PlaceOrder отправляет заявку на ордер. Допустимо только в RUNNING.
func (w *Worker) PlaceOrder(ctx context.Context, req protocol.OrderRequest) error {
	if w.State() != domain.WorkerStateRunning {
		return ErrNotRunning
	}
	if err := w.publisher.PublishStatus(ctx, protocol.NewOrderRequest(w.id, req)); err != nil {
		return fmt.Errorf("publish order: %w", err)
	}
	return nil
}

// --- Transitions ---

// transition меняет состояние и сообщает о нём host.
// Вызывается под opMu.
func (w *Worker) transition(ctx context.Context, state domain.WorkerState) bool {
	if !w.status.UpdateState(state) {
		return false
	}
	w.publish(ctx, protocol.NewStatusUpdate(w.id, string(state), w.pid))
	return true
}

// begin проводит воркер INITIALIZED → STARTING → RUNNING.
func (w *Worker) begin(ctx context.Context) {
	if !w.transition(ctx, domain.WorkerStateStarting) {
		return
	}
	if lc, ok := w.strategy.(Lifecycle); ok {
		if err := lc.OnStart(ctx); err != nil {
			w.fail(ctx, fmt.Errorf("strategy start: %w", err))
			return
		}
	}
	w.transition(ctx, domain.WorkerStateRunning)
}

// halt проводит воркер через STOPPING в STOPPED.
// Из INITIALIZED воркер не может перейти в STOPPING и остаётся как есть.
func (w *Worker) halt(ctx context.Context) {
	if !w.transition(ctx, domain.WorkerStateStopping) {
		return
	}
	if lc, ok := w.strategy.(Lifecycle); ok {
		if err := lc.OnStop(ctx); err != nil {
			w.logger.Warn("strategy stop failed", "error", err)
		}
	}
	w.transition(ctx, domain.WorkerStateStopped)
}

// fail отправляет фатальную ошибку и переводит воркер в ERROR.
func (w *Worker) fail(ctx context.Context, err error) {
	w.logger.Error("worker failed", "error", err)
	w.publish(ctx, protocol.NewError(w.id, err.Error(), protocol.Payload{
		protocol.KeyFatal: protocol.Bool(true),
	}))
	w.status.RecordError(err.Error())
	w.transition(ctx, domain.WorkerStateError)
}

// publish отправляет сообщение host; ошибка только логируется.
func (w *Worker) publish(ctx context.Context, msg protocol.Message) {
	if err := w.publisher.PublishStatus(ctx, msg); err != nil {
		telemetry.WithMsgID(w.logger, msg.MsgID).Error("failed to publish message",
			"msg_type", msg.Type,
			"error", err,
		)
	}
}
