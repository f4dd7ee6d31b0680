package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/mq"
	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/scheduler"
	"github.com/shaiso/stratvisor/internal/supervisor"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// StatsJob — имя задачи периодического отчёта.
const StatsJob = "stats"

// ControlSender отправляет команды воркерам.
type ControlSender interface {
	PublishControl(ctx context.Context, msg protocol.Message) error
}

// OrderHandler обрабатывает заявку воркера.
type OrderHandler func(ctx context.Context, workerID string, req protocol.OrderRequest) error

// Source — источник входящих сообщений (очередь AMQP, Redis Pub/Sub).
// Блокируется до отмены ctx.
type Source func(ctx context.Context, handle mq.MessageHandler) error

// WorkerSpec — параметры регистрации воркера.
type WorkerSpec struct {
	WorkerID     string
	StrategyPath string
	Symbols      []string
	DataTypes    []string
}

// Host принимает трафик воркеров и применяет его к Supervisor и Broker.
//
// Host — связующий компонент, который:
//   - Читает входящие сообщения из Sources
//   - Регистрирует воркеры и их подписки
//   - Отправляет команды через ControlSender
//   - Логирует рекомендации по рестартам
//   - Раз в StatsSchedule пишет отчёт о состоянии флота
type Host struct {
	id         string
	supervisor *supervisor.Supervisor
	broker     *broker.Broker
	control    ControlSender
	declare    func(ctx context.Context, workerID string) error
	orders     OrderHandler
	sources    []Source
	scheduler  *scheduler.Scheduler
	schedule   string

	// specs — параметры регистрации, по которым воркер переподписывается
	// после рестарта.
	specs   map[string]WorkerSpec
	specsMu sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	runningMu  sync.Mutex
}

// Config — конфигурация Host.
type Config struct {
	// InstanceID — идентификатор экземпляра (по умолчанию UUID).
	InstanceID string

	// Supervisor и Broker — агрегаты, которыми управляет Host.
	Supervisor *supervisor.Supervisor
	Broker     *broker.Broker

	// Control — транспорт команд (опционально).
	Control ControlSender

	// DeclareWorkerQueue создаёт очередь воркера при регистрации (опционально).
	DeclareWorkerQueue func(ctx context.Context, workerID string) error

	// Orders — обработчик заявок (опционально).
	Orders OrderHandler

	// Sources — источники входящих сообщений.
	Sources []Source

	// StatsSchedule — cron-расписание отчёта. Пусто — отчёт отключён.
	StatsSchedule string

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Clock — источник времени (опционально, для тестов).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Host и подписывается на события Supervisor.
func New(cfg Config) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := cfg.InstanceID
	if id == "" {
		id = uuid.New().String()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	h := &Host{
		id:         id,
		supervisor: cfg.Supervisor,
		broker:     cfg.Broker,
		control:    cfg.Control,
		declare:    cfg.DeclareWorkerQueue,
		orders:     cfg.Orders,
		sources:    cfg.Sources,
		scheduler:  scheduler.New(scheduler.Config{Logger: logger}),
		schedule:   cfg.StatsSchedule,
		specs:      make(map[string]WorkerSpec),
		logger:     logger.With("host_id", id),
		metrics:    cfg.Metrics,
		now:        now,
	}

	h.supervisor.OnHealthChange(h.onHealthChange)
	h.supervisor.OnRestart(h.onRestart)
	return h
}

// InstanceID возвращает идентификатор экземпляра.
func (h *Host) InstanceID() string {
	return h.id
}

// Supervisor возвращает Supervisor.
func (h *Host) Supervisor() *supervisor.Supervisor {
	return h.supervisor
}

// Broker возвращает Broker.
func (h *Host) Broker() *broker.Broker {
	return h.broker
}

// Start запускает Supervisor, отчёт по расписанию и чтение Sources.
func (h *Host) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return nil
	}

	if h.schedule != "" {
		if err := h.scheduler.Add(StatsJob, h.schedule, h.ReportStats); err != nil && !errors.Is(err, scheduler.ErrDuplicateJob) {
			return fmt.Errorf("schedule stats: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancelFunc = cancel

	if err := h.supervisor.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("start supervisor: %w", err)
	}
	h.scheduler.Start(ctx)

	for i, src := range h.sources {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := src(ctx, h.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Error("source stopped", "source", i, "error", err)
			}
		}()
	}

	h.running = true
	h.logger.Info("host started",
		"sources", len(h.sources),
		"stats_schedule", h.schedule,
	)
	return nil
}

// Stop останавливает Host и ждёт завершения Sources.
func (h *Host) Stop() {
	h.runningMu.Lock()
	if !h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = false
	h.runningMu.Unlock()

	h.logger.Info("stopping host...")

	if h.cancelFunc != nil {
		h.cancelFunc()
	}
	h.wg.Wait()
	h.scheduler.Stop()
	h.supervisor.Stop()

	h.logger.Info("host stopped")
}

// --- Воркеры ---

// RegisterWorker регистрирует воркер в Supervisor, создаёт его очередь
// и подписывает на данные по символам стратегии.
func (h *Host) RegisterWorker(ctx context.Context, spec WorkerSpec) error {
	status := domain.NewWorkerStatus(spec.WorkerID, spec.StrategyPath, spec.Symbols,
		domain.WithClock(h.now),
		domain.WithLogger(h.logger),
	)
	if err := h.supervisor.Register(spec.WorkerID, status); err != nil {
		return fmt.Errorf("register %s: %w", spec.WorkerID, err)
	}

	if h.declare != nil {
		if err := h.declare(ctx, spec.WorkerID); err != nil {
			h.supervisor.Unregister(spec.WorkerID)
			return fmt.Errorf("declare queue for %s: %w", spec.WorkerID, err)
		}
	}

	h.setSpec(spec)
	h.broker.Subscribe(spec.WorkerID, spec.Symbols, spec.DataTypes)
	return nil
}

// Unregister снимает воркер с учёта в Supervisor и Broker.
// Возвращает false, если воркер не был зарегистрирован.
func (h *Host) Unregister(workerID string) bool {
	h.specsMu.Lock()
	delete(h.specs, workerID)
	h.specsMu.Unlock()

	h.broker.UnsubscribeAll(workerID)
	return h.supervisor.Unregister(workerID)
}

// Spec возвращает параметры последней регистрации воркера.
func (h *Host) Spec(workerID string) (WorkerSpec, bool) {
	h.specsMu.RLock()
	defer h.specsMu.RUnlock()
	spec, ok := h.specs[workerID]
	return spec, ok
}

func (h *Host) setSpec(spec WorkerSpec) {
	h.specsMu.Lock()
	h.specs[spec.WorkerID] = spec
	h.specsMu.Unlock()
}

// SendControl отправляет воркеру команду start/stop/pause/resume.
func (h *Host) SendControl(ctx context.Context, workerID string, msgType protocol.MessageType, params protocol.Payload) error {
	if h.control == nil {
		return ErrNoControlSender
	}
	if _, ok := h.supervisor.Worker(workerID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}

	msg, err := protocol.NewControl(msgType, workerID, params)
	if err != nil {
		return err
	}
	if err := h.control.PublishControl(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msgType, workerID, err)
	}

	h.logger.Info("control sent",
		"worker_id", workerID,
		"msg_type", msgType,
		"msg_id", msg.MsgID,
	)
	return nil
}

// --- События Supervisor ---

// onHealthChange логирует рекомендацию по рестарту нездорового воркера.
func (h *Host) onHealthChange(workerID string, healthy bool) {
	if healthy {
		return
	}

	report, ok := h.supervisor.HealthReport(workerID)
	if !ok || !report.RestartRecommended {
		return
	}

	if !report.ShouldRestart {
		h.logger.Error("worker unhealthy, restart limit reached",
			"worker_id", workerID,
			"consecutive_failures", report.ConsecutiveFailures,
			"restart_count", report.RestartCount,
		)
		return
	}

	h.logger.Warn("worker restart recommended",
		"worker_id", workerID,
		"consecutive_failures", report.ConsecutiveFailures,
		"restart_delay", time.Duration(report.RestartDelaySec*float64(time.Second)),
	)
}

func (h *Host) onRestart(workerID string, count int) {
	h.logger.Info("worker restarted",
		"worker_id", workerID,
		"restarts_in_window", count,
		"next_delay", h.supervisor.RestartDelay(workerID),
	)
}
