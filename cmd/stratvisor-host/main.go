// stratvisor-host — хост флота стратегий.
//
// Host:
//   - Принимает heartbeat, status_update и error от воркеров
//   - Следит за здоровьем воркеров и советует рестарты
//   - Раздаёт рыночные данные подписанным воркерам
//   - Отдаёт read-only API, /healthz и /metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/stratvisor/internal/api"
	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/config"
	"github.com/shaiso/stratvisor/internal/host"
	"github.com/shaiso/stratvisor/internal/mq"
	"github.com/shaiso/stratvisor/internal/protocol"
	"github.com/shaiso/stratvisor/internal/supervisor"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger, logCloser := telemetry.SetupLogger()
	logger.Info("starting stratvisor-host")

	err := run(logger)
	logCloser.Close()
	if err != nil {
		logger.Error("stratvisor-host failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Pyroscope.URL != "" {
		profiler, err := startProfiler(cfg.Pyroscope, logger)
		if err != nil {
			logger.Warn("profiling disabled", "error", err)
		} else {
			defer profiler.Stop()
		}
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	sup := supervisor.New(supervisor.Config{
		RestartPolicy: cfg.Supervisor.RestartPolicy,
		HealthCheck:   cfg.Supervisor.HealthCheck,
		Metrics:       metrics,
		Logger:        logger.With("component", "supervisor"),
	})

	wiring, err := connectTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer wiring.close()

	brk := broker.New(broker.Config{
		Transport: wiring.transport,
		Metrics:   metrics,
		Logger:    logger.With("component", "broker"),
	})

	h := host.New(host.Config{
		Supervisor:         sup,
		Broker:             brk,
		Control:            wiring.control,
		DeclareWorkerQueue: wiring.declare,
		Sources:            wiring.sources,
		Orders:             logOrders,
		StatsSchedule:      cfg.StatsSchedule,
		Metrics:            metrics,
		Logger:             logger.With("component", "host"),
	})

	if err := registerPreprocessors(brk, cfg.Broker, h.InstanceID()); err != nil {
		return err
	}

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("start host: %w", err)
	}

	// HTTP mux: API + /metrics
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Supervisor: sup,
		Broker:     brk,
		Logger:     logger.With("component", "api"),
	}).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	h.Stop()

	logger.Info("stratvisor-host stopped")
	return nil
}

// transportWiring — транспорт, выбранный конфигурацией.
type transportWiring struct {
	transport broker.Transport
	control   host.ControlSender
	declare   func(ctx context.Context, workerID string) error
	sources   []host.Source
	closers   []io.Closer
}

func (w *transportWiring) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i].Close()
	}
}

// connectTransport подключает RabbitMQ или Redis.
// TransportNone оставляет broker без транспорта: данные только учитываются.
func connectTransport(ctx context.Context, cfg config.Config, logger *slog.Logger) (*transportWiring, error) {
	w := &transportWiring{}

	switch cfg.Transport {
	case config.TransportAMQP:
		conn, err := mq.NewConnection(mq.ConnectionConfig{
			URL:    cfg.RabbitMQURL,
			Logger: logger.With("component", "amqp"),
		})
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		w.closers = append(w.closers, conn)
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, conn); err != nil {
			w.close()
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		logger.Debug("topology ready", "topology", mq.TopologyInfo())

		publisher := mq.NewPublisher(conn, logger.With("component", "publisher"))
		w.transport = publisher
		w.control = publisher
		w.declare = func(ctx context.Context, workerID string) error {
			return mq.DeclareWorkerQueue(ctx, conn, workerID)
		}
		consumerLogger := logger.With("component", "consumer")
		w.sources = []host.Source{
			mq.QueueSource(conn, consumerLogger, mq.QueueInbound, 50),
			mq.QueueSource(conn, consumerLogger, mq.QueueFeed, 200),
		}

	case config.TransportRedis:
		client, err := mq.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt := mq.NewRedisTransport(client, "", logger)
		w.closers = append(w.closers, rt)
		logger.Info("Redis connected")

		w.transport = rt
		w.control = rt
		w.sources = []host.Source{rt.Consume}

	case config.TransportNone:
		logger.Warn("no transport configured, market data will not be delivered")
	}

	return w, nil
}

// logOrders журналирует заявки воркеров. Исполнение ордеров вне host.
func logOrders(ctx context.Context, _ string, req protocol.OrderRequest) error {
	telemetry.FromContext(ctx).Info("order request",
		"symbol", req.Symbol,
		"side", req.Side,
		"order_type", req.OrderType,
		"amount", req.Amount,
		"price", req.Price,
	)
	return nil
}

// registerPreprocessors подключает встроенные препроцессоры из конфигурации.
func registerPreprocessors(b *broker.Broker, cfg config.BrokerConfig, hostID string) error {
	if cfg.StaleAfter > 0 {
		if err := b.RegisterPreprocessor("stale", broker.StaleFilter(cfg.StaleAfter, nil)); err != nil {
			return err
		}
	}
	if len(cfg.AllowedSources) > 0 {
		if err := b.RegisterPreprocessor("source", broker.SourceFilter(cfg.AllowedSources...)); err != nil {
			return err
		}
	}
	return b.RegisterPreprocessor("tag_source", broker.TagSource(hostID))
}

func startProfiler(cfg config.PyroscopeConfig, logger *slog.Logger) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.URL,
		Logger:          pyroscopeLogger{logger: logger.With("component", "pyroscope")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

// pyroscopeLogger направляет логи профилировщика в slog.
type pyroscopeLogger struct {
	logger *slog.Logger
}

func (l pyroscopeLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l pyroscopeLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l pyroscopeLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
