// stratvisor-worker — процесс стратегии.
//
// Worker:
//   - Регистрируется у host через status_update INITIALIZING
//   - Отправляет heartbeat
//   - Выполняет команды start/stop/pause/resume
//   - Передаёт рыночные данные стратегии
//
// Встроенная стратегия только журналирует данные; рабочие стратегии
// подключаются через worker.Strategy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/stratvisor/internal/config"
	"github.com/shaiso/stratvisor/internal/mq"
	"github.com/shaiso/stratvisor/internal/telemetry"
	"github.com/shaiso/stratvisor/internal/worker"
)

func main() {
	logger, logCloser := telemetry.SetupLogger()
	logger.Info("starting stratvisor-worker")

	err := run(logger)
	logCloser.Close()
	if err != nil {
		logger.Error("stratvisor-worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	wcfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	publisher, source, closer, err := connect(ctx, cfg, wcfg.WorkerID, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	w, err := worker.New(worker.Config{
		WorkerID:          wcfg.WorkerID,
		StrategyPath:      wcfg.StrategyPath,
		Symbols:           wcfg.Symbols,
		DataTypes:         wcfg.DataTypes,
		Strategy:          logStrategy(logger),
		Publisher:         publisher,
		Source:            source,
		HeartbeatInterval: wcfg.HeartbeatInterval,
		AutoStart:         wcfg.AutoStart,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("stratvisor-worker stopped", "stats", w.Stats())
	return nil
}

// connect подключает транспорт воркера.
func connect(ctx context.Context, cfg config.Config, workerID string, logger *slog.Logger) (worker.Publisher, worker.Source, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportAMQP:
		conn, err := mq.NewConnection(mq.ConnectionConfig{
			URL:    cfg.RabbitMQURL,
			Logger: logger.With("component", "amqp"),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("setup topology: %w", err)
		}
		if err := mq.DeclareWorkerQueue(ctx, conn, workerID); err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("declare worker queue: %w", err)
		}
		publisher := mq.NewPublisher(conn, logger.With("component", "publisher"))
		source := mq.QueueSource(conn, logger.With("component", "consumer"), mq.WorkerQueue(workerID), 10)
		return publisher, source, conn, nil

	case config.TransportRedis:
		client, err := mq.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		rt := mq.NewRedisTransport(client, "", logger)
		source := func(ctx context.Context, h mq.MessageHandler) error {
			return rt.ConsumeWorker(ctx, workerID, h)
		}
		return rt, source, rt, nil

	default:
		return nil, nil, nil, errors.New("worker requires amqp or redis transport")
	}
}

// logStrategy журналирует полученные данные.
func logStrategy(logger *slog.Logger) worker.StrategyFunc {
	return func(_ context.Context, md worker.MarketData) error {
		logger.Debug("market data",
			"symbol", md.Symbol,
			"data_type", md.DataType,
			"source", md.Source,
			"fields", md.Data.Keys(),
		)
		return nil
	}
}
