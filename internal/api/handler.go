package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/supervisor"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	supervisor *supervisor.Supervisor
	broker     *broker.Broker
	startTime  time.Time
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Supervisor *supervisor.Supervisor
	Broker     *broker.Broker
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		supervisor: cfg.Supervisor,
		broker:     cfg.Broker,
		startTime:  time.Now(),
		logger:     logger,
	}
}
