package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultHeartbeatInterval — период heartbeat воркера по умолчанию.
const DefaultHeartbeatInterval = 5 * time.Second

// WorkerConfig — параметры процесса воркера. Транспорт берётся из Config.
type WorkerConfig struct {
	WorkerID          string
	StrategyPath      string
	Symbols           []string
	DataTypes         []string
	HeartbeatInterval time.Duration
	AutoStart         bool
}

// LoadWorker читает параметры воркера из окружения:
// WORKER_ID, STRATEGY_PATH, SYMBOLS и DATA_TYPES (через запятую),
// HEARTBEAT_INTERVAL, AUTO_START.
func LoadWorker() (WorkerConfig, error) {
	cfg := WorkerConfig{
		WorkerID:          os.Getenv("WORKER_ID"),
		StrategyPath:      os.Getenv("STRATEGY_PATH"),
		Symbols:           splitList(os.Getenv("SYMBOLS")),
		DataTypes:         splitList(os.Getenv("DATA_TYPES")),
		HeartbeatInterval: DefaultHeartbeatInterval,
	}

	var errs []error
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HEARTBEAT_INTERVAL: %w", err))
		}
		cfg.HeartbeatInterval = d
	}
	if v := os.Getenv("AUTO_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AUTO_START: %w", err))
		}
		cfg.AutoStart = b
	}

	if cfg.WorkerID == "" {
		errs = append(errs, errors.New("WORKER_ID is required"))
	}
	if cfg.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
