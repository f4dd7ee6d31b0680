package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Значения ротации по умолчанию.
const (
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// LogConfig — параметры логирования.
type LogConfig struct {
	// Format — "json" (по умолчанию) или "text".
	Format string

	// Level — DEBUG, INFO, WARN, ERROR.
	Level string

	// File — путь к файлу лога. Пусто — stdout.
	File string

	// Ротация файла (lumberjack).
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogConfigFromEnv читает LogConfig из переменных окружения:
// LOG_FORMAT, LOG_LEVEL, LOG_FILE, LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS.
func LogConfigFromEnv() LogConfig {
	return LogConfig{
		Format:     os.Getenv("LOG_FORMAT"),
		Level:      os.Getenv("LOG_LEVEL"),
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  envInt("LOG_MAX_SIZE_MB"),
		MaxBackups: envInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: envInt("LOG_MAX_AGE_DAYS"),
	}
}

func envInt(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return n
}

// ParseLevel переводит строку в уровень логирования.
// По умолчанию: INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogLevel определяет уровень логирования из LOG_LEVEL.
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger создаёт логгер по конфигурации.
//
// Если задан File, вывод идёт в файл с ротацией. Возвращённый io.Closer
// закрывает файл; для stdout это no-op.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultLogMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultLogMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultLogMaxAgeDays),
		}
		w, closer = lj, lj
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), closer
}

// SetupLogger инициализирует глобальный логгер из переменных окружения.
func SetupLogger() (*slog.Logger, io.Closer) {
	logger, closer := NewLogger(LogConfigFromEnv())
	slog.SetDefault(logger)
	return logger, closer
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithWorkerID возвращает логгер с добавленным worker_id.
func WithWorkerID(logger *slog.Logger, workerID string) *slog.Logger {
	return logger.With("worker_id", workerID)
}

// WithMsgID возвращает логгер с добавленным msg_id.
func WithMsgID(logger *slog.Logger, msgID string) *slog.Logger {
	return logger.With("msg_id", msgID)
}
