// Package telemetry обеспечивает наблюдаемость host-процесса.
//
// Включает:
//   - logging.go — structured logging через slog, ротация файла через lumberjack
//   - metrics.go — Prometheus метрики supervisor, брокера и host
//
// Метрики экспортируются на /metrics endpoint.
package telemetry
