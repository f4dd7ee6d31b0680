// Package api содержит read-only HTTP API хоста.
//
// Структура:
//   - handler.go        — Handler с DI (supervisor, broker, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы
//   - dto.go            — ответы API
//   - worker_handler.go — обработчики для /workers
//   - stats_handler.go  — статистика supervisor и broker
//
// API только читает состояние: управлять жизненным циклом воркеров
// через него нельзя.
package api
