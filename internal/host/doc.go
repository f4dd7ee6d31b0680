// Package host связывает Supervisor и Broker с транспортом.
//
// Host отвечает за:
//   - Приём входящих сообщений воркеров и адаптеров бирж
//   - Применение heartbeat, status_update и error к Supervisor
//   - Маршрутизацию market_data через Broker
//   - Регистрацию воркеров и отправку им команд
//   - Периодический отчёт о состоянии флота
//
// Host не запускает и не перезапускает процессы воркеров: рекомендации
// Supervisor только логируются.
package host
