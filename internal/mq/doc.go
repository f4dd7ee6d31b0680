// Package mq — транспорт сообщений между host и воркерами.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — обменники, очереди host и очереди воркеров
//   - publisher.go  — публикация protocol.Message (реализует broker.Transport)
//   - consumer.go   — потребление и декодирование protocol.Message
//   - redis.go      — альтернативный транспорт через Redis Pub/Sub
//
// Exchanges:
//   - stratvisor.data    — рыночные данные воркерам (routing key = worker_id)
//   - stratvisor.control — команды воркерам (control.<worker_id>)
//   - stratvisor.status  — сообщения от воркеров (status.<worker_id>)
//   - stratvisor.feed    — рыночные данные от адаптеров бирж (market.<symbol>.<data_type>)
//   - stratvisor.dlq     — сообщения, которые не удалось разобрать
package mq
