// Package protocol описывает формат сообщений между host-процессом и воркерами.
//
// Структура:
//   - message.go      — конверт Message и типы сообщений
//   - value.go        — Value/Payload: типизированные значения payload
//   - codec.go        — Encode/Decode (UTF-8 JSON)
//   - constructors.go — конструкторы типовых сообщений
//   - topic.go        — имена топиков
//
// Формат на проводе:
//
//	{"msg_type": "heartbeat", "worker_id": "w1", "payload": {}, "timestamp": 1700000000.5, "msg_id": null}
//
// Топики:
//   - market.<symbol>.<data_type> — рыночные данные
//   - control.<worker_id>         — команды воркеру
//   - status.<worker_id>          — статусы от воркера
package protocol
