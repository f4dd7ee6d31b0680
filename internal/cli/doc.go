// Package cli реализует инструмент командной строки stratvisor.
//
// # Обзор
//
// CLI — клиентская утилита для просмотра состояния хоста через его
// HTTP API. Работает через HTTP, не импортирует внутренние пакеты.
// Управлять воркерами через CLI нельзя: API только читает состояние.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API хоста. Инкапсулирует запросы, парсинг ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8090")
//	workers, err := client.ListWorkers("")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stratvisor workers list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workers: list, show, health
//   - supervisor: stats
//   - broker: stats, topics, subscribers
//
// Каждая группа создаётся через фабричную функцию (NewWorkersCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
