// Package scheduler запускает периодические задачи host по cron-расписанию.
//
// Структура:
//   - scheduler.go — Scheduler (Add, Start, Stop, RunNow)
//   - cron.go      — парсинг расписаний и адаптер логгера для robfig/cron
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{Logger: logger})
//	if err := sched.Add("stats", "@every 1m", reportStats); err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Паника задачи перехватывается, повторный запуск пропускается,
// пока предыдущий не завершился.
package scheduler
