// Package supervisor отслеживает здоровье воркеров и даёт рекомендации по рестартам.
//
// # Обзор
//
// Supervisor владеет WorkerStatus каждого зарегистрированного воркера,
// историей heartbeat и рестартов. Внешний менеджер процессов сообщает
// о событиях (Register, UpdateHeartbeat, UpdateState, RecordRestart),
// а Supervisor отвечает на вопросы:
//
//   - IsHealthy — воркер в RUNNING и heartbeat свежий
//   - ShouldRestart — рестартов в окне меньше MaxRestarts (circuit breaker)
//   - RestartDelay — exponential backoff: base * 2^(n-1), не больше BackoffMax
//   - IsRestartRecommended — воркер нездоров UnhealthyThreshold проверок подряд
//
// Supervisor сам ничего не перезапускает: это только рекомендации.
//
// # Фоновая проверка
//
// Start запускает горутину, которая каждые CheckInterval проверяет всех
// воркеров. Нездоровый воркер увеличивает счётчик подряд идущих неудач
// и вызывает health-обработчики с healthy=false. Восстановление сбрасывает
// счётчик без вызова обработчиков.
//
//	sup := supervisor.New(supervisor.Config{Logger: logger})
//	sup.OnHealthChange(func(id string, healthy bool) { ... })
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sup.Stop()
//
// # Обработчики
//
// Health- и restart-обработчики вызываются синхронно, в порядке регистрации,
// вне блокировок. Паника обработчика перехватывается и логируется.
package supervisor
