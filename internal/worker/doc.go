// Package worker — сторона воркера в протоколе stratvisor.
//
// # Обзор
//
// Worker живёт в процессе стратегии и общается с host только
// сообщениями протокола:
//
//   - при старте публикует status_update INITIALIZING с путём стратегии,
//     символами и типами данных, по которому host регистрирует воркер
//   - периодически отправляет heartbeat со счётчиками обработки
//   - выполняет команды start, stop, pause и resume, сообщая о каждой
//     смене состояния через status_update
//   - передаёт рыночные данные стратегии, пока находится в RUNNING
//   - сообщает об ошибках стратегии сообщением error
//
// Запуск процесса стратегии и её загрузка по пути вне пакета:
// Worker получает готовую реализацию Strategy.
//
//	w, err := worker.New(worker.Config{
//	    WorkerID:     "w1",
//	    StrategyPath: "strategies/momentum.py",
//	    Symbols:      []string{"BTC/USDT"},
//	    Strategy:     strategy,
//	    Publisher:    publisher,
//	    Source:       source,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Ошибки стратегии
//
// Ошибка OnData отправляется host как нефатальная. Паника стратегии
// отправляется как фатальная ошибка, и воркер переходит в ERROR:
// дальнейшие данные не обрабатываются, host решает о рестарте.
package worker
