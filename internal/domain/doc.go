// Package domain содержит модель воркера стратегии.
//
// WorkerState — состояния жизненного цикла и таблица допустимых
// переходов. WorkerStatus — наблюдаемое host состояние одного воркера:
// автомат состояний, heartbeat, ошибки и PID.
package domain
