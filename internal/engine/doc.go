// Package engine содержит обобщённый конечный автомат.
//
// StateMachine хранит текущее состояние, историю переходов и обработчики
// входа в состояние. Допустимость перехода определяет TransitionFunc,
// поэтому один автомат обслуживает любой набор состояний: domain
// использует его для жизненного цикла воркера.
package engine
