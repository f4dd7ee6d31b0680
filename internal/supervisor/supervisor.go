package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// HealthHandler вызывается после проверки здоровья воркера.
// Сейчас вызывается только при неудачной проверке (healthy=false).
type HealthHandler func(workerID string, healthy bool)

// RestartHandler вызывается после RecordRestart с числом рестартов в окне.
type RestartHandler func(workerID string, restartCount int)

// Supervisor отслеживает здоровье воркеров и политику рестартов.
//
// Supervisor — агрегат, который:
//   - Владеет WorkerStatus каждого воркера
//   - Ведёт окна heartbeat и рестартов
//   - Периодически проверяет здоровье (Start/Stop)
//   - Уведомляет health/restart обработчики
//
// Все методы потокобезопасны. Операции над неизвестным воркером
// возвращают false/пустой результат: запрос после Unregister — нормальная гонка.
type Supervisor struct {
	policy RestartPolicy
	health HealthCheckConfig

	mu         sync.RWMutex
	workers    map[string]*domain.WorkerStatus
	heartbeats map[string]*timeWindow
	restarts   map[string]*timeWindow
	unhealthy  map[string]int // подряд идущие неудачные проверки

	handlersMu      sync.RWMutex
	healthHandlers  []HealthHandler
	restartHandlers []RestartHandler

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	runningMu  sync.Mutex
}

// Config — конфигурация Supervisor.
type Config struct {
	// RestartPolicy — политика рестартов (незаданные поля — по умолчанию).
	RestartPolicy RestartPolicy

	// HealthCheck — параметры проверки здоровья (незаданные поля — по умолчанию).
	HealthCheck HealthCheckConfig

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Clock — источник времени (опционально, для тестов).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Supervisor{
		policy:     cfg.RestartPolicy.withDefaults(),
		health:     cfg.HealthCheck.withDefaults(),
		workers:    make(map[string]*domain.WorkerStatus),
		heartbeats: make(map[string]*timeWindow),
		restarts:   make(map[string]*timeWindow),
		unhealthy:  make(map[string]int),
		logger:     logger,
		metrics:    cfg.Metrics,
		now:        now,
	}
}

// RestartPolicy возвращает действующую политику рестартов.
func (s *Supervisor) RestartPolicy() RestartPolicy {
	return s.policy
}

// HealthCheck возвращает действующие параметры проверки здоровья.
func (s *Supervisor) HealthCheck() HealthCheckConfig {
	return s.health
}

// --- Регистрация ---

// Register регистрирует воркер и создаёт для него пустые окна истории.
func (s *Supervisor) Register(workerID string, status *domain.WorkerStatus) error {
	if workerID == "" {
		return ErrEmptyWorkerID
	}
	if status == nil {
		return ErrNilStatus
	}

	s.mu.Lock()
	if _, exists := s.workers[workerID]; exists {
		s.mu.Unlock()
		return ErrWorkerAlreadyRegistered
	}
	s.workers[workerID] = status
	s.heartbeats[workerID] = &timeWindow{}
	s.restarts[workerID] = &timeWindow{}
	s.unhealthy[workerID] = 0
	total := len(s.workers)
	s.mu.Unlock()

	s.metrics.SetWorkers(total)
	s.logger.Info("worker registered",
		"worker_id", workerID,
		"strategy", status.StrategyPath,
		"symbols", status.Symbols,
	)
	return nil
}

// Unregister снимает воркер с учёта вместе с его историей.
// Возвращает false, если воркер не был зарегистрирован.
func (s *Supervisor) Unregister(workerID string) bool {
	s.mu.Lock()
	if _, exists := s.workers[workerID]; !exists {
		s.mu.Unlock()
		return false
	}
	delete(s.workers, workerID)
	delete(s.heartbeats, workerID)
	delete(s.restarts, workerID)
	delete(s.unhealthy, workerID)
	total := len(s.workers)
	s.mu.Unlock()

	s.metrics.SetWorkers(total)
	s.metrics.ForgetWorker(workerID)
	s.logger.Info("worker unregistered", "worker_id", workerID)
	return true
}

// ReplaceStatus подменяет WorkerStatus зарегистрированного воркера,
// например после рестарта процесса. Окно рестартов сохраняется,
// окно heartbeat и счётчик неудачных проверок сбрасываются.
// Возвращает false для неизвестного воркера или nil status.
func (s *Supervisor) ReplaceStatus(workerID string, status *domain.WorkerStatus) bool {
	if status == nil {
		return false
	}

	s.mu.Lock()
	if _, exists := s.workers[workerID]; !exists {
		s.mu.Unlock()
		return false
	}
	s.workers[workerID] = status
	s.heartbeats[workerID] = &timeWindow{}
	s.unhealthy[workerID] = 0
	s.mu.Unlock()

	s.logger.Info("worker status replaced",
		"worker_id", workerID,
		"state", status.State(),
	)
	return true
}

// Worker возвращает WorkerStatus воркера.
func (s *Supervisor) Worker(workerID string) (*domain.WorkerStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.workers[workerID]
	return status, ok
}

// WorkerIDs возвращает отсортированный список зарегистрированных воркеров.
func (s *Supervisor) WorkerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workerIDsLocked()
}

func (s *Supervisor) workerIDsLocked() []string {
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// --- События от менеджера процессов ---

// UpdateHeartbeat фиксирует heartbeat воркера.
//
// Отметка добавляется в окно истории, затем из окна удаляются отметки
// старше HeartbeatTimeout. Возвращает false для неизвестного воркера.
func (s *Supervisor) UpdateHeartbeat(workerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.workers[workerID]
	if !ok {
		return false
	}

	now := s.now()
	status.UpdateHeartbeat()

	window := s.heartbeats[workerID]
	window.Append(now)
	window.PruneBefore(now.Add(-s.health.HeartbeatTimeout))
	return true
}

// UpdateState переводит воркер в новое состояние.
// Возвращает false для неизвестного воркера или недопустимого перехода.
func (s *Supervisor) UpdateState(workerID string, state domain.WorkerState) bool {
	status, ok := s.Worker(workerID)
	if !ok {
		return false
	}

	from := status.State()
	if !status.UpdateState(state) {
		s.logger.Warn("invalid worker state transition",
			"worker_id", workerID,
			"from", from,
			"to", state,
		)
		return false
	}

	s.logger.Info("worker state changed",
		"worker_id", workerID,
		"from", from,
		"to", state,
	)
	return true
}

// RecordError фиксирует ошибку воркера.
// Возвращает false для неизвестного воркера.
func (s *Supervisor) RecordError(workerID, msg string) bool {
	status, ok := s.Worker(workerID)
	if !ok {
		return false
	}

	status.RecordError(msg)
	s.logger.Warn("worker error recorded",
		"worker_id", workerID,
		"error", msg,
		"errors_count", status.ErrorsCount(),
	)
	return true
}

// RecordRestart фиксирует рестарт воркера и уведомляет restart-обработчики.
//
// Отметка добавляется в окно, отметки старше RestartWindow удаляются,
// обработчики получают число рестартов в окне.
// Возвращает false для неизвестного воркера.
func (s *Supervisor) RecordRestart(workerID string) bool {
	s.mu.Lock()
	if _, ok := s.workers[workerID]; !ok {
		s.mu.Unlock()
		return false
	}

	now := s.now()
	window := s.restarts[workerID]
	window.Append(now)
	window.PruneBefore(now.Add(-s.policy.RestartWindow))
	count := window.Len()
	s.mu.Unlock()

	s.metrics.Restarted(workerID)
	s.logger.Info("worker restart recorded",
		"worker_id", workerID,
		"restarts_in_window", count,
	)

	s.handlersMu.RLock()
	handlers := append([]RestartHandler(nil), s.restartHandlers...)
	s.handlersMu.RUnlock()

	for i, h := range handlers {
		s.invokeRestart(i, h, workerID, count)
	}
	return true
}

// --- Рекомендации ---

// IsHealthy возвращает true, если воркер в RUNNING и heartbeat моложе HeartbeatTimeout.
// Неизвестный воркер — false.
func (s *Supervisor) IsHealthy(workerID string) bool {
	status, ok := s.Worker(workerID)
	if !ok {
		return false
	}
	return status.IsHealthy(s.health.HeartbeatTimeout)
}

// restartCountLocked возвращает число рестартов в окне.
// Вызывается под s.mu (чтение).
func (s *Supervisor) restartCountLocked(workerID string) int {
	window, ok := s.restarts[workerID]
	if !ok {
		return 0
	}
	return window.CountSince(s.now().Add(-s.policy.RestartWindow))
}

// RestartCount возвращает число рестартов воркера в текущем окне.
func (s *Supervisor) RestartCount(workerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCountLocked(workerID)
}

// ShouldRestart возвращает true, если рестартов в окне меньше MaxRestarts.
// Достигнув MaxRestarts, воркер блокируется до выхода рестартов из окна.
// Неизвестный воркер — false.
func (s *Supervisor) ShouldRestart(workerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.workers[workerID]; !ok {
		return false
	}
	return s.restartCountLocked(workerID) < s.policy.MaxRestarts
}

// RestartDelay возвращает рекомендуемую задержку перед следующим рестартом.
func (s *Supervisor) RestartDelay(workerID string) time.Duration {
	return s.policy.Backoff(s.RestartCount(workerID))
}

// IsRestartRecommended возвращает true, если воркер был нездоров
// UnhealthyThreshold проверок подряд.
func (s *Supervisor) IsRestartRecommended(workerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unhealthy[workerID] >= s.health.UnhealthyThreshold
}

// ConsecutiveFailures возвращает число неудачных проверок подряд.
func (s *Supervisor) ConsecutiveFailures(workerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unhealthy[workerID]
}

// --- Обработчики ---

// OnHealthChange регистрирует health-обработчик.
func (s *Supervisor) OnHealthChange(h HealthHandler) {
	if h == nil {
		return
	}
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.healthHandlers = append(s.healthHandlers, h)
}

// OnRestart регистрирует restart-обработчик.
func (s *Supervisor) OnRestart(h RestartHandler) {
	if h == nil {
		return
	}
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.restartHandlers = append(s.restartHandlers, h)
}

func (s *Supervisor) invokeHealth(idx int, h HealthHandler, workerID string, healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerPanicked("health")
			s.logger.Error("health handler panicked",
				"handler", idx,
				"worker_id", workerID,
				"panic", r,
			)
		}
	}()
	h(workerID, healthy)
}

func (s *Supervisor) invokeRestart(idx int, h RestartHandler, workerID string, count int) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerPanicked("restart")
			s.logger.Error("restart handler panicked",
				"handler", idx,
				"worker_id", workerID,
				"panic", r,
			)
		}
	}()
	h(workerID, count)
}
