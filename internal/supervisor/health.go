package supervisor

import (
	"context"
	"time"

	"github.com/shaiso/stratvisor/internal/domain"
)

// Start запускает фоновую проверку здоровья каждые CheckInterval.
// Повторный вызов при запущенной проверке ничего не делает.
func (s *Supervisor) Start(ctx context.Context) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		s.logger.Debug("supervisor already running")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	s.running = true

	s.logger.Info("starting supervisor",
		"check_interval", s.health.CheckInterval,
		"heartbeat_timeout", s.health.HeartbeatTimeout,
		"unhealthy_threshold", s.health.UnhealthyThreshold,
		"max_restarts", s.policy.MaxRestarts,
		"restart_window", s.policy.RestartWindow,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.healthLoop(ctx)
	}()

	return nil
}

// Stop останавливает фоновую проверку и ждёт выхода горутины.
// Идемпотентен. Текущая проверка не прерывается, она просто последняя.
func (s *Supervisor) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancelFunc
	s.cancelFunc = nil
	s.runningMu.Unlock()

	s.logger.Info("stopping supervisor...")

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.logger.Info("supervisor stopped")
}

// IsRunning проверяет, запущена ли фоновая проверка.
func (s *Supervisor) IsRunning() bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	return s.running
}

// healthLoop — цикл фоновой проверки.
func (s *Supervisor) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.health.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckAll()
		}
	}
}

// CheckAll выполняет один проход проверки здоровья по всем воркерам.
// Возвращает число здоровых воркеров.
func (s *Supervisor) CheckAll() int {
	healthy := 0
	for _, id := range s.WorkerIDs() {
		if s.checkWorkerHealth(id) {
			healthy++
		}
	}
	s.metrics.SetHealthyWorkers(healthy)
	return healthy
}

// checkWorkerHealth проверяет один воркер.
//
// Нездоровый воркер увеличивает счётчик подряд идущих неудач и вызывает
// health-обработчики с healthy=false. Здоровый — сбрасывает счётчик молча.
// Воркер, снятый с учёта во время проверки, пропускается.
func (s *Supervisor) checkWorkerHealth(workerID string) bool {
	s.mu.Lock()
	status, ok := s.workers[workerID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if status.IsHealthy(s.health.HeartbeatTimeout) {
		s.unhealthy[workerID] = 0
		s.mu.Unlock()
		return true
	}

	s.unhealthy[workerID]++
	failures := s.unhealthy[workerID]
	s.mu.Unlock()

	s.metrics.HealthCheckFailed(workerID)
	s.logger.Warn("worker unhealthy",
		"worker_id", workerID,
		"state", status.State(),
		"consecutive_failures", failures,
		"restart_recommended", failures >= s.health.UnhealthyThreshold,
	)

	s.handlersMu.RLock()
	handlers := append([]HealthHandler(nil), s.healthHandlers...)
	s.handlersMu.RUnlock()

	for i, h := range handlers {
		s.invokeHealth(i, h, workerID, false)
	}
	return false
}

// --- Отчёты ---

// HealthReport — снимок здоровья воркера.
type HealthReport struct {
	WorkerID            string             `json:"worker_id"`
	State               domain.WorkerState `json:"state"`
	IsHealthy           bool               `json:"is_healthy"`
	RestartCount        int                `json:"restart_count"`
	HeartbeatCount      int                `json:"heartbeat_count"`
	LastHeartbeat       *time.Time         `json:"last_heartbeat"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	ShouldRestart       bool               `json:"should_restart"`
	RestartDelaySec     float64            `json:"restart_delay"`
	RestartRecommended  bool               `json:"restart_recommended"`
}

// HealthReport возвращает снимок здоровья воркера.
// false для неизвестного воркера.
func (s *Supervisor) HealthReport(workerID string) (HealthReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthReportLocked(workerID)
}

// AllHealthReports возвращает снимки всех воркеров.
func (s *Supervisor) AllHealthReports() map[string]HealthReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make(map[string]HealthReport, len(s.workers))
	for id := range s.workers {
		if r, ok := s.healthReportLocked(id); ok {
			reports[id] = r
		}
	}
	return reports
}

func (s *Supervisor) healthReportLocked(workerID string) (HealthReport, bool) {
	status, ok := s.workers[workerID]
	if !ok {
		return HealthReport{}, false
	}

	now := s.now()
	restarts := s.restartCountLocked(workerID)
	failures := s.unhealthy[workerID]

	report := HealthReport{
		WorkerID:            workerID,
		State:               status.State(),
		IsHealthy:           status.IsHealthy(s.health.HeartbeatTimeout),
		RestartCount:        restarts,
		HeartbeatCount:      s.heartbeats[workerID].CountSince(now.Add(-s.health.HeartbeatTimeout)),
		ConsecutiveFailures: failures,
		ShouldRestart:       restarts < s.policy.MaxRestarts,
		RestartDelaySec:     s.policy.Backoff(restarts).Seconds(),
		RestartRecommended:  failures >= s.health.UnhealthyThreshold,
	}
	if last, ok := status.LastHeartbeat(); ok {
		report.LastHeartbeat = &last
	}
	return report, true
}

// Stats — агрегированная статистика supervisor.
type Stats struct {
	TotalWorkers     int               `json:"total_workers"`
	HealthyWorkers   int               `json:"healthy_workers"`
	UnhealthyWorkers int               `json:"unhealthy_workers"`
	TotalRestarts    int               `json:"total_restarts"`
	Running          bool              `json:"running"`
	RestartPolicy    RestartPolicy     `json:"restart_policy"`
	HealthCheck      HealthCheckConfig `json:"health_check"`
}

// Stats возвращает агрегированную статистику.
// TotalRestarts — сумма рестартов в текущих окнах всех воркеров.
func (s *Supervisor) Stats() Stats {
	running := s.IsRunning()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalWorkers:  len(s.workers),
		Running:       running,
		RestartPolicy: s.policy,
		HealthCheck:   s.health,
	}
	for id, status := range s.workers {
		if status.IsHealthy(s.health.HeartbeatTimeout) {
			stats.HealthyWorkers++
		}
		stats.TotalRestarts += s.restartCountLocked(id)
	}
	stats.UnhealthyWorkers = stats.TotalWorkers - stats.HealthyWorkers
	return stats
}
