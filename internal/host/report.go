package host

import (
	"context"
)

// ReportStats пишет в лог сводку по Supervisor и Broker.
// Запускается по StatsSchedule.
func (h *Host) ReportStats(ctx context.Context) {
	sup := h.supervisor.Stats()
	brk := h.broker.Stats()

	h.logger.InfoContext(ctx, "fleet stats",
		"workers", sup.TotalWorkers,
		"healthy", sup.HealthyWorkers,
		"unhealthy", sup.UnhealthyWorkers,
		"restarts", sup.TotalRestarts,
		"subscriptions", brk.TotalSubscriptions,
		"topics", brk.TotalTopics,
		"published", brk.MessagesPublished,
		"dropped", brk.MessagesDropped,
	)

	for id, r := range h.supervisor.AllHealthReports() {
		if r.IsHealthy {
			continue
		}
		h.logger.WarnContext(ctx, "unhealthy worker",
			"worker_id", id,
			"state", r.State,
			"consecutive_failures", r.ConsecutiveFailures,
			"restart_recommended", r.RestartRecommended,
		)
	}
}
