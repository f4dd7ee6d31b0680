package api

import (
	"net/http"

	"github.com/shaiso/stratvisor/internal/domain"
	"github.com/shaiso/stratvisor/internal/telemetry"
)

// ListWorkers возвращает список воркеров.
// GET /api/v1/workers?state=...
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	var filter domain.WorkerState
	if s := r.URL.Query().Get("state"); s != "" {
		state, err := domain.ParseWorkerState(s)
		if err != nil {
			BadRequest(w, "invalid state")
			return
		}
		filter = state
	}

	ids := h.supervisor.WorkerIDs()
	result := make([]WorkerResponse, 0, len(ids))
	for _, id := range ids {
		resp, ok := h.workerResponse(id)
		if !ok {
			continue
		}
		if filter != "" && resp.State != filter {
			continue
		}
		result = append(result, resp)
	}

	List(w, result, len(result))
}

// GetWorker возвращает воркер по ID.
// GET /api/v1/workers/{id}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.workerResponse(r.PathValue("id"))
	if !ok {
		telemetry.FromContext(r.Context()).Debug("worker not found")
		NotFound(w, "worker not found")
		return
	}
	Success(w, resp)
}

// GetWorkerHealth возвращает отчёт о здоровье воркера.
// GET /api/v1/workers/{id}/health
func (h *Handler) GetWorkerHealth(w http.ResponseWriter, r *http.Request) {
	report, ok := h.supervisor.HealthReport(r.PathValue("id"))
	if !ok {
		telemetry.FromContext(r.Context()).Debug("worker not found")
		NotFound(w, "worker not found")
		return
	}
	Success(w, report)
}

// workerResponse собирает снимок воркера с его подпиской.
// Здоровье считается по таймауту supervisor.
func (h *Handler) workerResponse(workerID string) (WorkerResponse, bool) {
	status, ok := h.supervisor.Worker(workerID)
	if !ok {
		return WorkerResponse{}, false
	}

	resp := WorkerResponse{WorkerSnapshot: status.Snapshot(h.supervisor.HealthCheck().HeartbeatTimeout)}
	if sub, ok := h.broker.Subscription(workerID); ok {
		resp.Subscription = SubscriptionFromBroker(sub)
	}
	return resp, true
}
