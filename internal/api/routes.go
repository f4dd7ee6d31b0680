package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Logging снаружи Recovery: паника пишется логгером запроса.
	chain := Chain(
		Logging(h.logger),
		Recovery(h.logger),
	)

	mux.HandleFunc("GET /healthz", h.Healthz)

	// Workers
	mux.Handle("GET /api/v1/workers", chain(http.HandlerFunc(h.ListWorkers)))
	mux.Handle("GET /api/v1/workers/{id}", chain(http.HandlerFunc(h.GetWorker)))
	mux.Handle("GET /api/v1/workers/{id}/health", chain(http.HandlerFunc(h.GetWorkerHealth)))

	// Supervisor
	mux.Handle("GET /api/v1/supervisor/stats", chain(http.HandlerFunc(h.SupervisorStats)))

	// Broker
	mux.Handle("GET /api/v1/broker/stats", chain(http.HandlerFunc(h.BrokerStats)))
	mux.Handle("GET /api/v1/broker/topics", chain(http.HandlerFunc(h.BrokerTopics)))
	mux.Handle("GET /api/v1/broker/subscribers", chain(http.HandlerFunc(h.BrokerSubscribers)))
}
