package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/shaiso/stratvisor/internal/broker"
)

// Healthz — проверка живости хоста.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthzResponse{
		Status:            "ok",
		UptimeSec:         time.Since(h.startTime).Seconds(),
		SupervisorRunning: h.supervisor.IsRunning(),
	})
}

// SupervisorStats возвращает статистику supervisor.
// GET /api/v1/supervisor/stats
func (h *Handler) SupervisorStats(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.supervisor.Stats())
}

// BrokerStats возвращает статистику broker.
// GET /api/v1/broker/stats
func (h *Handler) BrokerStats(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.broker.Stats())
}

// BrokerTopics возвращает топики с числом подписчиков.
// GET /api/v1/broker/topics
func (h *Handler) BrokerTopics(w http.ResponseWriter, _ *http.Request) {
	stats := h.broker.TopicStats()

	result := make([]TopicResponse, 0, len(stats))
	for topic, n := range stats {
		result = append(result, TopicResponse{Topic: topic, Subscribers: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Topic < result[j].Topic })

	List(w, result, len(result))
}

// BrokerSubscribers возвращает подписчиков топика.
// GET /api/v1/broker/subscribers?symbol=...&data_type=...
func (h *Handler) BrokerSubscribers(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		BadRequest(w, "symbol is required")
		return
	}
	dataType := r.URL.Query().Get("data_type")
	if dataType == "" {
		dataType = broker.DefaultDataType
	}

	workers := h.broker.Subscribers(symbol, dataType)
	if workers == nil {
		workers = []string{}
	}

	Success(w, SubscribersResponse{
		Symbol:   symbol,
		DataType: dataType,
		Workers:  workers,
	})
}
