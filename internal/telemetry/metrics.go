package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stratvisor"

// Причины отбрасывания сообщений брокером.
const (
	DropReasonFiltered  = "filtered"
	DropReasonTransport = "transport"
)

// Metrics — Prometheus метрики supervisor и брокера.
//
// Все методы безопасны для nil-получателя: компоненты, созданные без метрик,
// просто ничего не экспортируют.
type Metrics struct {
	messagesPublished  prometheus.Counter
	messagesDropped    *prometheus.CounterVec
	preprocessorErrors *prometheus.CounterVec
	subscriptions      prometheus.Gauge
	topics             prometheus.Gauge

	workersRegistered prometheus.Gauge
	workersHealthy    prometheus.Gauge
	healthCheckFails  *prometheus.CounterVec
	restarts          *prometheus.CounterVec
	handlerPanics     *prometheus.CounterVec
	inboundMessages   *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		messagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_published_total",
			Help:      "Market data messages delivered to all subscribers.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_dropped_total",
			Help:      "Market data messages dropped by preprocessors or transport.",
		}, []string{"reason"}),
		preprocessorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "preprocessor_errors_total",
			Help:      "Preprocessor failures (errors and panics).",
		}, []string{"preprocessor"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "subscriptions",
			Help:      "Workers with an active data subscription.",
		}),
		topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "topics",
			Help:      "Topics with at least one subscriber.",
		}),
		workersRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "workers",
			Help:      "Registered workers.",
		}),
		workersHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "workers_healthy",
			Help:      "Workers healthy at the last health check pass.",
		}),
		healthCheckFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "health_check_failures_total",
			Help:      "Failed health checks per worker.",
		}, []string{"worker_id"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Recorded worker restarts.",
		}, []string{"worker_id"}),
		handlerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "handler_panics_total",
			Help:      "Recovered panics in health and restart handlers.",
		}, []string{"kind"}),
		inboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "inbound_messages_total",
			Help:      "Messages received from workers and feeds, by type.",
		}, []string{"msg_type"}),
	}

	reg.MustRegister(
		m.messagesPublished,
		m.messagesDropped,
		m.preprocessorErrors,
		m.subscriptions,
		m.topics,
		m.workersRegistered,
		m.workersHealthy,
		m.healthCheckFails,
		m.restarts,
		m.handlerPanics,
		m.inboundMessages,
	)

	return m
}

// MessagePublished увеличивает счётчик доставленных сообщений.
func (m *Metrics) MessagePublished() {
	if m == nil {
		return
	}
	m.messagesPublished.Inc()
}

// MessageDropped увеличивает счётчик отброшенных сообщений.
func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// PreprocessorError учитывает сбой препроцессора.
func (m *Metrics) PreprocessorError(name string) {
	if m == nil {
		return
	}
	m.preprocessorErrors.WithLabelValues(name).Inc()
}

// SetRouting обновляет размеры таблицы маршрутизации.
func (m *Metrics) SetRouting(subscriptions, topics int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(subscriptions))
	m.topics.Set(float64(topics))
}

// SetWorkers обновляет количество зарегистрированных воркеров.
func (m *Metrics) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.workersRegistered.Set(float64(n))
}

// SetHealthyWorkers обновляет количество здоровых воркеров.
func (m *Metrics) SetHealthyWorkers(n int) {
	if m == nil {
		return
	}
	m.workersHealthy.Set(float64(n))
}

// HealthCheckFailed учитывает неудачную проверку здоровья.
func (m *Metrics) HealthCheckFailed(workerID string) {
	if m == nil {
		return
	}
	m.healthCheckFails.WithLabelValues(workerID).Inc()
}

// Restarted учитывает рестарт воркера.
func (m *Metrics) Restarted(workerID string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(workerID).Inc()
}

// ForgetWorker удаляет серии метрик воркера после его снятия с учёта.
func (m *Metrics) ForgetWorker(workerID string) {
	if m == nil {
		return
	}
	m.healthCheckFails.DeleteLabelValues(workerID)
	m.restarts.DeleteLabelValues(workerID)
}

// HandlerPanicked учитывает панику обработчика (kind: health, restart).
func (m *Metrics) HandlerPanicked(kind string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(kind).Inc()
}

// InboundMessage учитывает входящее сообщение.
func (m *Metrics) InboundMessage(msgType string) {
	if m == nil {
		return
	}
	m.inboundMessages.WithLabelValues(msgType).Inc()
}
