package api

import (
	"github.com/shaiso/stratvisor/internal/broker"
	"github.com/shaiso/stratvisor/internal/domain"
)

// Worker DTOs

// WorkerResponse — ответ с воркером.
type WorkerResponse struct {
	domain.WorkerSnapshot
	Subscription *SubscriptionResponse `json:"subscription,omitempty"`
}

// SubscriptionResponse — подписка воркера на данные.
type SubscriptionResponse struct {
	Symbols   []string `json:"symbols"`
	DataTypes []string `json:"data_types"`
	Topics    []string `json:"topics"`
}

// SubscriptionFromBroker конвертирует broker.DataSubscription в SubscriptionResponse.
func SubscriptionFromBroker(s *broker.DataSubscription) *SubscriptionResponse {
	if s == nil {
		return nil
	}
	return &SubscriptionResponse{
		Symbols:   s.Symbols(),
		DataTypes: s.DataTypes(),
		Topics:    s.Topics(),
	}
}

// Broker DTOs

// TopicResponse — топик и число подписчиков.
type TopicResponse struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

// SubscribersResponse — подписчики топика.
type SubscribersResponse struct {
	Symbol   string   `json:"symbol"`
	DataType string   `json:"data_type"`
	Workers  []string `json:"workers"`
}

// HealthzResponse — ответ /healthz.
type HealthzResponse struct {
	Status            string  `json:"status"`
	UptimeSec         float64 `json:"uptime"`
	SupervisorRunning bool    `json:"supervisor_running"`
}
