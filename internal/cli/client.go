package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerResponse — воркер из API.
type WorkerResponse struct {
	WorkerID      string                `json:"worker_id"`
	StrategyPath  string                `json:"strategy_path"`
	Symbols       []string              `json:"symbols"`
	State         string                `json:"state"`
	PID           int                   `json:"pid,omitempty"`
	CreatedAt     string                `json:"created_at"`
	StartedAt     string                `json:"started_at,omitempty"`
	LastHeartbeat string                `json:"last_heartbeat,omitempty"`
	ErrorsCount   int                   `json:"errors_count"`
	LastError     string                `json:"last_error,omitempty"`
	LastErrorTime string                `json:"last_error_time,omitempty"`
	IsHealthy     bool                  `json:"is_healthy"`
	Subscription  *SubscriptionResponse `json:"subscription,omitempty"`
}

// SubscriptionResponse — подписка воркера из API.
type SubscriptionResponse struct {
	Symbols   []string `json:"symbols"`
	DataTypes []string `json:"data_types"`
	Topics    []string `json:"topics"`
}

// HealthReport — отчёт о здоровье воркера из API.
type HealthReport struct {
	WorkerID            string  `json:"worker_id"`
	State               string  `json:"state"`
	IsHealthy           bool    `json:"is_healthy"`
	RestartCount        int     `json:"restart_count"`
	HeartbeatCount      int     `json:"heartbeat_count"`
	LastHeartbeat       *string `json:"last_heartbeat"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	ShouldRestart       bool    `json:"should_restart"`
	RestartDelaySec     float64 `json:"restart_delay"`
	RestartRecommended  bool    `json:"restart_recommended"`
}

// SupervisorStats — статистика supervisor из API.
type SupervisorStats struct {
	TotalWorkers     int            `json:"total_workers"`
	HealthyWorkers   int            `json:"healthy_workers"`
	UnhealthyWorkers int            `json:"unhealthy_workers"`
	TotalRestarts    int            `json:"total_restarts"`
	Running          bool           `json:"running"`
	RestartPolicy    map[string]any `json:"restart_policy"`
	HealthCheck      map[string]any `json:"health_check"`
}

// BrokerStats — статистика broker из API.
type BrokerStats struct {
	TotalSubscriptions int      `json:"total_subscriptions"`
	TotalTopics        int      `json:"total_topics"`
	MessagesPublished  uint64   `json:"messages_published"`
	MessagesDropped    uint64   `json:"messages_dropped"`
	Preprocessors      []string `json:"preprocessors"`
}

// TopicResponse — топик из API.
type TopicResponse struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

// SubscribersResponse — подписчики топика из API.
type SubscribersResponse struct {
	Symbol   string   `json:"symbol"`
	DataType string   `json:"data_type"`
	Workers  []string `json:"workers"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API хоста.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workers ---

// ListWorkers возвращает воркеры. Непустой state фильтрует по состоянию.
func (c *Client) ListWorkers(state string) ([]WorkerResponse, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}

	var workers []WorkerResponse
	err := c.list("/api/v1/workers", params, &workers)
	return workers, err
}

// GetWorker возвращает воркер по ID.
func (c *Client) GetWorker(id string) (*WorkerResponse, error) {
	var worker WorkerResponse
	err := c.get("/api/v1/workers/"+url.PathEscape(id), nil, &worker)
	return &worker, err
}

// GetWorkerHealth возвращает отчёт о здоровье воркера.
func (c *Client) GetWorkerHealth(id string) (*HealthReport, error) {
	var report HealthReport
	err := c.get("/api/v1/workers/"+url.PathEscape(id)+"/health", nil, &report)
	return &report, err
}

// --- Supervisor ---

// SupervisorStats возвращает статистику supervisor.
func (c *Client) SupervisorStats() (*SupervisorStats, error) {
	var stats SupervisorStats
	err := c.get("/api/v1/supervisor/stats", nil, &stats)
	return &stats, err
}

// --- Broker ---

// BrokerStats возвращает статистику broker.
func (c *Client) BrokerStats() (*BrokerStats, error) {
	var stats BrokerStats
	err := c.get("/api/v1/broker/stats", nil, &stats)
	return &stats, err
}

// BrokerTopics возвращает топики с числом подписчиков.
func (c *Client) BrokerTopics() ([]TopicResponse, error) {
	var topics []TopicResponse
	err := c.list("/api/v1/broker/topics", nil, &topics)
	return topics, err
}

// BrokerSubscribers возвращает подписчиков топика symbol × dataType.
func (c *Client) BrokerSubscribers(symbol, dataType string) (*SubscribersResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if dataType != "" {
		params.Set("data_type", dataType)
	}

	var subs SubscribersResponse
	err := c.get("/api/v1/broker/subscribers", params, &subs)
	return &subs, err
}

// --- HTTP helpers ---

func (c *Client) list(path string, params url.Values, result any) error {
	resp, err := c.do(path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) get(path string, params url.Values, result any) error {
	resp, err := c.do(path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(dr.Data, result)
}

func (c *Client) do(path string, params url.Values) (*http.Response, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
