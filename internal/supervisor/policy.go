package supervisor

import (
	"encoding/json"
	"time"
)

// Значения по умолчанию.
const (
	DefaultMaxRestarts   = 3
	DefaultRestartWindow = 300 * time.Second
	DefaultBackoffBase   = time.Second
	DefaultBackoffMax    = 60 * time.Second

	DefaultHeartbeatTimeout   = 30 * time.Second
	DefaultCheckInterval      = 10 * time.Second
	DefaultUnhealthyThreshold = 3
)

// RestartPolicy — политика рестартов воркера.
type RestartPolicy struct {
	// MaxRestarts — сколько рестартов допускается внутри RestartWindow.
	MaxRestarts int `yaml:"max_restarts"`

	// RestartWindow — окно, в котором считаются рестарты.
	RestartWindow time.Duration `yaml:"restart_window"`

	// BackoffBase — задержка перед первым рестартом.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMax — максимальная задержка.
	BackoffMax time.Duration `yaml:"backoff_max"`
}

// DefaultRestartPolicy возвращает политику по умолчанию (3 рестарта за 300s, backoff 1s..60s).
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRestarts:   DefaultMaxRestarts,
		RestartWindow: DefaultRestartWindow,
		BackoffBase:   DefaultBackoffBase,
		BackoffMax:    DefaultBackoffMax,
	}
}

// withDefaults заполняет незаданные поля значениями по умолчанию.
func (p RestartPolicy) withDefaults() RestartPolicy {
	d := DefaultRestartPolicy()
	if p.MaxRestarts <= 0 {
		p.MaxRestarts = d.MaxRestarts
	}
	if p.RestartWindow <= 0 {
		p.RestartWindow = d.RestartWindow
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = d.BackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = d.BackoffMax
	}
	return p
}

// Backoff возвращает задержку перед рестартом при restarts рестартах в окне.
//
// delay = BackoffBase * 2^(restarts-1), не больше BackoffMax; 0 рестартов — 0.
func (p RestartPolicy) Backoff(restarts int) time.Duration {
	if restarts <= 0 {
		return 0
	}

	delay := p.BackoffBase
	for i := 1; i < restarts; i++ {
		delay *= 2
		if delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}

	if delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}

// MarshalJSON выводит длительности в секундах.
func (p RestartPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MaxRestarts   int     `json:"max_restarts"`
		RestartWindow float64 `json:"restart_window"`
		BackoffBase   float64 `json:"backoff_base"`
		BackoffMax    float64 `json:"backoff_max"`
	}{
		MaxRestarts:   p.MaxRestarts,
		RestartWindow: p.RestartWindow.Seconds(),
		BackoffBase:   p.BackoffBase.Seconds(),
		BackoffMax:    p.BackoffMax.Seconds(),
	})
}

// HealthCheckConfig — параметры проверки здоровья.
type HealthCheckConfig struct {
	// HeartbeatTimeout — максимальный возраст последнего heartbeat.
	// Он же — окно истории heartbeat.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// CheckInterval — период фоновой проверки.
	CheckInterval time.Duration `yaml:"check_interval"`

	// UnhealthyThreshold — сколько неудачных проверок подряд нужно
	// для рекомендации рестарта.
	UnhealthyThreshold int `yaml:"unhealthy_threshold"`
}

// DefaultHealthCheckConfig возвращает параметры по умолчанию (30s, 10s, 3).
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		HeartbeatTimeout:   DefaultHeartbeatTimeout,
		CheckInterval:      DefaultCheckInterval,
		UnhealthyThreshold: DefaultUnhealthyThreshold,
	}
}

// withDefaults заполняет незаданные поля значениями по умолчанию.
func (c HealthCheckConfig) withDefaults() HealthCheckConfig {
	d := DefaultHealthCheckConfig()
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = d.UnhealthyThreshold
	}
	return c
}

// MarshalJSON выводит длительности в секундах.
func (c HealthCheckConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HeartbeatTimeout   float64 `json:"heartbeat_timeout"`
		CheckInterval      float64 `json:"check_interval"`
		UnhealthyThreshold int     `json:"unhealthy_threshold"`
	}{
		HeartbeatTimeout:   c.HeartbeatTimeout.Seconds(),
		CheckInterval:      c.CheckInterval.Seconds(),
		UnhealthyThreshold: c.UnhealthyThreshold,
	})
}
