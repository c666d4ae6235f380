package monitor

import "time"

type Status struct {
	Backend        bool          `json:"backend"`
	BackendStatus  string        `json:"backend_status,omitempty"`
	BackendLatency time.Duration `json:"backend_latency_ns"`
	BackendError   string        `json:"backend_error,omitempty"`
	Redis          bool          `json:"redis"`
	RedisEnabled   bool          `json:"redis_enabled"`
	LastCheck      time.Time     `json:"last_check"`
}

// Healthy is false only when a configured dependency is down.
func (s Status) Healthy() bool {
	return s.Backend && (s.Redis || !s.RedisEnabled)
}
