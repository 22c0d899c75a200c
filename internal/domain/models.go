package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type MonitorID string

// Status is the last known classification of a monitor or a single check.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

type Monitor struct {
	ID                 MonitorID  `json:"id"`
	OwnerID            string     `json:"owner_id"`
	Name               string     `json:"name"`
	URL                string     `json:"url"`
	Method             string     `json:"method"`
	ExpectedStatus     int        `json:"expected_status"`
	CheckIntervalS     int        `json:"check_interval"` // seconds
	TimeoutMS          int        `json:"timeout_ms"`
	Headers            string     `json:"headers,omitempty"` // JSON object as stored
	Body               string     `json:"body,omitempty"`
	Active             bool       `json:"active"`
	Status             Status     `json:"current_status"`
	LastCheckedAt      *time.Time `json:"last_checked_at"`
	LastResponseTimeMS *int64     `json:"last_response_time_ms"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (m *Monitor) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalS) * time.Second
}

func (m *Monitor) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// HeaderMap decodes the stored header JSON. Anything that is not a JSON
// object yields an empty map.
func (m *Monitor) HeaderMap() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(m.Headers) == "" {
		return out
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(m.Headers), &raw); err != nil {
		return out
	}
	for k, v := range raw {
		switch vv := v.(type) {
		case string:
			out[k] = vv
		case nil:
		default:
			b, _ := json.Marshal(vv)
			out[k] = string(b)
		}
	}
	return out
}

// Limits holds the registry's write-time bounds.
type Limits struct {
	MinInterval      time.Duration
	MaxInterval      time.Duration
	DefaultInterval  time.Duration
	DefaultTimeoutMS int
}

var DefaultLimits = Limits{
	MinInterval:      30 * time.Second,
	MaxInterval:      3600 * time.Second,
	DefaultInterval:  60 * time.Second,
	DefaultTimeoutMS: 10000,
}

// ClampInterval returns the interval in seconds bounded by lim. Zero or
// negative input selects the default.
func ClampInterval(seconds int, lim Limits) int {
	if seconds <= 0 {
		seconds = int(lim.DefaultInterval / time.Second)
	}
	lo := int(lim.MinInterval / time.Second)
	hi := int(lim.MaxInterval / time.Second)
	if seconds < lo {
		return lo
	}
	if seconds > hi {
		return hi
	}
	return seconds
}

// Normalize applies the registry invariants before a monitor is written.
func (m *Monitor) Normalize(lim Limits) {
	m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
	if m.Method == "" {
		m.Method = "GET"
	}
	if m.ExpectedStatus == 0 {
		m.ExpectedStatus = 200
	}
	m.CheckIntervalS = ClampInterval(m.CheckIntervalS, lim)
	if m.TimeoutMS <= 0 {
		m.TimeoutMS = lim.DefaultTimeoutMS
	}
	if m.Headers == "" {
		m.Headers = "{}"
	}
	if m.Status == "" {
		m.Status = StatusUnknown
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}
