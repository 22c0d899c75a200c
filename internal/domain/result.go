package domain

import "time"

// CheckResult is one append-only row of check history.
type CheckResult struct {
	ID             int64     `json:"id"`
	MonitorID      MonitorID `json:"monitor_id"`
	Status         Status    `json:"status"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	HTTPStatus     *int      `json:"http_status"` // nil on transport errors
	Error          *string   `json:"error"`
	CheckedAt      time.Time `json:"checked_at"`
}

type IncidentStatus string

const (
	IncidentOngoing  IncidentStatus = "ongoing"
	IncidentResolved IncidentStatus = "resolved"
)

type Incident struct {
	ID         string         `json:"id"`
	MonitorID  MonitorID      `json:"monitor_id"`
	Status     IncidentStatus `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	ResolvedAt *time.Time     `json:"resolved_at"`
	Cause      *string        `json:"cause"`
}
