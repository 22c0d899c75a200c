package domain

import "time"

type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelSlack   ChannelType = "slack"
)

// AlertChannel is owner-level notification config. Config keys by type:
// email → "email", webhook → "url", slack → "webhookUrl".
type AlertChannel struct {
	ID      string            `json:"id"`
	OwnerID string            `json:"owner_id"`
	Type    ChannelType       `json:"type"`
	Config  map[string]string `json:"config"`
	Active  bool              `json:"active"`
}

// AlertEvent describes a monitor transition worth notifying about.
type AlertEvent struct {
	Type        Status    `json:"type"` // StatusDown or StatusUp
	MonitorID   MonitorID `json:"monitor_id"`
	MonitorName string    `json:"monitor_name"`
	MonitorURL  string    `json:"monitor_url"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}
