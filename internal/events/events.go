// Package events publishes monitoring state changes for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

type Kind string

const (
	CheckRecorded    Kind = "check.recorded"
	IncidentOpened   Kind = "incident.opened"
	IncidentResolved Kind = "incident.resolved"
)

type Event struct {
	Kind      Kind                `json:"kind"`
	MonitorID domain.MonitorID    `json:"monitor_id"`
	OwnerID   string              `json:"owner_id,omitempty"`
	Check     *domain.CheckResult `json:"check,omitempty"`
	Incident  *domain.Incident    `json:"incident,omitempty"`
	At        time.Time           `json:"at"`
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
