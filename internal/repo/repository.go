package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

var (
	// ErrNotFound is returned when the referenced row does not exist, including
	// writes that reference a monitor deleted in the meantime.
	ErrNotFound = errors.New("not found")
	// ErrIncidentOngoing is returned by OpenIncident when the monitor already
	// has an ongoing incident.
	ErrIncidentOngoing = errors.New("monitor already has an ongoing incident")
)

// StatusUpdate is the part of a monitor the state tracker writes back.
type StatusUpdate struct {
	Status         domain.Status
	CheckedAt      time.Time
	ResponseTimeMS int64
}

type IncidentFilter struct {
	MonitorID domain.MonitorID
	Status    domain.IncidentStatus // empty = any
	Limit     int
}

// Ports (interfaces): swap in any DB adapter.
type MonitorStore interface {
	AddMonitor(ctx context.Context, m *domain.Monitor) error
	GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	ListMonitors(ctx context.Context) ([]*domain.Monitor, error)
	ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error)
	SetActive(ctx context.Context, id domain.MonitorID, active bool) error
	DeleteMonitor(ctx context.Context, id domain.MonitorID) error
	UpdateStatus(ctx context.Context, id domain.MonitorID, u StatusUpdate) error
}

type CheckStore interface {
	AppendCheck(ctx context.Context, r *domain.CheckResult) error
	ListChecks(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckResult, error)
}

type IncidentStore interface {
	OpenIncident(ctx context.Context, inc *domain.Incident) error
	// ResolveIncident closes the ongoing incident of a monitor. It returns
	// nil, nil when there is none.
	ResolveIncident(ctx context.Context, id domain.MonitorID, at time.Time) (*domain.Incident, error)
	// OngoingIncident returns nil, nil when the monitor has no ongoing incident.
	OngoingIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, f IncidentFilter) ([]domain.Incident, error)
}

type ChannelStore interface {
	AddChannel(ctx context.Context, ch *domain.AlertChannel) error
	ActiveChannels(ctx context.Context, ownerID string) ([]domain.AlertChannel, error)
}

// ContactStore resolves an owner's primary email. OwnerEmail returns "", nil
// for unknown owners.
type ContactStore interface {
	SetOwnerEmail(ctx context.Context, ownerID, email string) error
	OwnerEmail(ctx context.Context, ownerID string) (string, error)
}

// Store is what a full backend provides.
type Store interface {
	MonitorStore
	CheckStore
	IncidentStore
	ChannelStore
	ContactStore
	Close() error
}

const DefaultIncidentLimit = 100

func (f IncidentFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > DefaultIncidentLimit {
		return DefaultIncidentLimit
	}
	return f.Limit
}
