package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
)

// Store keeps everything in process memory. Reads hand out copies so
// callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	limits    domain.Limits
	monitors  map[domain.MonitorID]*domain.Monitor
	checks    map[domain.MonitorID][]domain.CheckResult
	incidents map[string]*domain.Incident
	channels  map[string]*domain.AlertChannel
	emails    map[string]string
	nextCheck int64
}

func New() *Store {
	return NewWithLimits(domain.DefaultLimits)
}

func NewWithLimits(lim domain.Limits) *Store {
	return &Store{
		limits:    lim,
		monitors:  make(map[domain.MonitorID]*domain.Monitor),
		checks:    make(map[domain.MonitorID][]domain.CheckResult),
		incidents: make(map[string]*domain.Incident),
		channels:  make(map[string]*domain.AlertChannel),
		emails:    make(map[string]string),
	}
}

func (m *Store) Close() error { return nil }

// ---- MonitorStore ----

func (m *Store) AddMonitor(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = domain.MonitorID(uuid.NewString())
	}
	mon.Normalize(m.limits)
	cp := *mon
	m.monitors[mon.ID] = &cp
	return nil
}

func (m *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *mon
	return &cp, nil
}

func (m *Store) ListMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return m.list(false), nil
}

func (m *Store) ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return m.list(true), nil
}

func (m *Store) list(activeOnly bool) []*domain.Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if activeOnly && !mon.Active {
			continue
		}
		cp := *mon
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Store) SetActive(ctx context.Context, id domain.MonitorID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	mon.Active = active
	return nil
}

// DeleteMonitor cascades to the monitor's checks and incidents.
func (m *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.monitors, id)
	delete(m.checks, id)
	for iid, inc := range m.incidents {
		if inc.MonitorID == id {
			delete(m.incidents, iid)
		}
	}
	return nil
}

func (m *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, u repo.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	at := u.CheckedAt
	rt := u.ResponseTimeMS
	mon.Status = u.Status
	mon.LastCheckedAt = &at
	mon.LastResponseTimeMS = &rt
	return nil
}

// ---- CheckStore ----

func (m *Store) AppendCheck(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[r.MonitorID]; !ok {
		return repo.ErrNotFound
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	m.nextCheck++
	r.ID = m.nextCheck
	m.checks[r.MonitorID] = append(m.checks[r.MonitorID], *r)
	return nil
}

// ListChecks returns the newest checks first.
func (m *Store) ListChecks(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.checks[id]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]domain.CheckResult, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[inc.MonitorID]; !ok {
		return repo.ErrNotFound
	}
	if m.ongoingLocked(inc.MonitorID) != nil {
		return repo.ErrIncidentOngoing
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.StartedAt.IsZero() {
		inc.StartedAt = time.Now().UTC()
	}
	inc.Status = domain.IncidentOngoing
	inc.ResolvedAt = nil
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *Store) ResolveIncident(ctx context.Context, id domain.MonitorID, at time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc := m.ongoingLocked(id)
	if inc == nil {
		return nil, nil
	}
	inc.Status = domain.IncidentResolved
	inc.ResolvedAt = &at
	cp := *inc
	return &cp, nil
}

func (m *Store) OngoingIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc := m.ongoingLocked(id)
	if inc == nil {
		return nil, nil
	}
	cp := *inc
	return &cp, nil
}

func (m *Store) ongoingLocked(id domain.MonitorID) *domain.Incident {
	for _, inc := range m.incidents {
		if inc.MonitorID == id && inc.Status == domain.IncidentOngoing {
			return inc
		}
	}
	return nil
}

func (m *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

// ListIncidents returns the newest incidents first.
func (m *Store) ListIncidents(ctx context.Context, f repo.IncidentFilter) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if f.MonitorID != "" && inc.MonitorID != f.MonitorID {
			continue
		}
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if lim := f.EffectiveLimit(); len(out) > lim {
		out = out[:lim]
	}
	return out, nil
}

// ---- ChannelStore / ContactStore ----

func (m *Store) AddChannel(ctx context.Context, ch *domain.AlertChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	cp := *ch
	m.channels[ch.ID] = &cp
	return nil
}

func (m *Store) ActiveChannels(ctx context.Context, ownerID string) ([]domain.AlertChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AlertChannel
	for _, ch := range m.channels {
		if ch.OwnerID == ownerID && ch.Active {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SetOwnerEmail(ctx context.Context, ownerID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[ownerID] = email
	return nil
}

func (m *Store) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emails[ownerID], nil
}

var _ repo.Store = (*Store)(nil)
