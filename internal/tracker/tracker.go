// Package tracker records probe outcomes and drives the incident lifecycle.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/events"
	"github.com/hamed0406/pingbase/internal/probe"
	"github.com/hamed0406/pingbase/internal/repo"
)

// Store is the slice of persistence the tracker writes to.
type Store interface {
	repo.MonitorStore
	repo.CheckStore
	repo.IncidentStore
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ownerID string, ev domain.AlertEvent)
}

const DefaultBackgroundTimeout = 30 * time.Second

type Tracker struct {
	log    *zap.Logger
	store  Store
	alerts Dispatcher
	sink   events.Sink
	now    func() time.Time

	bgTimeout time.Duration
	bg        sync.WaitGroup
}

type Option func(*Tracker)

func WithEvents(s events.Sink) Option {
	return func(t *Tracker) {
		if s != nil {
			t.sink = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithBackgroundTimeout bounds each alert dispatch and event publish.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.bgTimeout = d
		}
	}
}

func New(log *zap.Logger, store Store, alerts Dispatcher, opts ...Option) *Tracker {
	t := &Tracker{
		log:       log,
		store:     store,
		alerts:    alerts,
		sink:      events.Nop{},
		now:       time.Now,
		bgTimeout: DefaultBackgroundTimeout,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Record persists one probe outcome and applies the status transition it
// implies. The caller must not record two outcomes of the same monitor
// concurrently. Only persistence failures are returned; a monitor deleted
// while its probe was in flight is a no-op.
func (t *Tracker) Record(ctx context.Context, m *domain.Monitor, out probe.Outcome) error {
	now := t.now().UTC()

	cur, err := t.store.GetMonitor(ctx, m.ID)
	if errors.Is(err, repo.ErrNotFound) {
		t.dropped(m.ID, "load")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load monitor %s: %w", m.ID, err)
	}
	prev := cur.Status

	check := &domain.CheckResult{
		MonitorID:      m.ID,
		Status:         out.Status,
		ResponseTimeMS: out.ResponseTimeMS,
		CheckedAt:      now,
	}
	if out.StatusCode != 0 {
		code := out.StatusCode
		check.HTTPStatus = &code
	}
	if out.Error != "" {
		msg := out.Error
		check.Error = &msg
	}

	if err := t.store.AppendCheck(ctx, check); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			t.dropped(m.ID, "append_check")
			return nil
		}
		return fmt.Errorf("append check %s: %w", m.ID, err)
	}
	if err := t.store.UpdateStatus(ctx, m.ID, repo.StatusUpdate{
		Status:         out.Status,
		CheckedAt:      now,
		ResponseTimeMS: out.ResponseTimeMS,
	}); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			t.dropped(m.ID, "update_status")
			return nil
		}
		return fmt.Errorf("update status %s: %w", m.ID, err)
	}

	fields := []zap.Field{
		zap.String("monitor_id", string(m.ID)),
		zap.String("url", cur.URL),
		zap.String("status", string(out.Status)),
		zap.String("previous", string(prev)),
		zap.Int64("latency_ms", out.ResponseTimeMS),
	}
	if out.StatusCode != 0 {
		fields = append(fields, zap.Int("code", out.StatusCode))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}
	if out.DNSClass != "" {
		fields = append(fields, zap.String("dns_class", out.DNSClass))
	}
	t.log.Info("check_recorded", fields...)
	t.publish(events.Event{Kind: events.CheckRecorded, MonitorID: m.ID, OwnerID: cur.OwnerID, Check: check, At: now})

	switch {
	case prev != domain.StatusDown && out.Status == domain.StatusDown:
		return t.openIncident(ctx, cur, out, now)
	case prev == domain.StatusDown && out.Status == domain.StatusUp:
		return t.resolveIncident(ctx, cur, now)
	}
	return nil
}

func (t *Tracker) openIncident(ctx context.Context, m *domain.Monitor, out probe.Outcome, now time.Time) error {
	inc := &domain.Incident{MonitorID: m.ID, StartedAt: now}
	if out.Error != "" {
		cause := out.Error
		inc.Cause = &cause
	}
	switch err := t.store.OpenIncident(ctx, inc); {
	case errors.Is(err, repo.ErrIncidentOngoing):
		t.log.Warn("incident_already_ongoing", zap.String("monitor_id", string(m.ID)))
		return nil
	case errors.Is(err, repo.ErrNotFound):
		t.dropped(m.ID, "open_incident")
		return nil
	case err != nil:
		return fmt.Errorf("open incident %s: %w", m.ID, err)
	}

	t.log.Warn("incident_opened",
		zap.String("monitor_id", string(m.ID)),
		zap.String("incident_id", inc.ID),
		zap.String("cause", out.Error),
	)
	t.publish(events.Event{Kind: events.IncidentOpened, MonitorID: m.ID, OwnerID: m.OwnerID, Incident: inc, At: now})
	t.dispatch(m.OwnerID, domain.AlertEvent{
		Type:        domain.StatusDown,
		MonitorID:   m.ID,
		MonitorName: m.Name,
		MonitorURL:  m.URL,
		Error:       out.Error,
		At:          now,
	})
	return nil
}

func (t *Tracker) resolveIncident(ctx context.Context, m *domain.Monitor, now time.Time) error {
	inc, err := t.store.ResolveIncident(ctx, m.ID, now)
	if err != nil {
		return fmt.Errorf("resolve incident %s: %w", m.ID, err)
	}
	if inc == nil {
		// recovery is still announced; the down side predates this process or was lost
		t.log.Warn("incident_missing_on_recovery", zap.String("monitor_id", string(m.ID)))
	} else {
		t.log.Info("incident_resolved",
			zap.String("monitor_id", string(m.ID)),
			zap.String("incident_id", inc.ID),
			zap.Duration("duration", now.Sub(inc.StartedAt)),
		)
		t.publish(events.Event{Kind: events.IncidentResolved, MonitorID: m.ID, OwnerID: m.OwnerID, Incident: inc, At: now})
	}
	t.dispatch(m.OwnerID, domain.AlertEvent{
		Type:        domain.StatusUp,
		MonitorID:   m.ID,
		MonitorName: m.Name,
		MonitorURL:  m.URL,
		At:          now,
	})
	return nil
}

func (t *Tracker) dispatch(ownerID string, ev domain.AlertEvent) {
	if t.alerts == nil {
		return
	}
	t.background("alert_dispatch", func(ctx context.Context) {
		t.alerts.Dispatch(ctx, ownerID, ev)
	})
}

func (t *Tracker) publish(ev events.Event) {
	if _, nop := t.sink.(events.Nop); nop {
		return
	}
	t.background("event_publish", func(ctx context.Context) {
		if err := t.sink.Publish(ctx, ev); err != nil {
			t.log.Warn("event_publish_failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("monitor_id", string(ev.MonitorID)),
				zap.Error(err),
			)
		}
	})
}

// background runs fn detached from the caller; Wait drains it.
func (t *Tracker) background(what string, fn func(ctx context.Context)) {
	t.bg.Add(1)
	go func() {
		defer t.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("background_panic", zap.String("task", what), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), t.bgTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every pending alert dispatch and event publish is done.
func (t *Tracker) Wait() {
	t.bg.Wait()
}

func (t *Tracker) dropped(id domain.MonitorID, stage string) {
	t.log.Info("check_dropped_monitor_deleted",
		zap.String("monitor_id", string(id)),
		zap.String("stage", stage),
	)
}
