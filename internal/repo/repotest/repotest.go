// Package repotest holds behavior checks shared by every repo.Store adapter.
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
)

// Run exercises a fresh store returned by open for every sub-test.
func Run(t *testing.T, open func(t *testing.T) repo.Store) {
	t.Run("MonitorLifecycle", func(t *testing.T) { testMonitorLifecycle(t, open(t)) })
	t.Run("StatusAndChecks", func(t *testing.T) { testStatusAndChecks(t, open(t)) })
	t.Run("IncidentInvariant", func(t *testing.T) { testIncidentInvariant(t, open(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, open(t)) })
	t.Run("ChannelsAndContacts", func(t *testing.T) { testChannelsAndContacts(t, open(t)) })
}

// NewMonitor returns an active monitor ready to be added.
func NewMonitor(name string) *domain.Monitor {
	return &domain.Monitor{
		OwnerID:        "owner-1",
		Name:           name,
		URL:            "https://" + name + ".example.com",
		Method:         "get",
		ExpectedStatus: 200,
		CheckIntervalS: 60,
		TimeoutMS:      1000,
		Headers:        `{"X-A":"1"}`,
		Active:         true,
	}
}

func testMonitorLifecycle(t *testing.T, s repo.Store) {
	ctx := context.Background()

	m := NewMonitor("alpha")
	m.CheckIntervalS = 5 // below the minimum
	if err := s.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}
	if m.ID == "" {
		t.Fatalf("expected monitor ID to be set")
	}

	got, err := s.GetMonitor(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if got.CheckIntervalS != 30 {
		t.Fatalf("interval should be clamped to 30, got %d", got.CheckIntervalS)
	}
	if got.Method != "GET" || got.Status != domain.StatusUnknown || !got.Active {
		t.Fatalf("unexpected stored monitor: %+v", got)
	}
	if got.Headers != `{"X-A":"1"}` || got.URL != m.URL || got.OwnerID != "owner-1" {
		t.Fatalf("fields not round-tripped: %+v", got)
	}

	other := NewMonitor("beta")
	if err := s.AddMonitor(ctx, other); err != nil {
		t.Fatalf("AddMonitor beta: %v", err)
	}
	if err := s.SetActive(ctx, other.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	all, err := s.ListMonitors(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListMonitors: %d %v", len(all), err)
	}
	active, err := s.ListActiveMonitors(ctx)
	if err != nil {
		t.Fatalf("ListActiveMonitors: %v", err)
	}
	if len(active) != 1 || active[0].ID != m.ID {
		t.Fatalf("want only alpha active, got %+v", active)
	}

	if _, err := s.GetMonitor(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.SetActive(ctx, "missing", true); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testStatusAndChecks(t *testing.T, s repo.Store) {
	ctx := context.Background()
	m := NewMonitor("gamma")
	if err := s.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.UpdateStatus(ctx, m.ID, repo.StatusUpdate{Status: domain.StatusDown, CheckedAt: now, ResponseTimeMS: 42}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := s.GetMonitor(ctx, m.ID)
	if got.Status != domain.StatusDown || got.LastResponseTimeMS == nil || *got.LastResponseTimeMS != 42 {
		t.Fatalf("status not written: %+v", got)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(now) {
		t.Fatalf("last_checked_at: %v want %v", got.LastCheckedAt, now)
	}

	code := 500
	msg := "Expected status 200, got 500"
	for i := 0; i < 3; i++ {
		cr := &domain.CheckResult{
			MonitorID:      m.ID,
			Status:         domain.StatusDown,
			ResponseTimeMS: int64(10 + i),
			HTTPStatus:     &code,
			Error:          &msg,
			CheckedAt:      now.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendCheck(ctx, cr); err != nil {
			t.Fatalf("AppendCheck: %v", err)
		}
	}
	if err := s.AppendCheck(ctx, &domain.CheckResult{MonitorID: m.ID, Status: domain.StatusUp, CheckedAt: now.Add(5 * time.Second)}); err != nil {
		t.Fatalf("AppendCheck nulls: %v", err)
	}

	checks, err := s.ListChecks(ctx, m.ID, 2)
	if err != nil {
		t.Fatalf("ListChecks: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("want 2 checks, got %d", len(checks))
	}
	if checks[0].Status != domain.StatusUp || checks[0].HTTPStatus != nil || checks[0].Error != nil {
		t.Fatalf("newest check should be the null one: %+v", checks[0])
	}
	if checks[1].HTTPStatus == nil || *checks[1].HTTPStatus != 500 || checks[1].Error == nil || *checks[1].Error != msg {
		t.Fatalf("unexpected check: %+v", checks[1])
	}

	if err := s.UpdateStatus(ctx, "missing", repo.StatusUpdate{Status: domain.StatusUp, CheckedAt: now}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("UpdateStatus missing: want ErrNotFound, got %v", err)
	}
	if err := s.AppendCheck(ctx, &domain.CheckResult{MonitorID: "missing", Status: domain.StatusUp, CheckedAt: now}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("AppendCheck missing: want ErrNotFound, got %v", err)
	}
}

func testIncidentInvariant(t *testing.T, s repo.Store) {
	ctx := context.Background()
	m := NewMonitor("delta")
	if err := s.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}

	if inc, err := s.ResolveIncident(ctx, m.ID, time.Now()); err != nil || inc != nil {
		t.Fatalf("resolve with nothing ongoing: %+v %v", inc, err)
	}

	cause := "Request timeout"
	first := &domain.Incident{MonitorID: m.ID, Cause: &cause, StartedAt: time.Now().UTC().Add(-time.Minute)}
	if err := s.OpenIncident(ctx, first); err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}
	if first.ID == "" || first.Status != domain.IncidentOngoing {
		t.Fatalf("incident not initialized: %+v", first)
	}
	if err := s.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID}); !errors.Is(err, repo.ErrIncidentOngoing) {
		t.Fatalf("second ongoing incident: want ErrIncidentOngoing, got %v", err)
	}

	ongoing, err := s.OngoingIncident(ctx, m.ID)
	if err != nil || ongoing == nil || ongoing.ID != first.ID {
		t.Fatalf("OngoingIncident: %+v %v", ongoing, err)
	}
	if ongoing.Cause == nil || *ongoing.Cause != cause {
		t.Fatalf("cause lost: %+v", ongoing)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	resolved, err := s.ResolveIncident(ctx, m.ID, at)
	if err != nil || resolved == nil {
		t.Fatalf("ResolveIncident: %+v %v", resolved, err)
	}
	if resolved.ID != first.ID || resolved.Status != domain.IncidentResolved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved incident: %+v", resolved)
	}
	if ongoing, _ := s.OngoingIncident(ctx, m.ID); ongoing != nil {
		t.Fatalf("nothing should be ongoing, got %+v", ongoing)
	}

	second := &domain.Incident{MonitorID: m.ID}
	if err := s.OpenIncident(ctx, second); err != nil {
		t.Fatalf("reopen after resolve: %v", err)
	}

	list, err := s.ListIncidents(ctx, repo.IncidentFilter{MonitorID: m.ID})
	if err != nil || len(list) != 2 {
		t.Fatalf("ListIncidents: %d %v", len(list), err)
	}
	if list[0].ID != second.ID {
		t.Fatalf("newest incident should come first: %+v", list)
	}
	only, _ := s.ListIncidents(ctx, repo.IncidentFilter{Status: domain.IncidentResolved})
	if len(only) != 1 || only[0].ID != first.ID {
		t.Fatalf("status filter: %+v", only)
	}

	got, err := s.GetIncident(ctx, first.ID)
	if err != nil || got.ResolvedAt == nil {
		t.Fatalf("GetIncident: %+v %v", got, err)
	}
	if _, err := s.GetIncident(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testDeleteCascades(t *testing.T, s repo.Store) {
	ctx := context.Background()
	m := NewMonitor("epsilon")
	if err := s.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}
	if err := s.AppendCheck(ctx, &domain.CheckResult{MonitorID: m.ID, Status: domain.StatusDown, CheckedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("AppendCheck: %v", err)
	}
	if err := s.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID}); err != nil {
		t.Fatalf("OpenIncident: %v", err)
	}

	if err := s.DeleteMonitor(ctx, m.ID); err != nil {
		t.Fatalf("DeleteMonitor: %v", err)
	}
	if checks, _ := s.ListChecks(ctx, m.ID, 10); len(checks) != 0 {
		t.Fatalf("checks should cascade, got %d", len(checks))
	}
	if list, _ := s.ListIncidents(ctx, repo.IncidentFilter{MonitorID: m.ID}); len(list) != 0 {
		t.Fatalf("incidents should cascade, got %d", len(list))
	}
	if err := s.OpenIncident(ctx, &domain.Incident{MonitorID: m.ID}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("incident for deleted monitor: want ErrNotFound, got %v", err)
	}
	if err := s.DeleteMonitor(ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}
}

func testChannelsAndContacts(t *testing.T, s repo.Store) {
	ctx := context.Background()

	if email, err := s.OwnerEmail(ctx, "nobody"); err != nil || email != "" {
		t.Fatalf("unknown owner: %q %v", email, err)
	}
	if err := s.SetOwnerEmail(ctx, "owner-1", "a@example.com"); err != nil {
		t.Fatalf("SetOwnerEmail: %v", err)
	}
	if err := s.SetOwnerEmail(ctx, "owner-1", "b@example.com"); err != nil {
		t.Fatalf("SetOwnerEmail overwrite: %v", err)
	}
	if email, _ := s.OwnerEmail(ctx, "owner-1"); email != "b@example.com" {
		t.Fatalf("owner email: %q", email)
	}

	chans := []*domain.AlertChannel{
		{OwnerID: "owner-1", Type: domain.ChannelWebhook, Config: map[string]string{"url": "http://hook"}, Active: true},
		{OwnerID: "owner-1", Type: domain.ChannelSlack, Config: map[string]string{"webhookUrl": "http://slack"}, Active: false},
		{OwnerID: "owner-2", Type: domain.ChannelEmail, Config: map[string]string{"email": "x@example.com"}, Active: true},
	}
	for _, ch := range chans {
		if err := s.AddChannel(ctx, ch); err != nil {
			t.Fatalf("AddChannel: %v", err)
		}
	}
	got, err := s.ActiveChannels(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ActiveChannels: %v", err)
	}
	if len(got) != 1 || got[0].Type != domain.ChannelWebhook || got[0].Config["url"] != "http://hook" {
		t.Fatalf("unexpected channels: %+v", got)
	}
}
