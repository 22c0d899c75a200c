package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

// fake prober you can control
type fakeProber struct {
	results []Outcome
	i       int
}

func (f *fakeProber) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	if f.i >= len(f.results) {
		return Outcome{Status: domain.StatusDown, Error: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryProber_SucceedsAfterRetry(t *testing.T) {
	f := &fakeProber{
		results: []Outcome{
			{Status: domain.StatusDown, Error: "first fail"},
			{Status: domain.StatusUp, StatusCode: 200},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 3, Backoff: 10 * time.Millisecond}
	out := rp.Probe(context.Background(), &domain.Monitor{})
	if !out.Up() {
		t.Fatalf("expected up after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryProber_AllFailAnnotates(t *testing.T) {
	f := &fakeProber{
		results: []Outcome{
			{Status: domain.StatusDown, Error: "fail1"},
			{Status: domain.StatusDown, Error: "fail2"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 2}
	out := rp.Probe(context.Background(), &domain.Monitor{})
	if out.Up() {
		t.Fatalf("expected down")
	}
	if !strings.HasPrefix(out.Error, "fail2") || !strings.Contains(out.Error, "after 2 attempts") {
		t.Fatalf("unexpected annotation: %q", out.Error)
	}
}

func TestRetryProber_SingleAttemptKeepsMessage(t *testing.T) {
	f := &fakeProber{results: []Outcome{{Status: domain.StatusDown, Error: TimeoutMessage}}}
	rp := &RetryProber{Inner: f}
	out := rp.Probe(context.Background(), &domain.Monitor{})
	if out.Error != TimeoutMessage {
		t.Fatalf("single attempt must not annotate, got %q", out.Error)
	}
}
