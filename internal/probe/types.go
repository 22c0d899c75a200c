package probe

import (
	"context"

	"github.com/hamed0406/pingbase/internal/domain"
)

// Outcome is the classification of a single probe.
//
// Fields:
//   - StatusCode: HTTP status when a response arrived; 0 for transport errors.
//   - Error: empty when Status is up.
//   - DNSClass: host diagnosis attached to transport errors, for logs only.
type Outcome struct {
	Status         domain.Status
	ResponseTimeMS int64
	StatusCode     int
	Error          string
	DNSClass       string
}

func (o Outcome) Up() bool { return o.Status == domain.StatusUp }

// Prober runs one check against one monitor. Implementations never return
// errors; every failure becomes a down Outcome.
type Prober interface {
	Probe(ctx context.Context, m *domain.Monitor) Outcome
}
