package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/pingbase/internal/domain"
)

// RetryProber re-runs Inner until it reports up or Attempts is exhausted.
// One attempt is a plain probe.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, m *domain.Monitor) Outcome {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Outcome
	for i := 0; i < attempts; i++ {
		last = r.Inner.Probe(ctx, m)
		if last.Up() {
			return last
		}
		if i < attempts-1 && r.Backoff > 0 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts > 1 {
		last.Error = fmt.Sprintf("%s (after %d attempts)", last.Error, attempts)
	}
	return last
}
