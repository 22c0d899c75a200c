package memory

import (
	"context"
	"testing"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
	"github.com/hamed0406/pingbase/internal/repo/repotest"
)

func TestMemoryStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Store { return New() })
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := repotest.NewMonitor("copy")
	if err := s.AddMonitor(ctx, m); err != nil {
		t.Fatalf("AddMonitor: %v", err)
	}
	m.Name = "mutated after add"

	got, _ := s.GetMonitor(ctx, m.ID)
	if got.Name != "copy" {
		t.Fatalf("store shares caller memory: %q", got.Name)
	}
	got.Status = domain.StatusDown
	again, _ := s.GetMonitor(ctx, m.ID)
	if again.Status != domain.StatusUnknown {
		t.Fatalf("store shares returned memory: %q", again.Status)
	}
}
