package repo_test

import (
	"testing"

	"github.com/hamed0406/pingbase/internal/repo"
	"github.com/hamed0406/pingbase/internal/repo/memory"
	pg "github.com/hamed0406/pingbase/internal/repo/postgres"
	"github.com/hamed0406/pingbase/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()

	var _ repo.Store = (*pg.Store)(nil)
	var _ repo.Store = (*sqlite.Store)(nil)
}

func TestIncidentFilter_EffectiveLimit(t *testing.T) {
	for in, want := range map[int]int{0: 100, -1: 100, 5: 5, 100: 100, 500: 100} {
		if got := (repo.IncidentFilter{Limit: in}).EffectiveLimit(); got != want {
			t.Fatalf("limit %d: want %d, got %d", in, want, got)
		}
	}
}
