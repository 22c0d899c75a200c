package backend

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo/repotest"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
		dsn  string
	}{
		{"", Memory, ""},
		{"  ", Memory, ""},
		{"postgres://u:p@db:5432/x?sslmode=disable", Postgres, "postgres://u:p@db:5432/x?sslmode=disable"},
		{"postgresql://db/x", Postgres, "postgresql://db/x"},
		{"sqlite:data/pingbase.db", SQLite, "data/pingbase.db"},
		{"sqlite:///var/lib/pingbase.db", SQLite, "/var/lib/pingbase.db"},
		{"./pingbase.db", SQLite, "./pingbase.db"},
	}
	for _, c := range cases {
		kind, dsn := Parse(c.in)
		if kind != c.kind || dsn != c.dsn {
			t.Fatalf("Parse(%q) = %s,%q want %s,%q", c.in, kind, dsn, c.kind, c.dsn)
		}
	}
}

func TestOpen_MemoryAndSQLite(t *testing.T) {
	ctx := context.Background()
	lim := domain.DefaultLimits

	mem, kind, err := Open(ctx, "", zap.NewNop(), lim)
	if err != nil || kind != Memory {
		t.Fatalf("memory: %v %s", err, kind)
	}
	defer mem.Close()

	path := filepath.Join(t.TempDir(), "pb.db")
	lite, kind, err := Open(ctx, "sqlite:"+path, zap.NewNop(), lim)
	if err != nil || kind != SQLite {
		t.Fatalf("sqlite: %v %s", err, kind)
	}
	defer lite.Close()

	m := repotest.NewMonitor("web")
	if err := lite.AddMonitor(ctx, m); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := lite.GetMonitor(ctx, m.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
}
