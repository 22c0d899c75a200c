// Package backend picks a repo.Store implementation from a database URL.
package backend

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
	"github.com/hamed0406/pingbase/internal/repo/memory"
	"github.com/hamed0406/pingbase/internal/repo/postgres"
	"github.com/hamed0406/pingbase/internal/repo/sqlite"
)

type Kind string

const (
	Memory   Kind = "memory"
	SQLite   Kind = "sqlite"
	Postgres Kind = "postgres"
)

// Parse maps a database URL to a backend and the string its driver wants.
//
//	""                      → memory
//	postgres://, postgresql://  → postgres (DSN unchanged)
//	sqlite:<path>, file path    → sqlite
func Parse(dbURL string) (Kind, string) {
	u := strings.TrimSpace(dbURL)
	lower := strings.ToLower(u)
	switch {
	case u == "":
		return Memory, ""
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres, u
	case strings.HasPrefix(lower, "sqlite://"):
		return SQLite, u[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return SQLite, u[len("sqlite:"):]
	default:
		return SQLite, u
	}
}

func Open(ctx context.Context, dbURL string, log *zap.Logger, lim domain.Limits) (repo.Store, Kind, error) {
	kind, dsn := Parse(dbURL)
	switch kind {
	case Postgres:
		s, err := postgres.New(ctx, dsn, log, lim)
		if err != nil {
			return nil, kind, err
		}
		return s, kind, nil
	case SQLite:
		s, err := sqlite.New(ctx, dsn, lim)
		if err != nil {
			return nil, kind, err
		}
		return s, kind, nil
	default:
		return memory.NewWithLimits(lim), Memory, nil
	}
}
