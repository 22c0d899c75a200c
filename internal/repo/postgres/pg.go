package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
)

var _ repo.Store = (*Store)(nil)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS owners (
  id    TEXT PRIMARY KEY,
  email TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS monitors (
  id                 TEXT PRIMARY KEY,
  owner_id           TEXT NOT NULL,
  name               TEXT NOT NULL,
  url                TEXT NOT NULL,
  method             TEXT NOT NULL DEFAULT 'GET',
  expected_status    INTEGER NOT NULL DEFAULT 200,
  check_interval     INTEGER NOT NULL DEFAULT 60,
  timeout_ms         INTEGER NOT NULL DEFAULT 10000,
  headers            TEXT NOT NULL DEFAULT '{}',
  body               TEXT NULL,
  is_active          BOOLEAN NOT NULL DEFAULT TRUE,
  status             TEXT NOT NULL DEFAULT 'unknown',
  last_checked_at    TIMESTAMPTZ NULL,
  last_response_time BIGINT NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_monitors_active ON monitors (is_active);

CREATE TABLE IF NOT EXISTS checks (
  id            BIGSERIAL PRIMARY KEY,
  monitor_id    TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  status        TEXT NOT NULL,
  response_time BIGINT NOT NULL,
  status_code   INTEGER NULL,
  error         TEXT NULL,
  checked_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checks_monitor_time ON checks (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
  id          TEXT PRIMARY KEY,
  monitor_id  TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
  status      TEXT NOT NULL DEFAULT 'ongoing',
  started_at  TIMESTAMPTZ NOT NULL,
  resolved_at TIMESTAMPTZ NULL,
  cause       TEXT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_ongoing ON incidents (monitor_id) WHERE status = 'ongoing';

CREATE TABLE IF NOT EXISTS alert_channels (
  id        TEXT PRIMARY KEY,
  owner_id  TEXT NOT NULL,
  type      TEXT NOT NULL,
  config    JSONB NOT NULL DEFAULT '{}',
  is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_alert_channels_owner ON alert_channels (owner_id);
`

type Store struct {
	pool   *pgxpool.Pool
	log    *zap.Logger
	limits domain.Limits
}

func New(ctx context.Context, dsn string, log *zap.Logger, lim domain.Limits) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log, limits: lim}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ---- MonitorStore ----

const monitorColumns = `id, owner_id, name, url, method, expected_status, check_interval, timeout_ms,
       headers, COALESCE(body, ''), is_active, status, last_checked_at, last_response_time, created_at`

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		m          domain.Monitor
		id, status string
	)
	err := row.Scan(&id, &m.OwnerID, &m.Name, &m.URL, &m.Method, &m.ExpectedStatus, &m.CheckIntervalS,
		&m.TimeoutMS, &m.Headers, &m.Body, &m.Active, &status, &m.LastCheckedAt, &m.LastResponseTimeMS, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = domain.MonitorID(id)
	m.Status = domain.Status(status)
	return &m, nil
}

func (s *Store) AddMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	m.Normalize(s.limits)
	var body *string
	if m.Body != "" {
		body = &m.Body
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors
		   (id, owner_id, name, url, method, expected_status, check_interval, timeout_ms,
		    headers, body, is_active, status, created_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(m.ID), m.OwnerID, m.Name, m.URL, m.Method, m.ExpectedStatus, m.CheckIntervalS, m.TimeoutMS,
		m.Headers, body, m.Active, string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m, err := scanMonitor(s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return s.listMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at, id`)
}

func (s *Store) ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return s.listMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE is_active ORDER BY created_at, id`)
}

func (s *Store) listMonitors(ctx context.Context, q string) ([]*domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, id domain.MonitorID, active bool) error {
	return s.execOne(ctx, "set active", `UPDATE monitors SET is_active = $1 WHERE id = $2`, active, string(id))
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	return s.execOne(ctx, "delete monitor", `DELETE FROM monitors WHERE id = $1`, string(id))
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, u repo.StatusUpdate) error {
	return s.execOne(ctx, "update status",
		`UPDATE monitors SET status = $1, last_checked_at = $2, last_response_time = $3 WHERE id = $4`,
		string(u.Status), u.CheckedAt, u.ResponseTimeMS, string(id))
}

func (s *Store) execOne(ctx context.Context, what, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- CheckStore ----

func (s *Store) AppendCheck(ctx context.Context, r *domain.CheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checks
		   (monitor_id, status, response_time, status_code, error, checked_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		string(r.MonitorID), string(r.Status), r.ResponseTimeMS, r.HTTPStatus, r.Error, r.CheckedAt,
	).Scan(&r.ID)
	if pgCode(err) == codeForeignKeyViolation {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckResult, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, response_time, status_code, error, checked_at
		   FROM checks
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, string(id), lim)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		r := domain.CheckResult{MonitorID: id}
		var status string
		if err := rows.Scan(&r.ID, &status, &r.ResponseTimeMS, &r.HTTPStatus, &r.Error, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		r.Status = domain.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- IncidentStore ----

const incidentColumns = `id, monitor_id, status, started_at, resolved_at, cause`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc               domain.Incident
		monitorID, status string
	)
	if err := row.Scan(&inc.ID, &monitorID, &status, &inc.StartedAt, &inc.ResolvedAt, &inc.Cause); err != nil {
		return nil, err
	}
	inc.MonitorID = domain.MonitorID(monitorID)
	inc.Status = domain.IncidentStatus(status)
	return &inc, nil
}

func (s *Store) OpenIncident(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.StartedAt.IsZero() {
		inc.StartedAt = time.Now().UTC()
	}
	inc.Status = domain.IncidentOngoing
	inc.ResolvedAt = nil
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, monitor_id, status, started_at, cause) VALUES ($1, $2, $3, $4, $5)`,
		inc.ID, string(inc.MonitorID), string(inc.Status), inc.StartedAt, inc.Cause)
	switch pgCode(err) {
	case codeUniqueViolation:
		return repo.ErrIncidentOngoing
	case codeForeignKeyViolation:
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *Store) ResolveIncident(ctx context.Context, id domain.MonitorID, at time.Time) (*domain.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx,
		`UPDATE incidents SET status = 'resolved', resolved_at = $2
		  WHERE monitor_id = $1 AND status = 'ongoing'
		  RETURNING `+incidentColumns, string(id), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}
	return inc, nil
}

func (s *Store) OngoingIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = $1 AND status = 'ongoing'`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ongoing incident: %w", err)
	}
	return inc, nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := scanIncident(s.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, f repo.IncidentFilter) ([]domain.Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.MonitorID != "" {
		args = append(args, string(f.MonitorID))
		where = append(where, fmt.Sprintf("monitor_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	out := []domain.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

// ---- ChannelStore / ContactStore ----

func (s *Store) AddChannel(ctx context.Context, ch *domain.AlertChannel) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("encode channel config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_channels (id, owner_id, type, config, is_active) VALUES ($1, $2, $3, $4, $5)`,
		ch.ID, ch.OwnerID, string(ch.Type), string(cfg), ch.Active)
	if err != nil {
		return fmt.Errorf("insert alert channel: %w", err)
	}
	return nil
}

func (s *Store) ActiveChannels(ctx context.Context, ownerID string) ([]domain.AlertChannel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, type, config::text, is_active
		   FROM alert_channels
		  WHERE owner_id = $1 AND is_active
		  ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list alert channels: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertChannel
	for rows.Next() {
		var (
			ch       domain.AlertChannel
			chanType string
			raw      string
		)
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &chanType, &raw, &ch.Active); err != nil {
			return nil, fmt.Errorf("scan alert channel: %w", err)
		}
		ch.Type = domain.ChannelType(chanType)
		var cfg map[string]string
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			s.log.Warn("alert_channel_config_invalid", zap.String("channel_id", ch.ID), zap.Error(err))
		} else {
			ch.Config = cfg
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) SetOwnerEmail(ctx context.Context, ownerID, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO owners (id, email) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`, ownerID, email)
	if err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

func (s *Store) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx, `SELECT email FROM owners WHERE id = $1`, ownerID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner email: %w", err)
	}
	return email, nil
}
