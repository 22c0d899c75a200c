package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/pingbase/internal/domain"
	"github.com/hamed0406/pingbase/internal/repo"
)

// timeFormat sorts lexically, unlike RFC3339Nano.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements repo.Store on SQLite.
type Store struct {
	db     *sql.DB
	limits domain.Limits
}

// New opens the database file at path and runs migrations.
func New(ctx context.Context, path string, lim domain.Limits) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one writer; concurrent checks queue here instead of failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db, limits: lim}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
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
	timeout            INTEGER NOT NULL DEFAULT 10000,
	headers            TEXT NOT NULL DEFAULT '{}',
	body               TEXT,
	is_active          INTEGER NOT NULL DEFAULT 1,
	status             TEXT NOT NULL DEFAULT 'unknown',
	last_checked_at    TEXT,
	last_response_time INTEGER,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_owner_id ON monitors (owner_id);
CREATE INDEX IF NOT EXISTS idx_monitors_is_active ON monitors (is_active);

CREATE TABLE IF NOT EXISTS checks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time INTEGER NOT NULL,
	status_code   INTEGER,
	error         TEXT,
	checked_at    TEXT NOT NULL,
	FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_checks_monitor_checked_at ON checks (monitor_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	monitor_id  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'ongoing',
	started_at  TEXT NOT NULL,
	resolved_at TEXT,
	cause       TEXT,
	FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_incidents_monitor_id ON incidents (monitor_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_ongoing ON incidents (monitor_id) WHERE status = 'ongoing';

CREATE TABLE IF NOT EXISTS alert_channels (
	id        TEXT PRIMARY KEY,
	owner_id  TEXT NOT NULL,
	type      TEXT NOT NULL,
	config    TEXT NOT NULL DEFAULT '{}',
	is_active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_alert_channels_owner_id ON alert_channels (owner_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeFormat, v)
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isConstraint(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}

// ---- MonitorStore ----

const monitorColumns = `id, owner_id, name, url, method, expected_status, check_interval, timeout,
	headers, body, is_active, status, last_checked_at, last_response_time, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*domain.Monitor, error) {
	var (
		m           domain.Monitor
		body        sql.NullString
		lastChecked sql.NullString
		lastRT      sql.NullInt64
		createdAt   string
	)
	err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.URL, &m.Method, &m.ExpectedStatus, &m.CheckIntervalS,
		&m.TimeoutMS, &m.Headers, &body, &m.Active, &m.Status, &lastChecked, &lastRT, &createdAt)
	if err != nil {
		return nil, err
	}
	m.Body = body.String
	m.LastCheckedAt = parseNullTime(lastChecked)
	if lastRT.Valid {
		v := lastRT.Int64
		m.LastResponseTimeMS = &v
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func (s *Store) AddMonitor(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	m.Normalize(s.limits)
	var body any
	if m.Body != "" {
		body = m.Body
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors (id, owner_id, name, url, method, expected_status, check_interval, timeout,
		                       headers, body, is_active, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), m.OwnerID, m.Name, m.URL, m.Method, m.ExpectedStatus, m.CheckIntervalS, m.TimeoutMS,
		m.Headers, body, m.Active, string(m.Status), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert monitor: %w", err)
	}
	return nil
}

func (s *Store) GetMonitor(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, string(id))
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) ListMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return s.listMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at, id`)
}

func (s *Store) ListActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return s.listMonitors(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *Store) listMonitors(ctx context.Context, query string) ([]*domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	defer rows.Close()
	var out []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, id domain.MonitorID, active bool) error {
	return s.execOne(ctx, "set active", `UPDATE monitors SET is_active = ? WHERE id = ?`, active, string(id))
}

func (s *Store) DeleteMonitor(ctx context.Context, id domain.MonitorID) error {
	return s.execOne(ctx, "delete monitor", `DELETE FROM monitors WHERE id = ?`, string(id))
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, u repo.StatusUpdate) error {
	return s.execOne(ctx, "update status",
		`UPDATE monitors SET status = ?, last_checked_at = ?, last_response_time = ? WHERE id = ?`,
		string(u.Status), formatTime(u.CheckedAt), u.ResponseTimeMS, string(id))
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- CheckStore ----

func (s *Store) AppendCheck(ctx context.Context, r *domain.CheckResult) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (monitor_id, status, response_time, status_code, error, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.MonitorID), string(r.Status), r.ResponseTimeMS, r.HTTPStatus, r.Error, formatTime(r.CheckedAt))
	if isConstraint(err, "FOREIGN KEY") {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to create check result: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.MonitorID, limit int) ([]domain.CheckResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, monitor_id, status, response_time, status_code, error, checked_at
		   FROM checks WHERE monitor_id = ?
		  ORDER BY checked_at DESC, id DESC LIMIT ?`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check results: %w", err)
	}
	defer rows.Close()
	var out []domain.CheckResult
	for rows.Next() {
		var (
			r         domain.CheckResult
			code      sql.NullInt64
			msg       sql.NullString
			checkedAt string
		)
		if err := rows.Scan(&r.ID, &r.MonitorID, &r.Status, &r.ResponseTimeMS, &code, &msg, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check result row: %w", err)
		}
		if code.Valid {
			v := int(code.Int64)
			r.HTTPStatus = &v
		}
		r.Error = nullString(msg)
		r.CheckedAt = parseTime(checkedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- IncidentStore ----

const incidentColumns = `id, monitor_id, status, started_at, resolved_at, cause`

func scanIncident(row rowScanner) (*domain.Incident, error) {
	var (
		inc        domain.Incident
		startedAt  string
		resolvedAt sql.NullString
		cause      sql.NullString
	)
	if err := row.Scan(&inc.ID, &inc.MonitorID, &inc.Status, &startedAt, &resolvedAt, &cause); err != nil {
		return nil, err
	}
	inc.StartedAt = parseTime(startedAt)
	inc.ResolvedAt = parseNullTime(resolvedAt)
	inc.Cause = nullString(cause)
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, monitor_id, status, started_at, cause) VALUES (?, ?, ?, ?, ?)`,
		inc.ID, string(inc.MonitorID), string(inc.Status), formatTime(inc.StartedAt), inc.Cause)
	switch {
	case isConstraint(err, "UNIQUE"):
		return repo.ErrIncidentOngoing
	case isConstraint(err, "FOREIGN KEY"):
		return repo.ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to open incident: %w", err)
	}
	return nil
}

func (s *Store) ResolveIncident(ctx context.Context, id domain.MonitorID, at time.Time) (*domain.Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = ? AND status = 'ongoing'`, string(id))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ongoing incident: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE incidents SET status = 'resolved', resolved_at = ? WHERE id = ?`,
		formatTime(at), inc.ID); err != nil {
		return nil, fmt.Errorf("failed to resolve incident: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	inc.Status = domain.IncidentResolved
	inc.ResolvedAt = &at
	return inc, nil
}

func (s *Store) OngoingIncident(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE monitor_id = ? AND status = 'ongoing'`, string(id))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ongoing incident: %w", err)
	}
	return inc, nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, f repo.IncidentFilter) ([]domain.Incident, error) {
	var args []any
	qb := strings.Builder{}
	qb.WriteString(`SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`)
	if f.MonitorID != "" {
		qb.WriteString(" AND monitor_id = ?")
		args = append(args, string(f.MonitorID))
	}
	if f.Status != "" {
		qb.WriteString(" AND status = ?")
		args = append(args, string(f.Status))
	}
	qb.WriteString(" ORDER BY started_at DESC, id DESC LIMIT ?")
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()
	out := []domain.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
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
		return fmt.Errorf("failed to encode channel config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_channels (id, owner_id, type, config, is_active) VALUES (?, ?, ?, ?, ?)`,
		ch.ID, ch.OwnerID, string(ch.Type), string(cfg), ch.Active)
	if err != nil {
		return fmt.Errorf("failed to insert alert channel: %w", err)
	}
	return nil
}

// ActiveChannels leaves Config nil when the stored JSON is malformed; the
// dispatcher reports that channel as failed.
func (s *Store) ActiveChannels(ctx context.Context, ownerID string) ([]domain.AlertChannel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, type, config, is_active FROM alert_channels
		  WHERE owner_id = ? AND is_active = 1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert channels: %w", err)
	}
	defer rows.Close()
	var out []domain.AlertChannel
	for rows.Next() {
		var (
			ch  domain.AlertChannel
			raw string
		)
		if err := rows.Scan(&ch.ID, &ch.OwnerID, &ch.Type, &raw, &ch.Active); err != nil {
			return nil, fmt.Errorf("failed to scan alert channel row: %w", err)
		}
		var cfg map[string]string
		if json.Unmarshal([]byte(raw), &cfg) == nil {
			ch.Config = cfg
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) SetOwnerEmail(ctx context.Context, ownerID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (id, email) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email`, ownerID, email)
	if err != nil {
		return fmt.Errorf("failed to upsert owner: %w", err)
	}
	return nil
}

func (s *Store) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `SELECT email FROM owners WHERE id = ?`, ownerID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get owner email: %w", err)
	}
	return email, nil
}

var _ repo.Store = (*Store)(nil)
