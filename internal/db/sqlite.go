package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-gate/internal/health"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS reports (
    run_id          TEXT PRIMARY KEY,
    validation_id   TEXT NOT NULL DEFAULT '',
    phase           TEXT NOT NULL DEFAULT 'single',
    score           REAL NOT NULL,
    critical_issues INTEGER NOT NULL DEFAULT 0,
    recommendation  TEXT NOT NULL,
    mode            TEXT NOT NULL,
    pipeline_id     TEXT NOT NULL DEFAULT '',
    commit_sha      TEXT NOT NULL DEFAULT '',
    environment     TEXT NOT NULL DEFAULT '',
    namespace       TEXT NOT NULL DEFAULT '',
    report          TEXT NOT NULL DEFAULT '{}',
    created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_pipeline ON reports(pipeline_id, created_at DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_reports_validation ON reports(validation_id) WHERE validation_id != '';
`,
	},
}

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const reportColumns = `run_id,validation_id,phase,score,critical_issues,recommendation,mode,pipeline_id,commit_sha,environment,namespace,report,created_at`

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create archive dir %q: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Reports ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec == nil || rec.RunID == "" {
		return fmt.Errorf("save report: run id is required")
	}
	body := []byte("{}")
	if rec.Report != nil {
		b, err := json.Marshal(rec.Report)
		if err != nil {
			return fmt.Errorf("encode report %s: %w", rec.RunID, err)
		}
		body = b
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO reports(`+reportColumns+`)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(run_id) DO UPDATE SET
            validation_id   = excluded.validation_id,
            phase           = excluded.phase,
            score           = excluded.score,
            critical_issues = excluded.critical_issues,
            recommendation  = excluded.recommendation,
            mode            = excluded.mode,
            report          = excluded.report
    `,
		rec.RunID, rec.ValidationID, rec.Phase, rec.Score, rec.CriticalIssues,
		rec.Recommendation, rec.Mode, rec.PipelineID, rec.CommitSHA,
		rec.Environment, rec.Namespace, string(body), created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", rec.RunID, err)
	}
	return nil
}

func (s *sqliteStore) GetReport(ctx context.Context, runID string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE run_id=?`, runID)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return rec, err
}

func (s *sqliteStore) ListReports(ctx context.Context, q ReportQuery) ([]*ReportRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any
	if q.PipelineID != "" {
		where = append(where, "pipeline_id=?")
		args = append(args, q.PipelineID)
	}
	if q.Environment != "" {
		where = append(where, "environment=?")
		args = append(args, q.Environment)
	}
	if q.Recommendation != "" {
		where = append(where, "recommendation=?")
		args = append(args, q.Recommendation)
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ValidationPair(ctx context.Context, validationID string) (*ReportRecord, *ReportRecord, error) {
	if validationID == "" {
		return nil, nil, fmt.Errorf("validation id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE validation_id=? ORDER BY created_at ASC`, validationID)
	if err != nil {
		return nil, nil, fmt.Errorf("query validation %s: %w", validationID, err)
	}
	defer rows.Close()

	var initial, final *ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, nil, err
		}
		switch health.Phase(rec.Phase) {
		case health.PhaseInitial:
			initial = rec
		case health.PhaseFinal:
			final = rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if initial == nil {
		return nil, nil, fmt.Errorf("%w: validation %s has no initial phase", ErrNotFound, validationID)
	}
	return initial, final, nil
}

func (s *sqliteStore) LatestReport(ctx context.Context, pipelineID string) (*ReportRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE pipeline_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1`, pipelineID)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no reports for pipeline %s", ErrNotFound, pipelineID)
	}
	return rec, err
}

func (s *sqliteStore) PruneReports(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return res.RowsAffected()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*ReportRecord, error) {
	var rec ReportRecord
	var body, created string
	err := row.Scan(
		&rec.RunID, &rec.ValidationID, &rec.Phase, &rec.Score, &rec.CriticalIssues,
		&rec.Recommendation, &rec.Mode, &rec.PipelineID, &rec.CommitSHA,
		&rec.Environment, &rec.Namespace, &body, &created,
	)
	if err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	var report health.HealthReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", rec.RunID, err)
	}
	rec.Report = &report
	return &rec, nil
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
