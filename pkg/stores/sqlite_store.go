package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/portcheck/portcheck/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists runs, unit outcomes, case verdicts and events.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a store for the given database path. Call Init
// before use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database, enables WAL mode and foreign keys, and applies
// pending migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s.db = db

	return s.migrate()
}

func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, project, status, started_at, units_total)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Project, string(run.Status), run.StartedAt, run.UnitsTotal)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun records a run's terminal status and aggregate counts.
func (s *SQLiteStore) CompleteRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, units_converted = ?, units_failed = ?, units_skipped = ?, error = ?
		WHERE id = ?
	`
	now := time.Now()
	res, err := s.db.ExecContext(ctx, query,
		string(run.Status), now, run.UnitsConverted, run.UnitsFailed, run.UnitsSkipped, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	run.CompletedAt = &now
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, project, status, started_at, completed_at, units_total,
		       units_converted, units_failed, units_skipped, error
		FROM runs WHERE id = ?
	`
	run := &Run{}
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Project, &status, &run.StartedAt, &run.CompletedAt,
		&run.UnitsTotal, &run.UnitsConverted, &run.UnitsFailed, &run.UnitsSkipped, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = model.RunStatus(status)
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, project, status, started_at, completed_at, units_total,
		       units_converted, units_failed, units_skipped, error
		FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		var status string
		if err := rows.Scan(
			&run.ID, &run.Project, &status, &run.StartedAt, &run.CompletedAt,
			&run.UnitsTotal, &run.UnitsConverted, &run.UnitsFailed, &run.UnitsSkipped, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = model.RunStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveUnitOutcome upserts the state of one unit within a run.
func (s *SQLiteStore) SaveUnitOutcome(ctx context.Context, o *UnitOutcome) error {
	query := `
		INSERT INTO unit_outcomes (run_id, unit_id, status, attempts, detail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, unit_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			detail = excluded.detail,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		o.RunID, o.UnitID, string(o.Status), o.Attempts, o.Detail, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save unit outcome: %w", err)
	}
	return nil
}

// ListUnitOutcomes returns the unit outcomes of a run ordered by unit ID.
func (s *SQLiteStore) ListUnitOutcomes(ctx context.Context, runID string) ([]*UnitOutcome, error) {
	query := `
		SELECT run_id, unit_id, status, attempts, detail, updated_at
		FROM unit_outcomes WHERE run_id = ? ORDER BY unit_id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*UnitOutcome{}
	for rows.Next() {
		o := &UnitOutcome{}
		var status string
		if err := rows.Scan(&o.RunID, &o.UnitID, &status, &o.Attempts, &o.Detail, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit outcome: %w", err)
		}
		o.Status = model.ConversionStatus(status)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// SaveVerdict persists every case comparison of one validation attempt.
func (s *SQLiteStore) SaveVerdict(ctx context.Context, runID string, verdict *model.UnitVerdict) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO case_verdicts (run_id, unit_id, attempt, case_id, case_name, function, match, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, cv := range verdict.Cases {
		detail := verdictDetail(cv)
		if _, err := tx.ExecContext(ctx, query,
			runID, verdict.UnitID, verdict.Attempt, cv.CaseID, cv.Name, cv.Function, cv.Match, detail); err != nil {
			return fmt.Errorf("failed to save case verdict: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verdicts: %w", err)
	}
	return nil
}

func verdictDetail(cv model.CaseVerdict) string {
	if cv.Match {
		return ""
	}
	parts := make([]string, len(cv.Differences))
	for i, d := range cv.Differences {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// ListVerdicts returns the persisted case verdicts for one unit attempt.
func (s *SQLiteStore) ListVerdicts(ctx context.Context, runID, unitID string, attempt int) ([]*CaseVerdictRecord, error) {
	query := `
		SELECT run_id, unit_id, attempt, case_id, case_name, function, match, detail
		FROM case_verdicts
		WHERE run_id = ? AND unit_id = ? AND attempt = ?
		ORDER BY case_id
	`
	rows, err := s.db.QueryContext(ctx, query, runID, unitID, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	defer rows.Close()

	records := []*CaseVerdictRecord{}
	for rows.Next() {
		r := &CaseVerdictRecord{}
		if err := rows.Scan(&r.RunID, &r.UnitID, &r.Attempt, &r.CaseID, &r.CaseName, &r.Function, &r.Match, &r.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// AppendEvent persists one engine event.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e *EventRecord) error {
	query := `
		INSERT INTO events (run_id, unit_id, type, level, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.RunID, e.UnitID, e.Type, e.Level, e.Message, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns a run's events oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]*EventRecord, error) {
	query := `
		SELECT id, run_id, unit_id, type, level, message, created_at
		FROM events WHERE run_id = ? ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		e := &EventRecord{}
		var unitID sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &unitID, &e.Type, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.UnitID = unitID.String
		events = append(events, e)
	}
	return events, rows.Err()
}
