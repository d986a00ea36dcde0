package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/helmdeck/helmdeck/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists run history in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting in SQLite.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

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

// SaveRun writes the run row if it does not exist yet. The first event
// of a run creates the row, so the call is idempotent.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT OR IGNORE INTO runs (id, environment, context, started_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Environment, rec.Context, rec.StartedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// CompleteRun finalizes the run row with aggregate counts and writes
// one outcome row per processed component, in a single transaction.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *engine.DeployReport, runErr string) error {
	ok, failed, rolled := report.Counts()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, ok = ?, failed = ?, rolled_back = ?, error = ?
		WHERE id = ?
	`, time.Now().UTC(), ok, failed, rolled, runErr, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	for _, o := range report.Outcomes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, name, namespace, status, attempts, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, o.Name, o.Namespace, string(o.Status), o.Attempts, o.Error); err != nil {
			return fmt.Errorf("failed to save outcome for %s: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run completion: %w", err)
	}
	return nil
}

// AppendEvent writes one lifecycle event row.
func (s *SQLiteStore) AppendEvent(ctx context.Context, rec EventRecord) error {
	query := `
		INSERT INTO events (run_id, type, ts, payload)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query, rec.RunID, rec.Type, rec.Timestamp.UTC(), rec.Payload); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, environment, context, started_at, finished_at, ok, failed, rolled_back, error
		FROM runs
		WHERE id = ?
	`

	rec := &RunRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Environment,
		&rec.Context,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.OK,
		&rec.Failed,
		&rec.RolledBack,
		&rec.Error,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return rec, nil
}

// ListRuns lists runs newest first, with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	query := `
		SELECT id, environment, context, started_at, finished_at, ok, failed, rolled_back, error
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		rec := &RunRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.Environment,
			&rec.Context,
			&rec.StartedAt,
			&rec.FinishedAt,
			&rec.OK,
			&rec.Failed,
			&rec.RolledBack,
			&rec.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListOutcomes returns the persisted outcomes of one run, in processing
// order.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]*OutcomeRecord, error) {
	query := `
		SELECT run_id, name, namespace, status, attempts, error
		FROM outcomes
		WHERE run_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*OutcomeRecord{}
	for rows.Next() {
		rec := &OutcomeRecord{}
		if err := rows.Scan(&rec.RunID, &rec.Name, &rec.Namespace, &rec.Status, &rec.Attempts, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// ListEvents returns the persisted events of one run, in emission order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]*EventRecord, error) {
	query := `
		SELECT id, run_id, type, ts, payload
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	evs := []*EventRecord{}
	for rows.Next() {
		rec := &EventRecord{}
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Type, &rec.Timestamp, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evs = append(evs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return evs, nil
}
