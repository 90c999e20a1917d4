// Package journal records bootstrap phase runs in a SQLite database on
// the container's persistent volume. The journal is an audit trail, not a
// control surface: writes are best-effort, and a journal failure never
// fails a bootstrap phase.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run is one recorded bootstrap phase run.
type Run struct {
	ID          string     `json:"id"`
	Phase       string     `json:"phase"`
	State       string     `json:"state"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Journal is a SQLite-backed record of bootstrap runs.
type Journal struct {
	log zerolog.Logger
	db  *sql.DB
}

// Open opens (creating if needed) the journal database under dataDir and
// applies its schema migrations.
func Open(ctx context.Context, log zerolog.Logger, dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "previewkit.db")

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{log: log, db: db}
	if err := j.migrateSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrateSchema() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
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

// BeginRun records the start of a phase run and returns the run ID. A
// write failure is logged and reported through an empty ID; later calls
// with an empty ID are no-ops.
func (j *Journal) BeginRun(ctx context.Context, phase string) string {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, phase, state, started_at) VALUES (?, ?, 'init', ?)`,
		id, phase, time.Now().UTC())
	if err != nil {
		j.log.Warn().Err(err).Str("phase", phase).Msg("Journal write failed")
		return ""
	}
	return id
}

// RecordState updates the furthest state a run has reached.
func (j *Journal) RecordState(ctx context.Context, runID, state string) {
	if runID == "" {
		return
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET state = ? WHERE id = ?`, state, runID)
	if err != nil {
		j.log.Warn().Err(err).Str("run", runID).Msg("Journal write failed")
	}
}

// EndRun records the terminal state of a run, with the aborting error if
// the phase failed.
func (j *Journal) EndRun(ctx context.Context, runID, state string, runErr error) {
	if runID == "" {
		return
	}
	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, completed_at = ? WHERE id = ?`,
		state, msg, time.Now().UTC(), runID)
	if err != nil {
		j.log.Warn().Err(err).Str("run", runID).Msg("Journal write failed")
	}
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, phase, state, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Phase, &r.State, &r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
