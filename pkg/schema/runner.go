// Package schema applies pending database migrations for a preview
// environment in a single ordered batch. Migrations are forward-only:
// nothing here ever rolls a schema back, and a batch that fails part-way
// is a terminal failure left for the next bootstrap attempt to resume
// from. Two modes are supported: the native runner reads ordered .sql
// files from a directory, or an opaque collaborator command can be run
// instead.
package schema

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/rs/zerolog"

	// file:// migration source
	_ "github.com/golang-migrate/migrate/v4/source/file"
	// database/sql driver backing the migration connection
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/previewkit/previewkit/pkg/config"
)

// Migration error kinds.
var (
	// ErrConnectionRefused indicates the database was not reachable.
	ErrConnectionRefused = errors.New("database connection refused")

	// ErrSchemaConflict indicates a migration step failed against the
	// current schema.
	ErrSchemaConflict = errors.New("schema migration conflict")
)

// Runner applies migrations. It must only run after the owning database
// service reports ready.
type Runner struct {
	log zerolog.Logger

	dir     string
	command []string
	seedCmd []string
}

// NewRunner builds a runner from the manifest's migration settings. When
// cmds.Migrate is set it takes precedence over the native directory mode.
func NewRunner(log zerolog.Logger, migrations config.Migrations, cmds config.Commands) *Runner {
	return &Runner{
		log:     log,
		dir:     migrations.Dir,
		command: cmds.Migrate,
		seedCmd: cmds.Seed,
	}
}

// Apply runs all pending migrations as one ordered batch. The connection
// configuration is checked before any network activity, so a missing
// DATABASE_URL surfaces as a configuration error rather than a connection
// failure.
func (r *Runner) Apply(ctx context.Context, cfg config.ConnectionConfig) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: %s", config.ErrMissingValue, config.EnvDatabaseURL)
	}

	if len(r.command) > 0 {
		return r.applyCommand(ctx, cfg)
	}
	return r.applyNative(ctx, cfg)
}

func (r *Runner) applyNative(ctx context.Context, cfg config.ConnectionConfig) error {
	if r.dir == "" {
		r.log.Debug().Msg("No migrations directory configured, skipping")
		return nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+r.dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaConflict, err)
	}

	r.log.Info().Str("dir", r.dir).Msg("Applying migrations")
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %v", ErrSchemaConflict, err)
	}
	r.log.Info().Dur("took", time.Since(start)).Msg("Migrations applied")
	return nil
}

func (r *Runner) applyCommand(ctx context.Context, cfg config.ConnectionConfig) error {
	r.log.Info().Strs("command", r.command).Msg("Applying migrations via collaborator")
	if err := runWithConnections(ctx, r.command, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaConflict, err)
	}
	return nil
}

// Seed invokes the demo-data seeding collaborator, if configured. It runs
// after Apply so the schema it populates is current.
func (r *Runner) Seed(ctx context.Context, cfg config.ConnectionConfig) error {
	if len(r.seedCmd) == 0 {
		return nil
	}
	r.log.Info().Strs("command", r.seedCmd).Msg("Seeding demo data")
	if err := runWithConnections(ctx, r.seedCmd, cfg); err != nil {
		return fmt.Errorf("%w: seed: %v", ErrSchemaConflict, err)
	}
	return nil
}

func runWithConnections(ctx context.Context, argv []string, cfg config.ConnectionConfig) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		config.EnvDatabaseURL+"="+cfg.DatabaseURL,
		config.EnvRedisURL+"="+cfg.RedisURL,
	)
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
