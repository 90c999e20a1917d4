// Package provision idempotently ensures the database role and database a
// preview application expects exist on a running PostgreSQL service. Both
// creations follow create-if-absent semantics: an existing role or
// database is skipped, never an error, so the same credential can be
// provisioned against a fresh volume and an already-populated one alike.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
)

// Provisioning error kinds.
var (
	// ErrPermissionDenied indicates the admin connection lacks the
	// privileges to create roles or databases.
	ErrPermissionDenied = errors.New("provisioning permission denied")

	// ErrBackendUnavailable indicates the database service could not be
	// reached or answered abnormally.
	ErrBackendUnavailable = errors.New("database backend unavailable")
)

// PostgreSQL error codes the provisioner interprets.
const (
	codeDuplicateObject       = "42710"
	codeDuplicateDatabase     = "42P04"
	codeInsufficientPrivilege = "42501"
	codeInvalidAuthorization  = "28000"
	codeInvalidPassword       = "28P01"
)

// querier is the subset of *pgx.Conn the provisioner needs. Narrowed for
// testability.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Provisioner ensures roles and databases over an admin connection. It
// must only be used after the owning service reports ready.
type Provisioner struct {
	log zerolog.Logger
	db  querier
}

// New returns a provisioner operating over db, typically a *pgx.Conn
// obtained from Connect.
func New(log zerolog.Logger, db querier) *Provisioner {
	return &Provisioner{log: log, db: db}
}

// Connect opens the admin connection used for provisioning. Failures are
// reported as ErrBackendUnavailable.
func Connect(ctx context.Context, adminURL string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return conn, nil
}

// Ensurer provisions over a fresh admin connection per call, opened only
// once the owning database service is ready.
type Ensurer struct {
	log      zerolog.Logger
	adminURL string
}

// NewEnsurer returns an Ensurer connecting to adminURL.
func NewEnsurer(log zerolog.Logger, adminURL string) *Ensurer {
	return &Ensurer{log: log, adminURL: adminURL}
}

// EnsureRoleAndDatabase connects, provisions and disconnects.
func (e *Ensurer) EnsureRoleAndDatabase(ctx context.Context, cred config.Credential) error {
	conn, err := Connect(ctx, e.adminURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return New(e.log, conn).EnsureRoleAndDatabase(ctx, cred)
}

// EnsureRoleAndDatabase makes sure cred's role exists with login rights
// and that cred's database exists owned by that role. Calling it twice
// with the same credential succeeds both times and leaves identical state.
func (p *Provisioner) EnsureRoleAndDatabase(ctx context.Context, cred config.Credential) error {
	if err := p.ensureRole(ctx, cred); err != nil {
		return err
	}
	return p.ensureDatabase(ctx, cred)
}

func (p *Provisioner) ensureRole(ctx context.Context, cred config.Credential) error {
	exists, err := p.rowExists(ctx, "SELECT 1 FROM pg_roles WHERE rolname = $1", cred.Role)
	if err != nil {
		return err
	}
	if exists {
		p.log.Debug().Str("role", cred.Role).Msg("Role already exists, skipping")
		return nil
	}

	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN CREATEDB", pgx.Identifier{cred.Role}.Sanitize())
	if cred.Password != "" {
		stmt += fmt.Sprintf(" PASSWORD '%s'", strings.ReplaceAll(cred.Password, "'", "''"))
	}
	if _, err := p.db.Exec(ctx, stmt); err != nil {
		// A concurrent creation since the existence check is not an error.
		if pgCode(err) == codeDuplicateObject {
			return nil
		}
		return classify(fmt.Errorf("create role %s: %w", cred.Role, err))
	}
	p.log.Info().Str("role", cred.Role).Msg("Created role")
	return nil
}

func (p *Provisioner) ensureDatabase(ctx context.Context, cred config.Credential) error {
	exists, err := p.rowExists(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", cred.Database)
	if err != nil {
		return err
	}
	if exists {
		p.log.Debug().Str("database", cred.Database).Msg("Database already exists, skipping")
		return nil
	}

	// CREATE DATABASE cannot be parameterized and must run outside a
	// transaction; pgx's default exec mode satisfies that.
	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{cred.Database}.Sanitize(),
		pgx.Identifier{cred.Role}.Sanitize())
	if _, err := p.db.Exec(ctx, stmt); err != nil {
		if pgCode(err) == codeDuplicateDatabase {
			return nil
		}
		return classify(fmt.Errorf("create database %s: %w", cred.Database, err))
	}
	p.log.Info().Str("database", cred.Database).Str("owner", cred.Role).Msg("Created database")
	return nil
}

func (p *Provisioner) rowExists(ctx context.Context, query string, arg string) (bool, error) {
	var one int
	err := p.db.QueryRow(ctx, query, arg).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, classify(fmt.Errorf("existence check: %w", err))
	}
}

// pgCode extracts the SQLSTATE from a pgx error chain, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps backend errors onto the provisioning error kinds.
func classify(err error) error {
	switch pgCode(err) {
	case codeInsufficientPrivilege, codeInvalidAuthorization, codeInvalidPassword:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
