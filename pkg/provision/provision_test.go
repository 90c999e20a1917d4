package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
)

// fakeDB simulates the catalog state of a PostgreSQL backend.
type fakeDB struct {
	roles     map[string]bool
	databases map[string]bool
	executed  []string

	execErr error // returned by the next Exec, if set
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		roles:     make(map[string]bool),
		databases: make(map[string]bool),
	}
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.executed = append(f.executed, sql)
	if f.execErr != nil {
		err := f.execErr
		f.execErr = nil
		return pgconn.CommandTag{}, err
	}
	switch {
	case strings.HasPrefix(sql, "CREATE ROLE"):
		f.roles[identifierAfter(sql, "CREATE ROLE ")] = true
	case strings.HasPrefix(sql, "CREATE DATABASE"):
		f.databases[identifierAfter(sql, "CREATE DATABASE ")] = true
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	name, _ := args[0].(string)
	var exists bool
	if strings.Contains(sql, "pg_roles") {
		exists = f.roles[name]
	} else {
		exists = f.databases[name]
	}
	return fakeRow{exists: exists}
}

func identifierAfter(sql, prefix string) string {
	rest := strings.TrimPrefix(sql, prefix)
	name := strings.Fields(rest)[0]
	return strings.Trim(name, `"`)
}

type fakeRow struct {
	exists bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.exists {
		return pgx.ErrNoRows
	}
	if p, ok := dest[0].(*int); ok {
		*p = 1
	}
	return nil
}

var testCred = config.Credential{Role: "app", Password: "secret", Database: "app"}

func TestEnsureCreatesRoleAndDatabaseOnFreshVolume(t *testing.T) {
	db := newFakeDB()
	p := New(zerolog.Nop(), db)

	if err := p.EnsureRoleAndDatabase(context.Background(), testCred); err != nil {
		t.Fatalf("EnsureRoleAndDatabase() error = %v", err)
	}
	if !db.roles["app"] {
		t.Error("role was not created")
	}
	if !db.databases["app"] {
		t.Error("database was not created")
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	db := newFakeDB()
	p := New(zerolog.Nop(), db)

	for i := 0; i < 2; i++ {
		if err := p.EnsureRoleAndDatabase(context.Background(), testCred); err != nil {
			t.Fatalf("run %d: EnsureRoleAndDatabase() error = %v", i+1, err)
		}
	}

	var creates int
	for _, sql := range db.executed {
		if strings.HasPrefix(sql, "CREATE") {
			creates++
		}
	}
	if creates != 2 {
		t.Errorf("CREATE statements = %d, want 2 (one role, one database)", creates)
	}
}

func TestEnsureSkipsExistingRole(t *testing.T) {
	db := newFakeDB()
	db.roles["app"] = true
	p := New(zerolog.Nop(), db)

	if err := p.EnsureRoleAndDatabase(context.Background(), testCred); err != nil {
		t.Fatalf("EnsureRoleAndDatabase() error = %v", err)
	}
	for _, sql := range db.executed {
		if strings.HasPrefix(sql, "CREATE ROLE") {
			t.Errorf("role was re-created: %s", sql)
		}
	}
}

func TestEnsureToleratesDuplicateRace(t *testing.T) {
	// Existence check says absent, creation races with another writer.
	db := newFakeDB()
	db.execErr = &pgconn.PgError{Code: codeDuplicateObject}
	p := New(zerolog.Nop(), db)

	if err := p.EnsureRoleAndDatabase(context.Background(), testCred); err != nil {
		t.Fatalf("EnsureRoleAndDatabase() error = %v", err)
	}
}

func TestEnsureMapsPermissionDenied(t *testing.T) {
	db := newFakeDB()
	db.execErr = &pgconn.PgError{Code: codeInsufficientPrivilege}
	p := New(zerolog.Nop(), db)

	err := p.EnsureRoleAndDatabase(context.Background(), testCred)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestEnsureMapsBackendFailure(t *testing.T) {
	db := newFakeDB()
	db.execErr = errors.New("connection reset")
	p := New(zerolog.Nop(), db)

	err := p.EnsureRoleAndDatabase(context.Background(), testCred)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestPasswordIsQuoted(t *testing.T) {
	db := newFakeDB()
	p := New(zerolog.Nop(), db)

	cred := config.Credential{Role: "app", Password: "it's", Database: "app"}
	if err := p.EnsureRoleAndDatabase(context.Background(), cred); err != nil {
		t.Fatalf("EnsureRoleAndDatabase() error = %v", err)
	}
	for _, sql := range db.executed {
		if strings.HasPrefix(sql, "CREATE ROLE") && !strings.Contains(sql, "'it''s'") {
			t.Errorf("password not escaped: %s", sql)
		}
	}
}
