package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
)

var testConns = config.ConnectionConfig{
	DatabaseURL: "postgres://app@localhost:5432/app",
	RedisURL:    "redis://localhost:6379",
}

func TestApplyRequiresDatabaseURL(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{Dir: "migrations"}, config.Commands{})

	err := r.Apply(context.Background(), config.ConnectionConfig{RedisURL: testConns.RedisURL})
	if !errors.Is(err, config.ErrMissingValue) {
		t.Fatalf("expected configuration error before any connection, got %v", err)
	}
}

func TestApplyCommandMode(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{},
		config.Commands{Migrate: []string{"/bin/sh", "-c", "test -n \"$DATABASE_URL\""}})

	if err := r.Apply(context.Background(), testConns); err != nil {
		t.Fatalf("Apply() in command mode error = %v", err)
	}
}

func TestApplyCommandModeFailure(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{},
		config.Commands{Migrate: []string{"/bin/sh", "-c", "echo 'relation exists' >&2; exit 1"}})

	err := r.Apply(context.Background(), testConns)
	if !errors.Is(err, ErrSchemaConflict) {
		t.Fatalf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestApplyNativeWithoutDirIsNoop(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{}, config.Commands{})

	// No directory and no command configured: nothing to do, and in
	// particular no connection attempt against the placeholder URL.
	if err := r.Apply(context.Background(), testConns); err != nil {
		t.Fatalf("Apply() with nothing configured error = %v", err)
	}
}

func TestSeedRunsConfiguredCommand(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{},
		config.Commands{Seed: []string{"/bin/sh", "-c", "exit 0"}})

	if err := r.Seed(context.Background(), testConns); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
}

func TestSeedFailureIsSchemaConflict(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{},
		config.Commands{Seed: []string{"/bin/sh", "-c", "exit 9"}})

	err := r.Seed(context.Background(), testConns)
	if !errors.Is(err, ErrSchemaConflict) {
		t.Fatalf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestSeedWithoutCommandIsNoop(t *testing.T) {
	r := NewRunner(zerolog.Nop(), config.Migrations{}, config.Commands{})
	if err := r.Seed(context.Background(), testConns); err != nil {
		t.Fatalf("Seed() with no command error = %v", err)
	}
}
