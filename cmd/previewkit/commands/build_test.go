package commands

import (
	"io"
	"strings"
	"testing"
)

func TestBuildRejectsSeedWithSkipMigrations(t *testing.T) {
	cmd := newBuildCommand()
	cmd.SetArgs([]string{"--seed", "--skip-migrations"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected --seed with --skip-migrations to be rejected")
	}
	if !strings.Contains(err.Error(), "--seed") {
		t.Errorf("unexpected error: %v", err)
	}
}
