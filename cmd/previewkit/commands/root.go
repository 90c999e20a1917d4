// Package commands implements the previewkit CLI: the build-time and
// run-time bootstrap phases of a disposable preview container, plus
// standalone provisioning, migration and journal inspection commands.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	manifestPath string
	verbose      bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "previewkit",
		Short: "previewkit - preview environment bootstrap",
		Long: `previewkit bootstraps a disposable preview environment for a web
application inside a single container: it provisions a local database and
cache, builds the frontend asset bundle, applies schema migrations and
finally hands control to the application's own serving process.

Lifecycles:
  - build: run once at image build time; provisions and stops services
  - run:   the container entrypoint; starts services and execs the app

Every phase is a strictly ordered, fail-fast pipeline. A failing step
aborts with a non-zero exit so a broken image is never published; retry
policy belongs to the invoking build and deploy tooling.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "previewkit.yaml", "bootstrap manifest path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newStatusCommand())

	return rootCmd
}
