package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/previewkit/previewkit/pkg/bootstrap"
)

func newBuildCommand() *cobra.Command {
	var (
		skipMigrations bool
		seed           bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the build-time provisioning phase",
		Long: `Run the build-time provisioning phase of the preview container.

This command:
  - Starts the manifest's services and waits for readiness
  - Ensures the application role and database exist (create if absent)
  - Builds the frontend bundle and collects static assets
  - Applies schema migrations (unless --skip-migrations)
  - Stops every started service before returning

Any failing step aborts the phase with a non-zero exit so the image
build fails and a broken image is never published. Every step is
idempotent, so a failed build can simply be retried.`,
		Example: `  # Full build-time provisioning
  previewkit build

  # Provision and build assets, leave migrations to the entrypoint
  previewkit build --skip-migrations

  # Additionally seed demo data after migrating
  previewkit build --seed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Seeding runs against a freshly migrated schema.
			if seed && skipMigrations {
				return errors.New("--seed requires migrations; drop --skip-migrations")
			}

			ctx := cmd.Context()
			o, _, cleanup, err := newOrchestrator(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return o.Build(ctx, bootstrap.BuildOptions{
				SkipMigrations: skipMigrations,
				Seed:           seed,
			})
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations at build time")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed demo data after migrations")

	return cmd
}
