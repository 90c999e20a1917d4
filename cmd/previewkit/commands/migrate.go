package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/previewkit/previewkit/pkg/config"
	"github.com/previewkit/previewkit/pkg/schema"
)

func newMigrateCommand() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply all pending schema migrations against the database named by
DATABASE_URL, as one ordered forward-only batch.

The database service must already be running. A migration that fails
part-way leaves the applied prefix in place; fix the conflict and re-run.`,
		Example: `  # Apply everything pending
  previewkit migrate

  # Apply and then seed demo data
  previewkit migrate --seed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := config.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			conns, err := config.LoadConnections()
			if err != nil {
				return err
			}

			runner := schema.NewRunner(log.Logger, m.Migrations, m.Commands)
			if err := runner.Apply(ctx, conns); err != nil {
				return err
			}
			if seed {
				return runner.Seed(ctx, conns)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "seed demo data after migrating")

	return cmd
}
