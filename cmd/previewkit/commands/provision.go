package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/previewkit/previewkit/pkg/config"
	"github.com/previewkit/previewkit/pkg/provision"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Ensure the application role and database exist",
		Long: `Ensure the manifest's role and database exist on an already-running
database service, without going through a full bootstrap phase.

Creation is idempotent: an existing role or database is skipped, never an
error, so this command can be re-run freely against fresh and populated
volumes alike.`,
		Example: `  # Against the service from a running preview container
  previewkit provision`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.LoadManifest(manifestPath)
			if err != nil {
				return err
			}
			ensurer := provision.NewEnsurer(log.Logger, m.AdminURL)
			return ensurer.EnsureRoleAndDatabase(cmd.Context(), m.Credential)
		},
	}
	return cmd
}
