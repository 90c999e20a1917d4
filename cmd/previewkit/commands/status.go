package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/previewkit/previewkit/pkg/config"
	"github.com/previewkit/previewkit/pkg/journal"
)

func newStatusCommand() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent bootstrap runs from the journal",
		Long: `Show the most recent bootstrap phase runs recorded in the journal on
the container's data volume: which phase ran, how far it got, and the
aborting error if it failed.`,
		Example: `  # Last few runs
  previewkit status

  # Machine-readable
  previewkit status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := config.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			j, err := journal.Open(ctx, log.Logger, m.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer j.Close()

			runs, err := j.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tPHASE\tSTATE\tERROR")
			for _, r := range runs {
				errMsg := ""
				if r.Error != nil {
					errMsg = *r.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Phase, r.State, errMsg)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}
