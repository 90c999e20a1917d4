package commands

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the container entrypoint phase and exec the application",
		Long: `Run the run-time entrypoint phase of the preview container.

This command:
  - Starts the manifest's services and waits for readiness
  - Execs the application's serving process, which inherits the
    environment (DATABASE_URL, REDIS_URL) and PID 1 duties

Services stay running and owned by the container's process supervisor
until shutdown. If any service never becomes ready within its startup
timeout, the phase aborts with a non-zero exit and the application
process is never started.`,
		Example: `  # Container ENTRYPOINT
  previewkit run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, m, cleanup, err := newOrchestrator(ctx)
			if err != nil {
				return err
			}

			if err := o.Run(ctx); err != nil {
				cleanup()
				return err
			}
			// The journal must be flushed before the process image is
			// replaced.
			cleanup()

			argv := m.Commands.App
			path, err := exec.LookPath(argv[0])
			if err != nil {
				return fmt.Errorf("application command not found: %w", err)
			}
			log.Info().Strs("command", argv).Msg("Handing off to application")
			return syscall.Exec(path, argv, os.Environ())
		},
	}
	return cmd
}
