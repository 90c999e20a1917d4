// Package assets drives the frontend asset pipeline of the preview build:
// the external bundler and the static-asset collection step. Both are
// opaque collaborator commands; this package only sequences them and
// observes their exit status. Neither step touches a live service:
// static collection in particular is given connection values that may
// point at unreachable placeholders, so it can run during image build.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
)

// ErrToolchainFailure indicates a build collaborator exited nonzero.
var ErrToolchainFailure = errors.New("asset toolchain failed")

// Builder invokes the frontend build collaborators.
type Builder struct {
	log zerolog.Logger

	frontendCmd []string
	collectCmd  []string
}

// NewBuilder returns a builder running the commands from cmds.
func NewBuilder(log zerolog.Logger, cmds config.Commands) *Builder {
	return &Builder{
		log:         log,
		frontendCmd: cmds.BuildFrontend,
		collectCmd:  cmds.CollectStatic,
	}
}

// BuildFrontend invokes the external bundler. A missing command is a
// no-op so previews without a frontend build skip the step cleanly.
func (b *Builder) BuildFrontend(ctx context.Context) error {
	if len(b.frontendCmd) == 0 {
		b.log.Debug().Msg("No frontend build command configured, skipping")
		return nil
	}
	return b.run(ctx, "frontend build", b.frontendCmd, nil)
}

// CollectStatic invokes the static-collection collaborator with cfg's
// connection values in its environment. The step requires only the
// values, never a reachable service.
func (b *Builder) CollectStatic(ctx context.Context, cfg config.ConnectionConfig) error {
	if len(b.collectCmd) == 0 {
		b.log.Debug().Msg("No static collection command configured, skipping")
		return nil
	}
	env := []string{
		config.EnvDatabaseURL + "=" + cfg.DatabaseURL,
		config.EnvRedisURL + "=" + cfg.RedisURL,
	}
	return b.run(ctx, "static collection", b.collectCmd, env)
}

func (b *Builder) run(ctx context.Context, step string, argv []string, extraEnv []string) error {
	b.log.Info().Str("step", step).Strs("command", argv).Msg("Running asset step")
	start := time.Now()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), extraEnv...)

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s: %v: %s", ErrToolchainFailure, step, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("%w: %s: %v", ErrToolchainFailure, step, err)
	}

	b.log.Info().Str("step", step).Dur("took", time.Since(start)).Msg("Asset step finished")
	return nil
}
