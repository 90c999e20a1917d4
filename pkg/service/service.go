package service

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

// Start error kinds.
var (
	// ErrLaunchFailed indicates the start command itself exited with an error.
	ErrLaunchFailed = errors.New("service launch failed")

	// ErrStartTimeout indicates the service did not become ready within
	// its startup timeout.
	ErrStartTimeout = errors.New("service start timed out")
)

// State is the lifecycle state of a managed service.
type State string

const (
	// StateStopped is the initial and final state.
	StateStopped State = "stopped"

	// StateStarting means the start command was issued but the readiness
	// probe has not yet answered.
	StateStarting State = "starting"

	// StateReady means the readiness probe answered; dependents may use
	// the service.
	StateReady State = "ready"
)

// Handle represents a started service. Only a handle in StateReady may be
// passed to dependents.
type Handle struct {
	spec      config.ServiceSpec
	state     State
	startedAt time.Time
}

// Name returns the service name.
func (h *Handle) Name() string { return h.spec.Name }

// State returns the current lifecycle state.
func (h *Handle) State() State { return h.state }

// Spec returns the spec the service was started from.
func (h *Handle) Spec() config.ServiceSpec { return h.spec }

// Manager starts and stops services. A single manager instance owns all
// services of a bootstrap phase; it is not safe for concurrent use against
// the same named service.
type Manager struct {
	log zerolog.Logger

	// probeFor builds the readiness probe for a spec. Overridable in tests.
	probeFor func(config.ProbeSpec) (Probe, error)
}

// NewManager returns a manager logging through log.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:      log,
		probeFor: NewProbe,
	}
}

// Start launches the service described by spec and polls its readiness
// probe until the service answers or the startup timeout expires. The
// returned handle is in StateReady on success. The whole start sequence is
// bounded: Start returns ErrStartTimeout no later than the startup timeout
// plus one poll interval, and a service that was launched but never became
// ready is stopped again before Start returns, so a failed Start never
// leaks a running service.
func (m *Manager) Start(ctx context.Context, spec config.ServiceSpec) (*Handle, error) {
	probe, err := m.probeFor(spec.Probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, spec.Name, err)
	}

	h := &Handle{spec: spec, state: StateStopped}
	deadline := time.Now().Add(spec.StartupTimeout.Std())

	// An already-running service is not relaunched.
	if err := checkOnce(ctx, probe, deadline); err == nil {
		h.state = StateReady
		h.startedAt = time.Now()
		m.log.Info().Str("service", spec.Name).Msg("Service already running")
		return h, nil
	}

	m.log.Info().Str("service", spec.Name).Strs("command", spec.Start).Msg("Starting service")
	if err := runCommand(ctx, spec.Start); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, spec.Name, err)
	}
	h.state = StateStarting
	h.startedAt = time.Now()

	if err := m.awaitReady(ctx, h, probe, deadline); err != nil {
		// The launch succeeded, so a service the caller has no handle
		// to may be running. Best-effort stop before reporting failure.
		stopCtx := context.WithoutCancel(ctx)
		if stopErr := runCommand(stopCtx, spec.Stop); stopErr != nil {
			m.log.Warn().Err(stopErr).Str("service", spec.Name).Msg("Stop after failed start failed")
		} else {
			m.log.Info().Str("service", spec.Name).Msg("Stopped service after failed start")
		}
		return nil, err
	}
	h.state = StateReady
	m.log.Info().
		Str("service", spec.Name).
		Dur("took", time.Since(h.startedAt)).
		Msg("Service ready")
	return h, nil
}

// awaitReady polls the probe at the spec's interval until deadline. The
// first check runs immediately so an already-ready service costs no wait.
func (m *Manager) awaitReady(ctx context.Context, h *Handle, probe Probe, deadline time.Time) error {
	spec := h.spec

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := checkOnce(ctx, probe, deadline)
		if err == nil {
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %v (%d probe attempts): %v",
				ErrStartTimeout, spec.Name, spec.StartupTimeout.Std(), attempt, lastErr)
		}

		m.log.Debug().
			Str("service", spec.Name).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("Service not ready yet")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrStartTimeout, spec.Name, ctx.Err())
		case <-time.After(spec.PollInterval.Std()):
		}
	}
}

// checkOnce runs a single probe attempt capped at the poll deadline, so a
// wedged probe cannot push a start failure past the startup timeout.
func checkOnce(ctx context.Context, probe Probe, deadline time.Time) error {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return probe.Check(ctx)
}

// Stop issues the service's stop command. Callers on teardown paths log
// the returned error instead of propagating it; stopping must never turn a
// successful phase into a failure.
func (m *Manager) Stop(ctx context.Context, h *Handle) error {
	if h == nil || h.state == StateStopped {
		return nil
	}
	m.log.Info().Str("service", h.spec.Name).Strs("command", h.spec.Stop).Msg("Stopping service")
	if err := runCommand(ctx, h.spec.Stop); err != nil {
		return fmt.Errorf("stop %s: %w", h.spec.Name, err)
	}
	h.state = StateStopped
	return nil
}

// runCommand executes argv, inheriting stdout and capturing stderr for the
// error message.
func runCommand(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
