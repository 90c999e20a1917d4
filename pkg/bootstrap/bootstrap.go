package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/previewkit/previewkit/pkg/config"
	"github.com/previewkit/previewkit/pkg/service"
)

// ServiceManager starts and stops the background services of a phase.
type ServiceManager interface {
	Start(ctx context.Context, spec config.ServiceSpec) (*service.Handle, error)
	Stop(ctx context.Context, h *service.Handle) error
}

// Provisioner ensures the application's role and database exist. It is
// only invoked once the database service is ready.
type Provisioner interface {
	EnsureRoleAndDatabase(ctx context.Context, cred config.Credential) error
}

// AssetBuilder runs the frontend build collaborators. It never requires a
// live service.
type AssetBuilder interface {
	BuildFrontend(ctx context.Context) error
	CollectStatic(ctx context.Context, cfg config.ConnectionConfig) error
}

// MigrationRunner applies schema migrations and optional demo seeding.
// It is only invoked once the database service is ready.
type MigrationRunner interface {
	Apply(ctx context.Context, cfg config.ConnectionConfig) error
	Seed(ctx context.Context, cfg config.ConnectionConfig) error
}

// Recorder receives the journal trail of a phase. Implementations are
// best-effort; they never fail a phase.
type Recorder interface {
	BeginRun(ctx context.Context, phase string) string
	RecordState(ctx context.Context, runID, state string)
	EndRun(ctx context.Context, runID, state string, err error)
}

// nopRecorder discards the trail.
type nopRecorder struct{}

func (nopRecorder) BeginRun(context.Context, string) string       { return "" }
func (nopRecorder) RecordState(context.Context, string, string)   {}
func (nopRecorder) EndRun(context.Context, string, string, error) {}

// Config assembles an Orchestrator.
type Config struct {
	Log zerolog.Logger

	// Services are started in order and stopped in reverse order.
	Services []config.ServiceSpec

	// Credential is the role/database provisioned at build time.
	Credential config.Credential

	Manager     ServiceManager
	Provisioner Provisioner
	Assets      AssetBuilder
	Migrations  MigrationRunner

	// Connections resolves the environment-derived connection values. It
	// is called lazily, at the first step that consumes them, so a
	// missing DATABASE_URL aborts that step with a configuration error
	// before any network connection is attempted.
	Connections func() (config.ConnectionConfig, error)

	// Journal records the phase trail. Optional.
	Journal Recorder
}

// BuildOptions tune the build-time phase.
type BuildOptions struct {
	// SkipMigrations leaves the migration preview out of the build phase.
	SkipMigrations bool

	// Seed populates demo data after migrations.
	Seed bool
}

// Orchestrator owns the bootstrap pipelines. A single instance governs
// one container; phases run strictly sequentially and are never
// concurrent with each other.
type Orchestrator struct {
	cfg Config
}

// New returns an orchestrator for cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Journal == nil {
		cfg.Journal = nopRecorder{}
	}
	return &Orchestrator{cfg: cfg}
}

// Build executes the build-time provisioning phase: start services,
// ensure role and database, build assets, optionally preview migrations,
// then stop every started service. Each started service is stopped before
// Build returns, on success and failure paths alike.
func (o *Orchestrator) Build(ctx context.Context, opts BuildOptions) error {
	p := o.begin(ctx, PhaseBuild)

	started, err := o.startServices(ctx, p)
	if err != nil {
		return err
	}

	p.to(StateProvisioning)
	if err := o.cfg.Provisioner.EnsureRoleAndDatabase(ctx, o.cfg.Credential); err != nil {
		o.stopServices(ctx, started)
		return p.abort("ensure role and database", err)
	}
	p.to(StateProvisioned)

	p.to(StateAssetsBuilding)
	if err := o.cfg.Assets.BuildFrontend(ctx); err != nil {
		o.stopServices(ctx, started)
		return p.abort("build frontend", err)
	}
	conns, err := o.cfg.Connections()
	if err != nil {
		o.stopServices(ctx, started)
		return p.abort("resolve connections", err)
	}
	if err := o.cfg.Assets.CollectStatic(ctx, conns); err != nil {
		o.stopServices(ctx, started)
		return p.abort("collect static assets", err)
	}
	p.to(StateAssetsBuilt)

	if !opts.SkipMigrations {
		p.to(StateMigrating)
		if err := o.cfg.Migrations.Apply(ctx, conns); err != nil {
			o.stopServices(ctx, started)
			return p.abort("apply migrations", err)
		}
		if opts.Seed {
			if err := o.cfg.Migrations.Seed(ctx, conns); err != nil {
				o.stopServices(ctx, started)
				return p.abort("seed demo data", err)
			}
		}
		p.to(StateMigrated)
	}

	p.to(StateServicesStopping)
	o.stopServices(ctx, started)

	p.finish(StateDone)
	return nil
}

// Run executes the run-time entrypoint phase: start services, wait until
// every one is ready, and leave them running for the application. On
// success the caller execs the application process; the services remain
// owned by the container's supervisor until shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	p := o.begin(ctx, PhaseRun)

	if _, err := o.startServices(ctx, p); err != nil {
		return err
	}

	p.finish(StateHandoff)
	return nil
}

// startServices walks the manifest's services in order. On any start
// failure the services started so far are stopped and the phase aborts.
func (o *Orchestrator) startServices(ctx context.Context, p *phaseRun) ([]*service.Handle, error) {
	p.to(StateServicesStarting)
	var started []*service.Handle
	for _, spec := range o.cfg.Services {
		h, err := o.cfg.Manager.Start(ctx, spec)
		if err != nil {
			o.stopServices(ctx, started)
			return nil, p.abort("start "+spec.Name, err)
		}
		started = append(started, h)
	}
	p.to(StateServicesReady)
	return started, nil
}

// stopServices stops handles in reverse start order. Stop failures are
// logged and swallowed: teardown must never turn a result into a failure.
func (o *Orchestrator) stopServices(ctx context.Context, handles []*service.Handle) {
	for i := len(handles) - 1; i >= 0; i-- {
		if err := o.cfg.Manager.Stop(ctx, handles[i]); err != nil {
			o.cfg.Log.Warn().Err(err).Str("service", handles[i].Name()).Msg("Service stop failed")
		}
	}
}

// phaseRun tracks one pipeline execution.
type phaseRun struct {
	o     *Orchestrator
	ctx   context.Context
	phase Phase
	state State
	runID string
}

func (o *Orchestrator) begin(ctx context.Context, phase Phase) *phaseRun {
	p := &phaseRun{o: o, ctx: ctx, phase: phase, state: StateInit}
	p.runID = o.cfg.Journal.BeginRun(ctx, string(phase))
	o.cfg.Log.Info().Str("phase", string(phase)).Msg("Bootstrap phase starting")
	return p
}

func (p *phaseRun) to(next State) {
	p.state = next
	p.o.cfg.Log.Info().
		Str("phase", string(p.phase)).
		Str("state", string(next)).
		Msg("Bootstrap state")
	p.o.cfg.Journal.RecordState(p.ctx, p.runID, string(next))
}

func (p *phaseRun) finish(terminal State) {
	p.state = terminal
	p.o.cfg.Log.Info().
		Str("phase", string(p.phase)).
		Str("state", string(terminal)).
		Msg("Bootstrap phase complete")
	p.o.cfg.Journal.EndRun(p.ctx, p.runID, string(terminal), nil)
}

func (p *phaseRun) abort(step string, err error) error {
	stepErr := &StepError{Phase: p.phase, State: p.state, Step: step, Err: err}
	p.o.cfg.Log.Error().
		Str("phase", string(p.phase)).
		Str("state", string(p.state)).
		Str("step", step).
		Err(err).
		Msg("Bootstrap phase aborted")
	p.o.cfg.Journal.EndRun(p.ctx, p.runID, string(StateAborted), stepErr)
	return stepErr
}
