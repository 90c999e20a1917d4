package bootstrap

// Phase identifies one complete ordered pipeline run of the orchestrator.
type Phase string

const (
	// PhaseBuild is the build-time provisioning lifecycle, executed once
	// during image build.
	PhaseBuild Phase = "build"

	// PhaseRun is the run-time entrypoint lifecycle, executed at
	// container start, ending in handoff to the application.
	PhaseRun Phase = "run"
)

// State is a position in a phase's pipeline. Every transition requires
// the prior step to have succeeded; any failure moves the phase to
// StateAborted, the sole failure terminal.
type State string

const (
	StateInit             State = "init"
	StateServicesStarting State = "services_starting"
	StateServicesReady    State = "services_ready"
	StateProvisioning     State = "provisioning"
	StateProvisioned      State = "provisioned"
	StateAssetsBuilding   State = "assets_building"
	StateAssetsBuilt      State = "assets_built"
	StateMigrating        State = "migrating"
	StateMigrated         State = "migrated"
	StateServicesStopping State = "services_stopping"
	StateDone             State = "done"
	StateHandoff          State = "handoff_to_application"
	StateAborted          State = "aborted"
)

// IsTerminal reports whether s ends a phase.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateHandoff || s == StateAborted
}
