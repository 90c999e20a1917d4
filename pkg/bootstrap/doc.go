// Package bootstrap composes service management, provisioning, asset
// building and schema migration into the two lifecycles of a disposable
// preview container: the build-time provisioning phase and the run-time
// entrypoint phase.
//
// Each phase is a strictly sequential, fail-fast pipeline over an
// explicit state machine:
//
//	build: init -> services_starting -> services_ready -> provisioning ->
//	       provisioned -> assets_building -> assets_built -> migrating ->
//	       migrated -> services_stopping -> done
//	run:   init -> services_starting -> services_ready ->
//	       handoff_to_application
//
// Any failing step aborts the whole phase with the step's error kind
// surfaced verbatim; there are no retries at this layer. All steps are
// safe to re-run after a restart (idempotent provisioning, forward-only
// migrations, deterministic asset rebuild), so retry policy belongs to
// the invoking build or deploy tooling.
package bootstrap
