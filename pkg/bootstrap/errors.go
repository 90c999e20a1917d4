package bootstrap

import "fmt"

// StepError is the failure terminal of a phase: the first failing step's
// error, annotated with where the pipeline was when it failed. The
// underlying error kind (start timeout, provisioning failure, toolchain
// failure, migration failure, configuration error) stays reachable
// through Unwrap, so callers can match it with errors.Is.
type StepError struct {
	// Phase is the lifecycle that was aborted.
	Phase Phase

	// State is the pipeline state in which the failure occurred.
	State State

	// Step names the failing step.
	Step string

	// Err is the step's error, surfaced verbatim.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s phase aborted in %s: %s: %v", e.Phase, e.State, e.Step, e.Err)
}

// Unwrap returns the failing step's error.
func (e *StepError) Unwrap() error {
	return e.Err
}
