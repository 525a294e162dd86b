// internal/agent/errors.go
package agent

import "fmt"

// ErrorCode partitions run failures by how the orchestrator treats them.
type ErrorCode string

const (
	// ErrCodePermissionDenied is fatal before any step runs.
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	// ErrCodePlanGeneration is fatal before any step runs.
	ErrCodePlanGeneration ErrorCode = "PLAN_GENERATION_FAILURE"
	// ErrCodeStepExecution is recoverable; the step routes to recovery.
	ErrCodeStepExecution ErrorCode = "STEP_EXECUTION_FAILURE"
	// ErrCodeDriverUnavailable degrades the run to OS-level input.
	ErrCodeDriverUnavailable ErrorCode = "DRIVER_UNAVAILABLE"
	// ErrCodeMemoryPersistence is logged and swallowed.
	ErrCodeMemoryPersistence ErrorCode = "MEMORY_PERSISTENCE_FAILURE"
	// ErrCodeStopped marks a cooperative stop.
	ErrCodeStopped ErrorCode = "EXECUTION_STOPPED"
)

// RunError wraps a failure with its code for structured reporting.
type RunError struct {
	Code ErrorCode
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func newRunError(code ErrorCode, format string, args ...any) *RunError {
	return &RunError{Code: code, Err: fmt.Errorf(format, args...)}
}
