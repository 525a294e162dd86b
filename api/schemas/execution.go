// api/schemas/execution.go
package schemas

import "time"

// StepResult is the uniform outcome of a single step dispatch. Executors
// catch their own failures; a failed dispatch is a value, never a panic.
type StepResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Detail carries action-specific output (resolved selector, final URL...).
	Detail string `json:"detail,omitempty"`
}

// ExecutionLogEntry records one executed step. The log is session-scoped and
// is never persisted by the memory store.
type ExecutionLogEntry struct {
	StepIndex int        `json:"step_index"`
	Action    ActionKind `json:"action"`
	Target    string     `json:"target,omitempty"`
	Result    StepResult `json:"result"`
	Recovered bool       `json:"recovered,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// RecoveryResult summarizes one recovery engine invocation.
type RecoveryResult struct {
	Recovered           bool     `json:"recovered"`
	Method              string   `json:"method,omitempty"`
	StrategiesAttempted []string `json:"strategies_attempted"`
}

// ExecutionReport is the structured result of a full agent run. The entry
// point always returns one, including the full log and reasoning trail, even
// when the run aborts early.
type ExecutionReport struct {
	ExecutionID      string              `json:"execution_id"`
	Success          bool                `json:"success"`
	Aborted          bool                `json:"aborted,omitempty"`
	AbortReason      string              `json:"abort_reason,omitempty"`
	StepsExecuted    int                 `json:"steps_executed"`
	StepsFailed      int                 `json:"steps_failed"`
	RecoveryAttempts int                 `json:"recovery_attempts"`
	SuccessRate      float64             `json:"success_rate"`
	ExecutionLog     []ExecutionLogEntry `json:"execution_log"`
	Reasoning        []string            `json:"reasoning"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
}
