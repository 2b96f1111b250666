package executions

import "time"

// ExecutionStatus represents the status of a function execution.
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is currently in progress.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusSuccess indicates the execution completed successfully.
	ExecutionStatusSuccess ExecutionStatus = "success"
	// ExecutionStatusFailed indicates the execution failed with an error.
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// ExecutionLog is one journaled invocation.
type ExecutionLog struct {
	ID           string          // Invocation ID assigned by the host
	FunctionID   string          // Function ID assigned by the host
	FunctionName string          // Function name from its metadata
	Mode         string          // sync or async
	Status       ExecutionStatus // Execution status
	StartedAt    time.Time       // When execution started
	CompletedAt  *time.Time      // When execution completed (nil if still running)
	DurationMs   int             // Execution duration in milliseconds
	Error        string          // Error message if failed
	LogCount     int64           // Number of log records forwarded
}
