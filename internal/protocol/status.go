package protocol

// Status is the outcome of a request.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailure Status = "Failure"
)

// RPCException describes a failure.
type RPCException struct {
	Source     string `json:"source,omitempty"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// StatusResult is embedded in every response.
type StatusResult struct {
	Status    Status        `json:"status"`
	Exception *RPCException `json:"exception,omitempty"`
}

// Success returns a successful StatusResult.
func Success() StatusResult {
	return StatusResult{Status: StatusSuccess}
}

// Failure returns a failed StatusResult carrying exc.
func Failure(exc *RPCException) StatusResult {
	return StatusResult{Status: StatusFailure, Exception: exc}
}

// IsSuccess reports whether the result succeeded.
func (r StatusResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}
