package tracker

import "fmt"

// ValidationError reports input rejected before anything is stored. Callers
// detect it with errors.As.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Status is the outcome of a record call.
type Status string

const (
	StatusStored    Status = "stored"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Result is returned by every record call that passed validation.
type Result struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the event is durably present, either newly stored or
// already there.
func (r Result) OK() bool {
	return r.Status == StatusStored || r.Status == StatusDuplicate
}
