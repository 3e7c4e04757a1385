package analytics

import "fmt"

// InsufficientDataError means a statistical method had too few points to produce a result.
type InsufficientDataError struct {
	Op       string
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need at least %d data points, got %d", e.Op, e.Required, e.Got)
}

// ComputationError wraps a datastore failure. Timeout is set when the query deadline passed;
// such errors are reported, never retried here.
type ComputationError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *ComputationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: query timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: query failed: %v", e.Op, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }
