package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single key that failed validation.
type ValidationError struct {
	Key    string // State key
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
	Err    error  // Optional sentinel for errors.Is
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("key %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("key %q: %s (got %T)", e.Key, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
