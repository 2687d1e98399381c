package domain

import (
	"errors"
	"fmt"
)

// Build-time errors.
var (
	// ErrConfiguration is the parent of every graph construction failure.
	ErrConfiguration = errors.New("invalid graph configuration")
	ErrDuplicateNode = errors.New("duplicate node")
	ErrUnknownNode   = errors.New("unknown node")
	ErrSchemaType    = errors.New("schema type mismatch")
	ErrOrphanNode    = errors.New("node unreachable from start")
)

// Run-time errors.
var (
	ErrUndeclaredKey     = errors.New("undeclared state key")
	ErrRouting           = errors.New("routing failed")
	ErrReducer           = errors.New("reducer failed")
	ErrNodeExecution     = errors.New("node execution failed")
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrStreamConsumed    = errors.New("stream already consumed")
)

// Persistence errors.
var (
	// ErrThreadNotFound is returned when a thread has no checkpoint.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrCheckpointExists is returned when a (thread, step) pair is written twice.
	ErrCheckpointExists = errors.New("checkpoint already exists")
)

// ConfigError reports a graph construction failure.
// It matches ErrConfiguration, its Kind and its underlying Err.
type ConfigError struct {
	Kind   error
	Node   string
	Key    string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	kind := ErrConfiguration
	if e.Kind != nil {
		kind = e.Kind
	}
	msg := kind.Error()
	switch {
	case e.Node != "":
		msg += fmt.Sprintf(" %q", e.Node)
	case e.Key != "":
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	errs := []error{ErrConfiguration}
	if e.Kind != nil && e.Kind != ErrConfiguration {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// SchemaTypeError reports a value that does not fit the shape its channel requires,
// such as appending a scalar to a sequence channel.
type SchemaTypeError struct {
	Key     string
	Operand string // "old", "new" or "default"
	Want    string
	Value   any
}

func (e *SchemaTypeError) Error() string {
	return fmt.Sprintf("key %q: %s operand must be %s, got %T", e.Key, e.Operand, e.Want, e.Value)
}

func (e *SchemaTypeError) Unwrap() error { return ErrSchemaType }

// NodeError reports a node that failed during a superstep.
type NodeError struct {
	ThreadID string
	Step     int
	NodeID   string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed at step %d (thread %s): %v", e.NodeID, e.Step, e.ThreadID, e.Err)
}

func (e *NodeError) Unwrap() []error { return []error{ErrNodeExecution, e.Err} }

// RoutingError reports a conditional edge that panicked or chose an undeclared target.
type RoutingError struct {
	ThreadID string
	Step     int
	Source   string
	Target   string
	Err      error
}

func (e *RoutingError) Error() string {
	msg := fmt.Sprintf("routing from %q at step %d (thread %s)", e.Source, e.Step, e.ThreadID)
	if e.Target != "" {
		msg += fmt.Sprintf(": target %q not declared", e.Target)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RoutingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRouting}
	}
	return []error{ErrRouting, e.Err}
}

// ReducerError reports a merge failure. The step is not committed.
type ReducerError struct {
	ThreadID string
	Step     int
	Key      string
	Node     string
	Err      error
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reduce key %q from node %q at step %d (thread %s): %v", e.Key, e.Node, e.Step, e.ThreadID, e.Err)
}

func (e *ReducerError) Unwrap() []error { return []error{ErrReducer, e.Err} }

// StepLimitError reports a run that still had pending nodes after Limit supersteps.
type StepLimitError struct {
	ThreadID string
	Limit    int
	Step     int
	Frontier []string
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("%v: %d supersteps executed (thread %s, step %d, pending %v)",
		ErrStepLimitExceeded, e.Limit, e.ThreadID, e.Step, e.Frontier)
}

func (e *StepLimitError) Unwrap() error { return ErrStepLimitExceeded }
