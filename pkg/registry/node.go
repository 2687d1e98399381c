package registry

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// KindTool is the node kind reported in graph descriptions.
const KindTool = "tool"

// Default state keys read and written by a ToolNode.
const (
	DefaultCallsKey   = "tool_calls"
	DefaultResultsKey = "tool_results"
)

// Call is a request to run one tool, as produced by a planning node.
type Call struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Name string         `json:"name" yaml:"name" mapstructure:"name"`
	Args map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
}

// Result is the outcome of one Call. ID matches the call's ID.
type Result struct {
	ID      string `json:"id" yaml:"id" mapstructure:"id"`
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Result  any    `json:"result,omitempty" yaml:"result,omitempty" mapstructure:"result"`
	IsError bool   `json:"is_error,omitempty" yaml:"is_error,omitempty" mapstructure:"is_error"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty" mapstructure:"error"`
}

// ToolNode executes the calls found in state against a Registry and writes
// their results back.
type ToolNode struct {
	registry   *Registry
	callsKey   string
	resultsKey string
	failFast   bool
}

// ToolNodeOption configures a ToolNode.
type ToolNodeOption func(*ToolNode)

// WithCallsKey sets the state key holding the pending calls.
func WithCallsKey(key string) ToolNodeOption {
	return func(n *ToolNode) { n.callsKey = key }
}

// WithResultsKey sets the state key receiving the results.
func WithResultsKey(key string) ToolNodeOption {
	return func(n *ToolNode) { n.resultsKey = key }
}

// WithFailFast makes a failing tool fail the node instead of being reported
// as an error result.
func WithFailFast() ToolNodeOption {
	return func(n *ToolNode) { n.failFast = true }
}

// NewToolNode creates a node running tools from reg.
func NewToolNode(reg *Registry, opts ...ToolNodeOption) *ToolNode {
	n := &ToolNode{
		registry:   reg,
		callsKey:   DefaultCallsKey,
		resultsKey: DefaultResultsKey,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Kind implements graph.Kinder.
func (n *ToolNode) Kind() string { return KindTool }

// Run executes the calls in order. With no pending calls it writes nothing.
func (n *ToolNode) Run(ctx context.Context, state domain.Values) (domain.Values, error) {
	calls, ok := state[n.callsKey].([]Call)
	if !ok {
		if err := mapstructure.Decode(state[n.callsKey], &calls); err != nil {
			return nil, fmt.Errorf("decode %s: %w", n.callsKey, err)
		}
	}
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(calls))
	for _, call := range calls {
		out, err := n.registry.Execute(ctx, call.Name, call.Args)
		res := Result{ID: call.ID, Name: call.Name, Result: out}
		if err != nil {
			if n.failFast {
				return nil, fmt.Errorf("tool %s (call %s): %w", call.Name, call.ID, err)
			}
			res.Result, res.IsError, res.Error = nil, true, err.Error()
		}
		results = append(results, res)
	}
	return domain.Values{n.resultsKey: results}, nil
}

// DecodeResults reads results back from state, whether they are still typed
// or were restored from a serialized checkpoint.
func DecodeResults(v any) ([]Result, error) {
	if results, ok := v.([]Result); ok {
		return slices.Clone(results), nil
	}
	var results []Result
	if err := mapstructure.Decode(v, &results); err != nil {
		return nil, fmt.Errorf("decode tool results: %w", err)
	}
	return results, nil
}
