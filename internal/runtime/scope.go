package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/session"
)

// scopeKey is an unexported type to prevent collisions with context keys from other packages.
type scopeKey struct{}

// Scope describes the run a node is executing in. The executor attaches it
// to the context handed to every node, so nested executors (subgraphs) share
// the parent's store, locks and limits.
type Scope struct {
	ThreadID string
	Step     int
	NodeID   string

	// Schema is the state schema of the running graph.
	Schema *schema.Schema

	Sessions       *session.Manager
	Logger         *slog.Logger
	Hooks          domain.LifecycleHooks
	StepLimit      int
	NodeTimeout    time.Duration
	MaxConcurrency int
}

// ChildThreadID derives the thread id of a nested run started by this node.
// It is stable for a given parent thread, node and step, so a retried
// superstep resumes the same child.
func (s Scope) ChildThreadID() string {
	return fmt.Sprintf("%s/%s#%d", s.ThreadID, s.NodeID, s.Step)
}

// Options returns executor options inheriting this scope's configuration.
func (s Scope) Options() []Option {
	return []Option{
		WithSessions(s.Sessions),
		WithLogger(s.Logger),
		WithLifecycleHooks(s.Hooks),
		WithStepLimit(s.StepLimit),
		WithNodeTimeout(s.NodeTimeout),
		WithMaxConcurrency(s.MaxConcurrency),
	}
}

// WithScope returns a new context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom extracts the scope of the running node, if any.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
