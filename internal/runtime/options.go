package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/session"
)

// DefaultStepLimit is the superstep ceiling of one invocation.
const DefaultStepLimit = 25

// Option configures an Executor.
type Option func(*Executor)

// WithStore persists checkpoints in store. Ignored when WithSessions is set.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Executor) {
		e.store = store
	}
}

// WithSessions shares a session manager, and its store, between executors.
func WithSessions(m *session.Manager) Option {
	return func(e *Executor) {
		e.sessions = m
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithStepLimit sets the maximum number of supersteps a single invocation
// may execute. Zero or less disables the ceiling.
func WithStepLimit(n int) Option {
	return func(e *Executor) {
		e.stepLimit = n
	}
}

// WithNodeTimeout bounds every node that has no timeout of its own.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.nodeTimeout = d
	}
}

// WithMaxConcurrency caps how many nodes of one superstep run at once.
// Zero or less means no cap.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		e.maxConcurrency = n
	}
}
