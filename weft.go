package weft

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/session"
)

// Version is the weft release.
const Version = "0.1.0"

// DefaultStepLimit is the number of supersteps one invocation may run.
const DefaultStepLimit = runtime.DefaultStepLimit

// Engine is the high-level entry point of the library.
// It runs one compiled graph against a checkpoint store.
type Engine struct {
	exec        *runtime.Executor
	runtimeOpts []runtime.Option
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.CombineHooks(e.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStore persists checkpoints in store. Defaults to memory.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStore(store))
	}
}

// WithSessions serializes runs through m, e.g. one backed by a distributed
// locker shared between processes.
func WithSessions(m *session.Manager) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithSessions(m))
	}
}

// WithStepLimit caps the supersteps of one invocation. Zero disables the cap.
func WithStepLimit(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStepLimit(n))
	}
}

// WithNodeTimeout bounds nodes that do not declare their own timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithNodeTimeout(d))
	}
}

// WithMaxConcurrency caps the nodes running at once within a superstep.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxConcurrency(n))
	}
}

// New creates an engine for g.
func New(g *graph.Graph, opts ...Option) *Engine {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized so the runtime default is not replaced by nil.
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.exec = runtime.NewExecutor(g, runtimeOpts...)
	return eng
}

// Graph returns the compiled graph.
func (e *Engine) Graph() *graph.Graph {
	return e.exec.Graph()
}

// Sessions returns the manager serializing runs of the same thread.
func (e *Engine) Sessions() *session.Manager {
	return e.exec.Sessions()
}

// Invoke runs threadID to completion and returns its final values.
// An empty threadID starts a new thread with a generated id.
// The input is committed as its own checkpoint before the first superstep,
// so it survives a run that fails afterwards.
func (e *Engine) Invoke(ctx context.Context, threadID string, input domain.Values) (*domain.Result, error) {
	return e.exec.Invoke(ctx, threadID, input)
}

// Stream runs threadID and yields one observation per committed superstep.
func (e *Engine) Stream(ctx context.Context, threadID string, input domain.Values) iter.Seq2[domain.Observation, error] {
	return e.exec.Stream(ctx, threadID, input)
}

// State returns the latest checkpoint of threadID.
func (e *Engine) State(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	return e.exec.State(ctx, threadID)
}

// History returns every checkpoint of threadID, oldest first.
func (e *Engine) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	return e.exec.History(ctx, threadID)
}

// Threads lists the known thread ids.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	return e.exec.Threads(ctx)
}

// Delete removes threadID and the threads of its subgraphs.
func (e *Engine) Delete(ctx context.Context, threadID string) error {
	return e.exec.Delete(ctx, threadID)
}

// Fork copies the history of src up to step into a new thread dst.
// An empty dst gets a generated id.
func (e *Engine) Fork(ctx context.Context, src string, step int, dst string) (*domain.Snapshot, error) {
	return e.exec.Fork(ctx, src, step, dst)
}
