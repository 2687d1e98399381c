package runtime

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/session"
	"github.com/google/uuid"
)

// errStopped reports a stream consumer that stopped iterating.
var errStopped = errors.New("stream stopped by consumer")

// Executor runs a compiled graph in supersteps and persists a checkpoint
// after each one. It holds no per-run state and is safe for concurrent use;
// runs of the same thread are serialized through the session manager.
type Executor struct {
	graph    *graph.Graph
	store    ports.CheckpointStore
	sessions *session.Manager
	logger   *slog.Logger
	hooks    domain.LifecycleHooks

	// base is the configured logger before the graph attribute is added;
	// nested executors receive it through the node scope.
	base *slog.Logger

	stepLimit      int
	nodeTimeout    time.Duration
	maxConcurrency int
}

// NewExecutor creates an executor for g. Without a store, checkpoints are
// kept in memory for the life of the executor.
func NewExecutor(g *graph.Graph, opts ...Option) *Executor {
	e := &Executor{
		graph:     g,
		logger:    logging.NewNop(),
		stepLimit: DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.sessions == nil {
		if e.store == nil {
			e.store = memory.NewStore()
		}
		e.sessions = session.NewManager(e.store, session.WithLogger(e.logger))
	}
	e.store = e.sessions.Store()
	e.base = e.logger
	e.logger = e.logger.With("graph", g.Name())
	return e
}

// Graph returns the graph this executor runs.
func (e *Executor) Graph() *graph.Graph {
	return e.graph
}

// Sessions returns the session manager serializing this executor's runs.
func (e *Executor) Sessions() *session.Manager {
	return e.sessions
}

// Invoke runs the thread until it completes and returns its final values,
// restricted to the graph's output keys when set.
// An empty threadID starts a new thread with a generated id.
//
// The input is merged and committed as a checkpoint before the first
// superstep runs. A run that then fails (a node, routing or reducer error)
// leaves that checkpoint behind: a fresh thread exists at step 0, and an
// existing thread gains an input checkpoint one step past its last good one.
// State after a failure therefore reflects the input, not the prior state.
func (e *Executor) Invoke(ctx context.Context, threadID string, input domain.Values) (*domain.Result, error) {
	res, err := e.run(ctx, threadID, input, func(domain.Observation) bool { return true })
	if err != nil {
		return nil, err
	}
	if keys := e.graph.OutputKeys(); len(keys) > 0 {
		res.Values = res.Values.Pick(keys...)
	}
	return res, nil
}

// Stream runs the thread and yields one observation per committed superstep.
// The sequence is lazy: no node runs before iteration starts, and breaking
// out of the loop stops the run after the current commit and releases the
// thread. It can be iterated once; a second iteration yields
// domain.ErrStreamConsumed. A failure is yielded as the final element.
func (e *Executor) Stream(ctx context.Context, threadID string, input domain.Values) iter.Seq2[domain.Observation, error] {
	var consumed atomic.Bool
	return func(yield func(domain.Observation, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(domain.Observation{ThreadID: threadID}, domain.ErrStreamConsumed)
			return
		}

		_, err := e.run(ctx, threadID, input, func(o domain.Observation) bool {
			return yield(o, nil)
		})
		if err != nil {
			yield(domain.Observation{ThreadID: threadID}, err)
		}
	}
}

// run holds the thread lock for the whole invocation, including the time the
// consumer spends between observations.
func (e *Executor) run(ctx context.Context, threadID string, input domain.Values, emit func(domain.Observation) bool) (*domain.Result, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	logger := e.logger.With("thread_id", threadID)
	start := time.Now()

	var res *domain.Result
	err := e.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		res, err = e.loop(ctx, logger, threadID, input, emit)
		return err
	})

	stopped := errors.Is(err, errStopped)
	if stopped {
		err = nil
	}

	event := &domain.RunEvent{
		Timestamp: time.Now(),
		Graph:     e.graph.Name(),
		ThreadID:  threadID,
		Duration:  time.Since(start),
		Err:       err,
		Status:    domain.StatusFailed,
	}
	if res != nil {
		event.Step = res.Step
		event.Status = res.Status
	}
	if e.hooks.OnRunFinish != nil {
		e.hooks.OnRunFinish(ctx, event)
	}

	switch {
	case err != nil:
		logger.Debug("run failed", "err", err, "duration", event.Duration)
		return nil, err
	case stopped:
		logger.Debug("run stopped by consumer", "step", res.Step)
	default:
		logger.Info("run finished", "step", res.Step, "status", res.Status, "duration", event.Duration)
	}
	return res, nil
}

// loop loads or seeds the thread, then executes supersteps until the frontier
// is empty, the step ceiling is hit, or ctx is done at a step boundary.
func (e *Executor) loop(ctx context.Context, logger *slog.Logger, threadID string, input domain.Values, emit func(domain.Observation) bool) (*domain.Result, error) {
	current, err := e.store.Latest(ctx, threadID)
	switch {
	case errors.Is(err, domain.ErrThreadNotFound):
		current = nil
	case err != nil:
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	current, err = e.seed(ctx, threadID, current, input)
	if err != nil {
		return nil, err
	}
	res := &domain.Result{ThreadID: threadID, Step: current.Step, Status: current.Status, Values: current.Values}

	for executed := 0; current.Pending(); executed++ {
		if e.stepLimit > 0 && executed >= e.stepLimit {
			return nil, &domain.StepLimitError{
				ThreadID: threadID,
				Limit:    e.stepLimit,
				Step:     current.Step,
				Frontier: current.Frontier,
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted before step %d: %w", current.Step+1, err)
		}

		next, updates, err := e.superstep(ctx, logger, current)
		if err != nil {
			return nil, err
		}
		current = next

		res.Step, res.Status, res.Values = current.Step, current.Status, current.Values

		obs := domain.Observation{
			ThreadID: threadID,
			Step:     current.Step,
			Updates:  updates,
			Values:   current.Values.Clone(),
			Frontier: current.Frontier,
			Status:   current.Status,
		}
		if !emit(obs) {
			return res, errStopped
		}
	}

	res.Values = res.Values.Clone()
	return res, nil
}

// seed merges caller input into the thread and decides where the run starts.
//
//   - new thread: defaults plus input, frontier from Start;
//   - pending thread: input (if any) is merged, the persisted frontier resumes;
//   - completed thread without input: nothing to do;
//   - completed thread with input: a new turn from Start over the kept state.
//
// Whenever input is merged, an input checkpoint is committed first so that a
// failing first superstep leaves a resumable thread.
func (e *Executor) seed(ctx context.Context, threadID string, current *domain.Snapshot, input domain.Values) (*domain.Snapshot, error) {
	fresh := current == nil
	if !fresh && len(input) == 0 {
		return current, nil
	}

	base, step := e.graph.Schema().Defaults(), 0
	if !fresh {
		base, step = current.Values, current.Step+1
	}

	var writes []schema.Write
	if len(input) > 0 {
		writes = append(writes, schema.Write{Node: domain.Start, Values: input.Clone()})
	}
	values, provenance, err := e.graph.Schema().Reduce(base, writes)
	if err != nil {
		return nil, stamp(err, threadID, step)
	}

	var frontier []string
	if !fresh && current.Pending() {
		frontier = current.Frontier
	} else {
		frontier, err = e.graph.Entry(values)
		if err != nil {
			return nil, stamp(err, threadID, step)
		}
	}

	snap := &domain.Snapshot{
		ThreadID:  threadID,
		Step:      step,
		Values:    values,
		Frontier:  frontier,
		Writes:    provenance,
		Status:    domain.StatusFor(frontier),
		Source:    domain.SourceInput,
		Timestamp: time.Now().UTC(),
	}
	if err := e.commit(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// superstep runs the frontier of current, reduces the writes and routes,
// then commits the next checkpoint. Nothing is committed on failure.
func (e *Executor) superstep(ctx context.Context, logger *slog.Logger, current *domain.Snapshot) (*domain.Snapshot, map[string]domain.Values, error) {
	step := current.Step + 1
	logger = logger.With("step", step)

	if e.hooks.OnStepStart != nil {
		e.hooks.OnStepStart(ctx, &domain.StepEvent{
			Timestamp: time.Now(),
			Graph:     e.graph.Name(),
			ThreadID:  current.ThreadID,
			Step:      step,
			Frontier:  current.Frontier,
		})
	}
	logger.Debug("superstep started", "frontier", current.Frontier)

	writes, err := e.runFrontier(ctx, logger, current.ThreadID, step, current.Frontier, current.Values)
	if err != nil {
		return nil, nil, err
	}

	values, provenance, err := e.graph.Schema().Reduce(current.Values, writes)
	if err != nil {
		return nil, nil, stamp(err, current.ThreadID, step)
	}

	frontier, err := e.graph.Next(current.Frontier, values)
	if err != nil {
		return nil, nil, stamp(err, current.ThreadID, step)
	}

	next := &domain.Snapshot{
		ThreadID:  current.ThreadID,
		Step:      step,
		Values:    values,
		Frontier:  frontier,
		Writes:    provenance,
		Status:    domain.StatusFor(frontier),
		Source:    domain.SourceLoop,
		Timestamp: time.Now().UTC(),
	}
	if err := e.commit(ctx, next); err != nil {
		return nil, nil, err
	}
	logger.Debug("superstep committed", "next", frontier)

	updates := make(map[string]domain.Values, len(writes))
	for _, w := range writes {
		update := w.Values.Clone()
		if update == nil {
			update = domain.Values{}
		}
		updates[w.Node] = update
	}
	return next, updates, nil
}

// commit persists snap. A step that has started is committed even if the
// caller's context was cancelled meanwhile.
func (e *Executor) commit(ctx context.Context, snap *domain.Snapshot) error {
	if err := e.store.Put(context.WithoutCancel(ctx), snap.ThreadID, snap.Step, snap); err != nil {
		return fmt.Errorf("commit step %d of thread %s: %w", snap.Step, snap.ThreadID, err)
	}
	if e.hooks.OnStepCommit != nil {
		e.hooks.OnStepCommit(ctx, snap.Clone())
	}
	return nil
}

// stamp fills in the thread and step of errors raised below the executor.
func stamp(err error, threadID string, step int) error {
	var re *domain.ReducerError
	if errors.As(err, &re) {
		re.ThreadID, re.Step = threadID, step
	}
	var ro *domain.RoutingError
	if errors.As(err, &ro) {
		ro.ThreadID, ro.Step = threadID, step
	}
	return err
}
