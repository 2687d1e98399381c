package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
	"golang.org/x/sync/errgroup"
)

// runFrontier executes every node of the frontier concurrently against its
// own copy of state. Writes are returned in frontier (registration) order.
// Siblings of a failing node are not cancelled; their writes are discarded
// and the error of the earliest registered failing node is reported.
func (e *Executor) runFrontier(ctx context.Context, logger *slog.Logger, threadID string, step int, frontier []string, state domain.Values) ([]schema.Write, error) {
	// Nodes observe cancellation only through their own timeout; the caller's
	// cancellation is honored between supersteps.
	nodeCtx := context.WithoutCancel(ctx)

	outputs := make([]domain.Values, len(frontier))
	errs := make([]error, len(frontier))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, id := range frontier {
		view := state.Clone()
		g.Go(func() error {
			outputs[i], errs[i] = e.runNode(nodeCtx, logger, threadID, step, id, view)
			return errs[i]
		})
	}

	if err := g.Wait(); err != nil {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}

	writes := make([]schema.Write, len(frontier))
	for i, id := range frontier {
		writes[i] = schema.Write{Node: id, Values: outputs[i]}
	}
	return writes, nil
}

type outcome struct {
	values domain.Values
	err    error
}

// runNode executes one node under its timeout. A node that overruns is
// abandoned: its goroutine may keep running, but its result is dropped.
func (e *Executor) runNode(ctx context.Context, logger *slog.Logger, threadID string, step int, id string, view domain.Values) (domain.Values, error) {
	node, _ := e.graph.Node(id)

	timeout := e.graph.Timeout(id)
	if timeout == 0 {
		timeout = e.nodeTimeout
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ctx = WithScope(ctx, Scope{
		ThreadID:       threadID,
		Step:           step,
		NodeID:         id,
		Schema:         e.graph.Schema(),
		Sessions:       e.sessions,
		Logger:         e.base,
		Hooks:          e.hooks,
		StepLimit:      e.stepLimit,
		NodeTimeout:    e.nodeTimeout,
		MaxConcurrency: e.maxConcurrency,
	})

	event := &domain.NodeEvent{
		Timestamp: time.Now(),
		Graph:     e.graph.Name(),
		ThreadID:  threadID,
		Step:      step,
		NodeID:    id,
	}
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(ctx, event)
	}

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("node panicked: %v", r)}
			}
		}()
		values, err := node.Run(ctx, view)
		done <- outcome{values: values, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		select {
		case res = <-done:
		default:
			res = outcome{err: ctx.Err()}
		}
	}

	finish := *event
	finish.Timestamp = time.Now()
	finish.Duration = time.Since(start)
	finish.Err = res.err
	if e.hooks.OnNodeFinish != nil {
		e.hooks.OnNodeFinish(ctx, &finish)
	}

	if res.err != nil {
		logger.Debug("node failed", "node", id, "err", res.err, "duration", finish.Duration)
		return nil, &domain.NodeError{ThreadID: threadID, Step: step, NodeID: id, Err: res.err}
	}
	logger.Debug("node finished", "node", id, "keys", res.values.Keys(), "duration", finish.Duration)
	return res.values, nil
}
