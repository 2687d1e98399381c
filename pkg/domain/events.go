package domain

import (
	"context"
	"time"
)

// StepEvent is fired before a superstep runs its frontier.
type StepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Graph     string    `json:"graph"`
	ThreadID  string    `json:"thread_id"`
	Step      int       `json:"step"`
	Frontier  []string  `json:"frontier"`
}

// NodeEvent is fired around a single node execution.
// Duration and Err are only set on finish.
type NodeEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Graph     string        `json:"graph"`
	ThreadID  string        `json:"thread_id"`
	Step      int           `json:"step"`
	NodeID    string        `json:"node_id"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// RunEvent is fired when an invocation stops, whatever the reason.
type RunEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Graph     string        `json:"graph"`
	ThreadID  string        `json:"thread_id"`
	Step      int           `json:"step"` // Last committed step
	Status    RunStatus     `json:"status"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the executor goroutine, except node hooks
// which run on the node's goroutine. Nil hooks are skipped.
type LifecycleHooks struct {
	OnStepStart  func(context.Context, *StepEvent)
	OnNodeStart  func(context.Context, *NodeEvent)
	OnNodeFinish func(context.Context, *NodeEvent)
	OnStepCommit func(context.Context, *Snapshot)
	OnRunFinish  func(context.Context, *RunEvent)
}

// CombineHooks returns hooks that call each of hs in order.
func CombineHooks(hs ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *StepEvent) {
			for _, h := range hs {
				if h.OnStepStart != nil {
					h.OnStepStart(ctx, e)
				}
			}
		},
		OnNodeStart: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hs {
				if h.OnNodeStart != nil {
					h.OnNodeStart(ctx, e)
				}
			}
		},
		OnNodeFinish: func(ctx context.Context, e *NodeEvent) {
			for _, h := range hs {
				if h.OnNodeFinish != nil {
					h.OnNodeFinish(ctx, e)
				}
			}
		},
		OnStepCommit: func(ctx context.Context, s *Snapshot) {
			for _, h := range hs {
				if h.OnStepCommit != nil {
					h.OnStepCommit(ctx, s)
				}
			}
		},
		OnRunFinish: func(ctx context.Context, e *RunEvent) {
			for _, h := range hs {
				if h.OnRunFinish != nil {
					h.OnRunFinish(ctx, e)
				}
			}
		},
	}
}
