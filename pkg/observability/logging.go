package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// LoggingHooks returns lifecycle hooks writing one record per event.
// Step and node events are logged at Debug, run outcomes at Info, or Warn
// when the run failed.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_start", "graph", e.Graph, "thread_id", e.ThreadID, "step", e.Step, "frontier", e.Frontier)
		},
		OnNodeStart: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "graph", e.Graph, "thread_id", e.ThreadID, "step", e.Step, "node_id", e.NodeID)
		},
		OnNodeFinish: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{"graph", e.Graph, "thread_id", e.ThreadID, "step", e.Step, "node_id", e.NodeID, "duration", e.Duration}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
			}
			logger.DebugContext(ctx, "node_leave", attrs...)
		},
		OnStepCommit: func(ctx context.Context, s *domain.Snapshot) {
			logger.DebugContext(ctx, "step_commit", "thread_id", s.ThreadID, "step", s.Step, "source", s.Source, "frontier", s.Frontier)
		},
		OnRunFinish: func(ctx context.Context, e *domain.RunEvent) {
			level := slog.LevelInfo
			attrs := []any{"graph", e.Graph, "thread_id", e.ThreadID, "step", e.Step, "status", e.Status, "duration", e.Duration}
			if e.Err != nil {
				level = slog.LevelWarn
				attrs = append(attrs, "err", e.Err)
			}
			logger.Log(ctx, level, "run_finish", attrs...)
		},
	}
}
