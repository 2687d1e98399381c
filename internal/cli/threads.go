package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/domain"
)

// ListThreads prints every thread id, one per line.
func ListThreads(ctx context.Context, app *App, out io.Writer) error {
	threads, err := app.Engine.Threads(ctx)
	if err != nil {
		return fmt.Errorf("error listing threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Fprintln(out, "No threads found.")
		return nil
	}
	for _, id := range threads {
		fmt.Fprintln(out, id)
	}
	return nil
}

// InspectThread prints the latest checkpoint of id. rich renders markdown
// for a terminal; otherwise the checkpoint is written as YAML.
func InspectThread(ctx context.Context, app *App, id string, rich bool, out io.Writer) error {
	snap, err := app.Engine.State(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading thread %q: %w", id, err)
	}
	if !rich {
		return writeYAML(out, snap)
	}

	md, err := tui.SnapshotMarkdown(snap)
	if err != nil {
		return err
	}
	rendered, err := tui.NewRenderer()(md)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}

// PrintHistory writes every checkpoint of id as YAML, or the diffs between
// consecutive checkpoints.
func PrintHistory(ctx context.Context, app *App, id string, diff bool, out io.Writer) error {
	history, err := app.Engine.History(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading history of %q: %w", id, err)
	}
	if !diff {
		return writeYAML(out, history)
	}

	diffs := make([]*domain.SnapshotDiff, 0, len(history))
	var prev *domain.Snapshot
	for _, snap := range history {
		if d := domain.Diff(prev, snap); d != nil {
			diffs = append(diffs, d)
		}
		prev = snap
	}
	// Diffs go through JSON so nested values keep their JSON field names.
	raw, err := json.Marshal(diffs)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return writeYAML(out, doc)
}

// RemoveThreads deletes each thread and its subgraph threads. All ids are
// attempted; the returned error reports whether any failed.
func RemoveThreads(ctx context.Context, app *App, ids []string, out io.Writer) error {
	failed := 0
	for _, id := range ids {
		if _, err := app.Engine.State(ctx, id); err != nil {
			fmt.Fprintf(out, "Error removing '%s': %v\n", id, err)
			failed++
			continue
		}
		if err := app.Engine.Delete(ctx, id); err != nil {
			fmt.Fprintf(out, "Error removing '%s': %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Removed thread '%s'\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d threads could not be removed", failed, len(ids))
	}
	return nil
}

// ForkThread copies src up to step into dst and prints the new thread id.
func ForkThread(ctx context.Context, app *App, src string, step int, dst string, out io.Writer) error {
	snap, err := app.Engine.Fork(ctx, src, step, dst)
	if err != nil {
		return fmt.Errorf("error forking %q: %w", src, err)
	}
	printSystemMessage(out, "forked %s@%d into %s (%s)", src, step, snap.ThreadID, snap.Status)
	return nil
}

// PrintGraph writes the graph as a Mermaid diagram, JSON or YAML. A
// non-empty threadID overlays that thread's progress on the diagram.
func PrintGraph(ctx context.Context, app *App, format, threadID string, out io.Writer) error {
	g := app.Engine.Graph()
	switch format {
	case "", "mermaid":
		var overlay *graph.Overlay
		if threadID != "" {
			history, err := app.Engine.History(ctx, threadID)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFrom(history)
		}
		fmt.Fprint(out, graph.GenerateMermaid(g, overlay))
		return nil
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(g.Describe())
	case FormatYAML:
		return writeYAML(out, g.Describe())
	default:
		return fmt.Errorf("unknown graph format %q (want mermaid, json or yaml)", format)
	}
}
