package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aretw0/weft/internal/sanitize"
	"github.com/aretw0/weft/pkg/domain"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// RunOptions contains the configuration of the run command.
type RunOptions struct {
	ThreadID string
	// Input is a JSON object merged into the thread. Empty uses the demo's
	// sample input for a new thread and nothing for an existing one.
	Input  string
	Format string
	// Fresh deletes the thread before running.
	Fresh bool
	Quiet bool
}

// Run streams one invocation to out: a line per committed superstep, then
// the final values. FormatJSON writes NDJSON observations only.
func Run(ctx context.Context, app *App, opts RunOptions, out io.Writer) error {
	switch opts.Format {
	case "", FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", opts.Format)
	}
	if err := sanitize.ThreadID(opts.ThreadID); err != nil {
		return err
	}
	input, err := app.runInput(ctx, opts)
	if err != nil {
		return err
	}

	if opts.Fresh && opts.ThreadID != "" {
		if err := app.Engine.Delete(ctx, opts.ThreadID); err != nil && !errors.Is(err, domain.ErrThreadNotFound) {
			return fmt.Errorf("reset thread: %w", err)
		}
	}

	threadID := opts.ThreadID
	enc := json.NewEncoder(out)
	for obs, err := range app.Engine.Stream(ctx, opts.ThreadID, input) {
		if err != nil {
			return handleExecutionError(err)
		}
		threadID = obs.ThreadID
		switch opts.Format {
		case FormatJSON:
			if err := enc.Encode(obs); err != nil {
				return err
			}
		default:
			if !opts.Quiet {
				fmt.Fprintln(out, describeStep(obs))
			}
		}
	}
	if opts.Format == FormatJSON || threadID == "" {
		return nil
	}

	snap, err := app.Engine.State(ctx, threadID)
	if err != nil {
		return err
	}
	if !opts.Quiet {
		printSystemMessage(out, "thread %s %s at step %d", threadID, snap.Status, snap.Step)
	}
	return writeYAML(out, map[string]any(app.outputValues(snap.Values)))
}

// runInput parses and sanitizes the --input JSON. A new thread without
// explicit input starts from the demo's sample input.
func (a *App) runInput(ctx context.Context, opts RunOptions) (domain.Values, error) {
	if opts.Input == "" {
		if opts.ThreadID == "" || opts.Fresh {
			return a.Demo.Input.Clone(), nil
		}
		if _, err := a.Engine.State(ctx, opts.ThreadID); errors.Is(err, domain.ErrThreadNotFound) {
			return a.Demo.Input.Clone(), nil
		}
		return nil, nil
	}

	var input domain.Values
	if err := json.Unmarshal([]byte(opts.Input), &input); err != nil {
		return nil, fmt.Errorf("error parsing --input JSON: %w", err)
	}
	return sanitize.Values(input)
}

// describeStep renders an observation as "step N: node{keys} ... -> next".
func describeStep(obs domain.Observation) string {
	nodes := make([]string, 0, len(obs.Updates))
	for node := range obs.Updates {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	var sb strings.Builder
	fmt.Fprintf(&sb, "step %d:", obs.Step)
	for _, node := range nodes {
		fmt.Fprintf(&sb, " %s{%s}", node, strings.Join(obs.Updates[node].Keys(), ","))
	}
	next := "end"
	if len(obs.Frontier) > 0 {
		next = strings.Join(obs.Frontier, ",")
	}
	fmt.Fprintf(&sb, " -> %s", next)
	return sb.String()
}
