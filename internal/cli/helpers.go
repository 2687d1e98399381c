package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/weft/pkg/domain"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// writeYAML encodes v as a YAML document.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// isInterrupted reports a run stopped by the user rather than a failure.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// handleExecutionError turns interruptions into a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

// outputValues restricts v to the graph's output keys, if any.
func (a *App) outputValues(v domain.Values) domain.Values {
	if keys := a.Engine.Graph().OutputKeys(); len(keys) > 0 {
		return v.Pick(keys...)
	}
	return v
}
