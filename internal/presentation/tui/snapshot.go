package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"
)

// StatusColors maps run statuses to terminal colors.
var StatusColors = map[domain.RunStatus]string{
	domain.StatusRunning:   "#fbbf24",
	domain.StatusCompleted: "#34d399",
	domain.StatusFailed:    "#f87171",
	domain.StatusIdle:      "#9ca3af",
}

// Status renders a status label colored for the given profile.
// Use termenv.Ascii for plain output.
func Status(p termenv.Profile, status domain.RunStatus) string {
	s := p.String(string(status))
	if color, ok := StatusColors[status]; ok {
		s = s.Foreground(p.Color(color))
	}
	return s.Bold().String()
}

// SnapshotMarkdown describes a checkpoint as a markdown document.
func SnapshotMarkdown(snap *domain.Snapshot) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Thread `%s`\n\n", snap.ThreadID)
	fmt.Fprintf(&sb, "| Step | Status | Source | Committed |\n|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n\n", snap.Step, snap.Status, snap.Source, snap.Timestamp.Format("2006-01-02 15:04:05 MST"))

	if len(snap.Frontier) > 0 {
		sb.WriteString("## Pending\n\n")
		for _, id := range snap.Frontier {
			fmt.Fprintf(&sb, "- `%s`\n", id)
		}
		sb.WriteString("\n")
	}

	if len(snap.Writes) > 0 {
		sb.WriteString("## Last writes\n\n| Key | Written by |\n|---|---|\n")
		for _, key := range slices.Sorted(maps.Keys(snap.Writes)) {
			fmt.Fprintf(&sb, "| `%s` | %s |\n", key, strings.Join(snap.Writes[key], ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Values\n\n")
	if len(snap.Values) == 0 {
		sb.WriteString("_empty_\n")
		return sb.String(), nil
	}
	data, err := yaml.Marshal(map[string]any(snap.Values))
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	sb.WriteString("```yaml\n")
	sb.Write(data)
	sb.WriteString("```\n")
	return sb.String(), nil
}
