package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	core "github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/subgraph"
)

// Overlay contains thread data to visualize on the graph.
type Overlay struct {
	Visited []string
	Pending []string
}

// OverlayFrom derives an overlay from a thread history: every node that ran
// in a committed superstep is visited, the head frontier is pending.
func OverlayFrom(history []*domain.Snapshot) *Overlay {
	if len(history) == 0 {
		return nil
	}
	o := &Overlay{}
	for _, snap := range history[:len(history)-1] {
		o.Visited = append(o.Visited, snap.Frontier...)
	}
	o.Pending = history[len(history)-1].Frontier
	return o
}

// GenerateMermaid produces a Mermaid flowchart of g.
// It applies semantic styling:
// - Start and End: ((Circle))
// - Tool: [[Subroutine]]
// - Subgraph: {{Hexagon}}
// - Default: [Rectangle]
// Conditional edges are dotted and carry their path label when one is set.
// It also applies overlay styles (Visited/Pending) if provided.
func GenerateMermaid(g *core.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fmt.Fprintf(&sb, "    %s((\"start\"))\n", sanitizeMermaidID(domain.Start))
	for _, id := range g.Nodes() {
		opener, closer := "[", "]"
		switch g.Kind(id) {
		case registry.KindTool:
			opener, closer = "[[", "]]"
		case subgraph.Kind:
			opener, closer = "{{", "}}"
		}

		label := id
		if d := g.Timeout(id); d > 0 {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", id, d)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(id), opener, label, closer)
	}
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", sanitizeMermaidID(domain.End))

	for _, e := range g.Edges() {
		arrow := "-->"
		if e.Conditional {
			arrow = "-.->"
			if e.Label != "" {
				// Escape double quotes in the label for Mermaid
				arrow = fmt.Sprintf("-. \"%s\" .->", strings.ReplaceAll(e.Label, "\"", "'"))
			}
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef pending fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.Visited {
			if !visited[id] && g.Has(id) {
				visited[id] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", sanitizeMermaidID(id))
			}
		}
		for _, id := range overlay.Pending {
			if g.Has(id) {
				fmt.Fprintf(&sb, "    class %s pending;\n", sanitizeMermaidID(id))
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", "#", "_")
	return r.Replace(id)
}
