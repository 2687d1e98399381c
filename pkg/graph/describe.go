package graph

import (
	"time"

	"github.com/aretw0/weft/pkg/schema"
)

// Description is a serializable view of a compiled graph.
type Description struct {
	Name       string               `json:"name" yaml:"name"`
	Nodes      []NodeInfo           `json:"nodes" yaml:"nodes"`
	Edges      []Edge               `json:"edges" yaml:"edges"`
	Schema     []schema.ChannelInfo `json:"schema" yaml:"schema"`
	OutputKeys []string             `json:"output_keys,omitempty" yaml:"output_keys,omitempty"`
}

// NodeInfo describes one node. Child is set for nodes wrapping a subgraph.
type NodeInfo struct {
	ID          string        `json:"id" yaml:"id"`
	Kind        string        `json:"kind" yaml:"kind"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Child       *Description  `json:"child,omitempty" yaml:"child,omitempty"`
}

// Describe returns the graph's structure, recursing into subgraphs.
func (g *Graph) Describe() *Description {
	d := &Description{
		Name:       g.name,
		Edges:      g.Edges(),
		Schema:     g.schema.Describe(),
		OutputKeys: g.OutputKeys(),
	}
	for _, n := range g.nodes {
		info := NodeInfo{
			ID:          n.id,
			Kind:        n.kind(),
			Timeout:     n.timeout,
			Description: n.description,
		}
		if p, ok := n.node.(Parent); ok && p.Child() != nil {
			info.Child = p.Child().Describe()
		}
		d.Nodes = append(d.Nodes, info)
	}
	return d
}
