package dsl

import (
	"context"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
)

// NodeBuilder provides a fluent API for configuring a node's edges.
type NodeBuilder struct {
	id      string
	node    graph.Node
	opts    []graph.NodeOption
	edges   []func(*graph.Builder) error
	builder *Builder
}

// To adds unconditional edges to the targets.
func (n *NodeBuilder) To(targets ...string) *NodeBuilder {
	for _, target := range targets {
		n.edges = append(n.edges, func(gb *graph.Builder) error {
			return gb.AddEdge(n.id, target)
		})
	}
	return n
}

// Branch adds a conditional edge. route must return one of targets.
func (n *NodeBuilder) Branch(route graph.RouteFunc, targets ...string) *NodeBuilder {
	n.edges = append(n.edges, func(gb *graph.Builder) error {
		return gb.AddConditionalEdge(n.id, route, targets...)
	})
	return n
}

// BranchMap adds a conditional edge whose route returns labels resolved
// through paths.
func (n *NodeBuilder) BranchMap(route graph.RouteFunc, paths map[string]string) *NodeBuilder {
	n.edges = append(n.edges, func(gb *graph.Builder) error {
		return gb.AddConditionalEdgeMap(n.id, route, paths)
	})
	return n
}

// Terminal marks the node as an end of the flow.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	return n.To(domain.End)
}

// Timeout bounds a single execution of the node.
func (n *NodeBuilder) Timeout(d time.Duration) *NodeBuilder {
	n.opts = append(n.opts, graph.WithTimeout(d))
	return n
}

// Describe attaches a label shown by graph exporters.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.opts = append(n.opts, graph.WithDescription(text))
	return n
}

// Node returns to the graph builder to declare another node.
func (n *NodeBuilder) Node(id string, node graph.Node, opts ...graph.NodeOption) *NodeBuilder {
	return n.builder.Node(id, node, opts...)
}

// Func returns to the graph builder to declare another function node.
func (n *NodeBuilder) Func(id string, fn func(ctx context.Context, state domain.Values) (domain.Values, error), opts ...graph.NodeOption) *NodeBuilder {
	return n.builder.Func(id, fn, opts...)
}

// Build compiles the graph this node belongs to.
func (n *NodeBuilder) Build(opts ...graph.CompileOption) (*graph.Graph, error) {
	return n.builder.Build(opts...)
}
