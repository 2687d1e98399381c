package dsl

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

// Builder manages the graph construction. Edges may name nodes declared
// later; they are resolved when Build runs. Problems are collected and
// reported together by Build.
type Builder struct {
	schema  *schema.Schema
	nodes   map[string]*NodeBuilder
	order   []*NodeBuilder
	entries []string
	errs    []error
}

// New creates a new graph builder over s.
func New(s *schema.Schema) *Builder {
	return &Builder{
		schema: s,
		nodes:  make(map[string]*NodeBuilder),
	}
}

// Start declares the entry nodes of the graph.
func (b *Builder) Start(targets ...string) *Builder {
	b.entries = append(b.entries, targets...)
	return b
}

// Node registers n under id. Registration order is the merge order of
// Overwrite conflicts. Calling Node again with the same id returns the
// existing builder, so edges can be added later with a nil node. Registering
// a second node under the same id is reported by Build.
func (b *Builder) Node(id string, n graph.Node, opts ...graph.NodeOption) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		if n != nil {
			b.errs = append(b.errs, &domain.ConfigError{Kind: domain.ErrDuplicateNode, Node: id})
		}
		nb.opts = append(nb.opts, opts...)
		return nb
	}
	nb := &NodeBuilder{
		id:      id,
		node:    n,
		opts:    opts,
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, nb)
	return nb
}

// Func registers a plain function as a node.
func (b *Builder) Func(id string, fn func(ctx context.Context, state domain.Values) (domain.Values, error), opts ...graph.NodeOption) *NodeBuilder {
	return b.Node(id, graph.NodeFunc(fn), opts...)
}

// Build registers every node, then every edge, and compiles the graph.
func (b *Builder) Build(opts ...graph.CompileOption) (*graph.Graph, error) {
	errs := append([]error(nil), b.errs...)
	gb := graph.NewBuilder(b.schema)

	for _, nb := range b.order {
		if err := gb.AddNode(nb.id, nb.node, nb.opts...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, target := range b.entries {
		if err := gb.AddEdge(domain.Start, target); err != nil {
			errs = append(errs, err)
		}
	}
	for _, nb := range b.order {
		for _, edge := range nb.edges {
			if err := edge(gb); err != nil {
				errs = append(errs, fmt.Errorf("node %s: %w", nb.id, err))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return gb.Compile(opts...)
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild(opts ...graph.CompileOption) *graph.Graph {
	g, err := b.Build(opts...)
	if err != nil {
		panic(err)
	}
	return g
}
