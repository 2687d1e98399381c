package graph

import (
	"fmt"
	"slices"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
)

// Builder accumulates nodes and edges. Endpoints are checked as they are
// added, so nodes must be registered before the edges that reference them.
// A Builder is not safe for concurrent use.
type Builder struct {
	schema   *schema.Schema
	nodes    []*nodeSpec
	index    map[string]*nodeSpec
	edges    map[string][]string
	conds    map[string][]*conditional
	compiled bool
}

// NewBuilder starts a graph over the given state schema.
func NewBuilder(s *schema.Schema) *Builder {
	return &Builder{
		schema: s,
		index:  make(map[string]*nodeSpec),
		edges:  make(map[string][]string),
		conds:  make(map[string][]*conditional),
	}
}

// AddNode registers a node. Registration order decides how writes of the same
// superstep are merged.
func (b *Builder) AddNode(id string, n Node, opts ...NodeOption) error {
	if err := b.mutable(); err != nil {
		return err
	}
	switch {
	case id == "":
		return &domain.ConfigError{Detail: "node id cannot be empty"}
	case domain.IsSentinel(id):
		return &domain.ConfigError{Node: id, Detail: "reserved node id"}
	case n == nil:
		return &domain.ConfigError{Node: id, Detail: "node cannot be nil"}
	}
	if _, exists := b.index[id]; exists {
		return &domain.ConfigError{Kind: domain.ErrDuplicateNode, Node: id}
	}

	spec := &nodeSpec{id: id, node: n, order: len(b.nodes)}
	for _, opt := range opts {
		opt(spec)
	}
	b.nodes = append(b.nodes, spec)
	b.index[id] = spec
	return nil
}

// AddEdge makes to run in the superstep after from completes.
// from may be domain.Start and to may be domain.End.
func (b *Builder) AddEdge(from, to string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if err := b.checkSource(from); err != nil {
		return err
	}
	if err := b.checkTarget(to); err != nil {
		return err
	}
	if !slices.Contains(b.edges[from], to) {
		b.edges[from] = append(b.edges[from], to)
	}
	return nil
}

// AddConditionalEdge routes from through route. targets is the complete set
// of ids route may return; anything else fails the run with a RoutingError.
func (b *Builder) AddConditionalEdge(from string, route RouteFunc, targets ...string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if err := b.checkSource(from); err != nil {
		return err
	}
	if route == nil {
		return &domain.ConfigError{Node: from, Detail: "route cannot be nil"}
	}
	if len(targets) == 0 {
		return &domain.ConfigError{Node: from, Detail: "conditional edge needs at least one target"}
	}

	c := &conditional{route: route, targets: make(map[string]bool, len(targets))}
	for _, t := range targets {
		if err := b.checkTarget(t); err != nil {
			return err
		}
		if !c.targets[t] {
			c.targets[t] = true
			c.labels = append(c.labels, t)
		}
	}
	b.conds[from] = append(b.conds[from], c)
	return nil
}

// AddConditionalEdgeMap routes from through route, whose return values are
// labels translated by paths into target ids.
func (b *Builder) AddConditionalEdgeMap(from string, route RouteFunc, paths map[string]string) error {
	if err := b.mutable(); err != nil {
		return err
	}
	if err := b.checkSource(from); err != nil {
		return err
	}
	if route == nil {
		return &domain.ConfigError{Node: from, Detail: "route cannot be nil"}
	}
	if len(paths) == 0 {
		return &domain.ConfigError{Node: from, Detail: "conditional edge needs at least one path"}
	}

	c := &conditional{
		route:   route,
		targets: make(map[string]bool, len(paths)),
		paths:   make(map[string]string, len(paths)),
	}
	labels := make([]string, 0, len(paths))
	for label := range paths {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	for _, label := range labels {
		target := paths[label]
		if err := b.checkTarget(target); err != nil {
			return err
		}
		c.paths[label] = target
		c.targets[target] = true
		c.labels = append(c.labels, label)
	}
	b.conds[from] = append(b.conds[from], c)
	return nil
}

func (b *Builder) mutable() error {
	if b.compiled {
		return &domain.ConfigError{Detail: "builder already compiled"}
	}
	return nil
}

func (b *Builder) checkSource(id string) error {
	if id == domain.End {
		return &domain.ConfigError{Node: id, Detail: "end cannot have successors"}
	}
	if id == domain.Start {
		return nil
	}
	if _, ok := b.index[id]; !ok {
		return &domain.ConfigError{Kind: domain.ErrUnknownNode, Node: id}
	}
	return nil
}

func (b *Builder) checkTarget(id string) error {
	if id == domain.Start {
		return &domain.ConfigError{Node: id, Detail: "start cannot be a target"}
	}
	if id == domain.End {
		return nil
	}
	if _, ok := b.index[id]; !ok {
		return &domain.ConfigError{Kind: domain.ErrUnknownNode, Node: id}
	}
	return nil
}

// CompileOption configures the compiled graph.
type CompileOption func(*Graph)

// WithName labels the graph in logs, metrics and descriptions.
func WithName(name string) CompileOption {
	return func(g *Graph) {
		g.name = name
	}
}

// WithOutputKeys restricts the values returned by single-shot invocations.
// Checkpoints always hold the full state.
func WithOutputKeys(keys ...string) CompileOption {
	return func(g *Graph) {
		g.outputKeys = slices.Clone(keys)
	}
}

// Compile validates the graph and freezes it. Every node must be reachable
// from domain.Start through static edges or declared conditional targets.
// All problems found are returned together.
func (b *Builder) Compile(opts ...CompileOption) (*Graph, error) {
	if err := b.mutable(); err != nil {
		return nil, err
	}
	if b.schema == nil {
		return nil, &domain.ConfigError{Detail: "graph has no state schema"}
	}

	g := &Graph{
		name:         "graph",
		schema:       b.schema,
		nodes:        slices.Clone(b.nodes),
		index:        make(map[string]*nodeSpec, len(b.index)),
		edges:        make(map[string][]string, len(b.edges)),
		conditionals: make(map[string][]*conditional, len(b.conds)),
	}
	for id, spec := range b.index {
		g.index[id] = spec
	}
	for from, targets := range b.edges {
		g.edges[from] = slices.Clone(targets)
	}
	for from, cs := range b.conds {
		g.conditionals[from] = slices.Clone(cs)
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := validate(g); err != nil {
		return nil, err
	}
	b.compiled = true
	return g, nil
}

// MustCompile is like Compile but panics on error.
func (b *Builder) MustCompile(opts ...CompileOption) *Graph {
	g, err := b.Compile(opts...)
	if err != nil {
		panic(fmt.Sprintf("compile graph: %v", err))
	}
	return g
}
