package graph

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/schema"
)

// Graph is a compiled, immutable graph. It is safe for concurrent use by any
// number of executors.
type Graph struct {
	name         string
	schema       *schema.Schema
	nodes        []*nodeSpec
	index        map[string]*nodeSpec
	edges        map[string][]string
	conditionals map[string][]*conditional
	outputKeys   []string
}

// Edge is a read-only view of a declared edge, used by exporters.
type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Conditional bool   `json:"conditional,omitempty"`
	Label       string `json:"label,omitempty"`
}

// Name returns the label set with WithName.
func (g *Graph) Name() string { return g.name }

// Schema returns the state schema the graph was built over.
func (g *Graph) Schema() *schema.Schema { return g.schema }

// OutputKeys returns the keys Invoke reports, nil meaning all of them.
func (g *Graph) OutputKeys() []string { return slices.Clone(g.outputKeys) }

// Has reports whether id is a registered node.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Nodes returns node ids in registration order.
func (g *Graph) Nodes() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.id
	}
	return ids
}

// Node returns the compute contract registered under id.
func (g *Graph) Node(id string) (Node, bool) {
	spec, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return spec.node, true
}

// Order returns the registration index of id, or -1.
func (g *Graph) Order(id string) int {
	if spec, ok := g.index[id]; ok {
		return spec.order
	}
	return -1
}

// Timeout returns the per-node timeout, zero when unset.
func (g *Graph) Timeout(id string) time.Duration {
	if spec, ok := g.index[id]; ok {
		return spec.timeout
	}
	return 0
}

// Kind returns the descriptive kind of a node ("func", "tool", "subgraph").
func (g *Graph) Kind(id string) string {
	if spec, ok := g.index[id]; ok {
		return spec.kind()
	}
	return ""
}

// Edges lists static edges then conditional targets, ordered by source
// registration order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, from := range g.sources() {
		for _, to := range g.edges[from] {
			out = append(out, Edge{From: from, To: to})
		}
		for _, c := range g.conditionals[from] {
			for _, label := range c.labels {
				target, _ := c.resolve(label)
				e := Edge{From: from, To: target, Conditional: true}
				if c.paths != nil {
					e.Label = label
				}
				out = append(out, e)
			}
		}
	}
	return out
}

// sources returns Start followed by every node id, the order edges are walked.
func (g *Graph) sources() []string {
	return append([]string{domain.Start}, g.Nodes()...)
}

// Entry returns the first frontier of a fresh run.
func (g *Graph) Entry(state domain.Values) ([]string, error) {
	return g.Next([]string{domain.Start}, state)
}

// Next computes the frontier that follows the nodes in ran, given the state
// committed after they ran. Static successors and routing results are merged,
// deduplicated and sorted by registration order. End is dropped, so an empty
// frontier means the run is complete.
// Routing errors carry Source and Target; the caller fills in thread and step.
func (g *Graph) Next(ran []string, state domain.Values) ([]string, error) {
	seen := make(map[string]bool)
	var next []string
	add := func(id string) {
		if id == domain.End || seen[id] {
			return
		}
		seen[id] = true
		next = append(next, id)
	}

	for _, from := range ran {
		for _, to := range g.edges[from] {
			add(to)
		}
		for _, c := range g.conditionals[from] {
			choices, err := g.route(from, c, state)
			if err != nil {
				return nil, err
			}
			for _, choice := range choices {
				target, ok := c.resolve(choice)
				if !ok {
					return nil, &domain.RoutingError{Source: from, Target: choice}
				}
				add(target)
			}
		}
	}

	slices.SortFunc(next, func(a, b string) int {
		return g.index[a].order - g.index[b].order
	})
	return next, nil
}

func (g *Graph) route(from string, c *conditional, state domain.Values) (choices []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.RoutingError{Source: from, Err: fmt.Errorf("route panicked: %v", r)}
		}
	}()
	choices = c.route(state.Clone())
	if len(choices) == 0 {
		return nil, &domain.RoutingError{Source: from, Err: errors.New("route returned no target")}
	}
	return choices, nil
}

// validate runs the compile-time checks and joins every problem found.
func validate(g *Graph) error {
	var errs []error

	if len(g.edges[domain.Start]) == 0 && len(g.conditionals[domain.Start]) == 0 {
		errs = append(errs, &domain.ConfigError{Node: domain.Start, Detail: "graph has no entry edge"})
	}

	for _, key := range g.outputKeys {
		if !g.schema.Has(key) {
			errs = append(errs, &domain.ConfigError{Kind: domain.ErrUndeclaredKey, Key: key, Detail: "output key"})
		}
	}

	reached := g.reachable()
	for _, n := range g.nodes {
		if !reached[n.id] {
			errs = append(errs, &domain.ConfigError{Kind: domain.ErrOrphanNode, Node: n.id})
		}
	}

	return errors.Join(errs...)
}

// reachable walks static edges and declared conditional targets from Start.
func (g *Graph) reachable() map[string]bool {
	visited := make(map[string]bool)
	queue := []string{domain.Start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, to := range g.edges[current] {
			if !visited[to] {
				queue = append(queue, to)
			}
		}
		for _, c := range g.conditionals[current] {
			for target := range c.targets {
				if !visited[target] {
					queue = append(queue, target)
				}
			}
		}
	}
	return visited
}
