package graph

import (
	"github.com/aretw0/weft/pkg/domain"
)

// RouteFunc chooses the successors of a node from the state committed after
// its superstep. It returns one or more target ids, or domain.End.
// Routing functions must be pure; a panic is reported as a RoutingError.
type RouteFunc func(state domain.Values) []string

// Route adapts a single-target routing function.
func Route(fn func(state domain.Values) string) RouteFunc {
	return func(state domain.Values) []string {
		return []string{fn(state)}
	}
}

type conditional struct {
	route   RouteFunc
	targets map[string]bool
	paths   map[string]string // label -> target, nil when the route returns ids
	labels  []string          // declared targets or labels in declaration order
}

func (c *conditional) resolve(choice string) (string, bool) {
	if c.paths != nil {
		target, ok := c.paths[choice]
		return target, ok
	}
	return choice, c.targets[choice]
}
