package graph

import (
	"context"
	"time"

	"github.com/aretw0/weft/pkg/domain"
)

// Node is the single compute contract every graph step implements.
// Run receives a private copy of the committed state and returns the partial
// update to merge. It must not retain or mutate state after returning.
type Node interface {
	Run(ctx context.Context, state domain.Values) (domain.Values, error)
}

// NodeFunc adapts a plain function to Node.
type NodeFunc func(ctx context.Context, state domain.Values) (domain.Values, error)

// Run calls f.
func (f NodeFunc) Run(ctx context.Context, state domain.Values) (domain.Values, error) {
	return f(ctx, state)
}

// Kinder is implemented by nodes that want a specific label in graph
// descriptions ("tool", "subgraph"). Plain nodes are reported as "func".
type Kinder interface {
	Kind() string
}

// Parent is implemented by nodes that wrap a compiled graph.
type Parent interface {
	Child() *Graph
}

// KindFunc is the default node kind.
const KindFunc = "func"

// NodeOption configures a registered node.
type NodeOption func(*nodeSpec)

// WithTimeout bounds a single execution of the node. A node that overruns
// fails its superstep with context.DeadlineExceeded.
func WithTimeout(d time.Duration) NodeOption {
	return func(n *nodeSpec) {
		n.timeout = d
	}
}

// WithDescription attaches a label shown by graph exporters.
func WithDescription(text string) NodeOption {
	return func(n *nodeSpec) {
		n.description = text
	}
}

type nodeSpec struct {
	id          string
	node        Node
	order       int
	timeout     time.Duration
	description string
}

func (n *nodeSpec) kind() string {
	if k, ok := n.node.(Kinder); ok {
		return k.Kind()
	}
	return KindFunc
}
