package graph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(_ context.Context, _ domain.Values) (domain.Values, error) { return nil, nil }

func testSchema() *schema.Schema {
	return schema.MustNew(
		schema.Field("domain", nil),
		schema.Field("path", nil),
		schema.Field("log", schema.Append()),
	)
}

func TestAddNode_Rejects(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop)))

	err := b.AddNode("a", graph.NodeFunc(noop))
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	assert.ErrorIs(t, b.AddNode("", graph.NodeFunc(noop)), domain.ErrConfiguration)
	assert.ErrorIs(t, b.AddNode(domain.End, graph.NodeFunc(noop)), domain.ErrConfiguration)
	assert.ErrorIs(t, b.AddNode("b", nil), domain.ErrConfiguration)
}

func TestAddEdge_UnknownEndpoints(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop)))

	assert.NoError(t, b.AddEdge(domain.Start, "a"))
	assert.NoError(t, b.AddEdge("a", domain.End))

	var cfg *domain.ConfigError
	err := b.AddEdge("a", "ghost")
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "ghost", cfg.Node)
	assert.ErrorIs(t, err, domain.ErrUnknownNode)

	assert.ErrorIs(t, b.AddEdge("ghost", "a"), domain.ErrUnknownNode)
	assert.ErrorIs(t, b.AddEdge(domain.End, "a"), domain.ErrConfiguration)
	assert.ErrorIs(t, b.AddEdge("a", domain.Start), domain.ErrConfiguration)
	assert.ErrorIs(t, b.AddConditionalEdge("a", graph.Route(func(domain.Values) string { return "a" }), "a", "ghost"), domain.ErrUnknownNode)
}

func TestCompile_Orphans(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop)))
	require.NoError(t, b.AddNode("island", graph.NodeFunc(noop)))
	require.NoError(t, b.AddNode("lake", graph.NodeFunc(noop)))
	require.NoError(t, b.AddEdge(domain.Start, "a"))
	require.NoError(t, b.AddEdge("island", "lake"))

	_, err := b.Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrphanNode)
	assert.Contains(t, err.Error(), `"island"`)
	assert.Contains(t, err.Error(), `"lake"`)
}

func TestCompile_NoEntry(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop)))

	_, err := b.Compile()
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCompile_ConditionalTargetsAreReachable(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	for _, id := range []string{"router", "left", "right"} {
		require.NoError(t, b.AddNode(id, graph.NodeFunc(noop)))
	}
	require.NoError(t, b.AddEdge(domain.Start, "router"))
	require.NoError(t, b.AddConditionalEdge("router", graph.Route(func(domain.Values) string { return "left" }), "left", "right"))

	g, err := b.Compile(graph.WithName("router"))
	require.NoError(t, err)
	assert.Equal(t, "router", g.Name())
	assert.Equal(t, []string{"router", "left", "right"}, g.Nodes())

	// Frozen after compile.
	assert.ErrorIs(t, b.AddNode("late", graph.NodeFunc(noop)), domain.ErrConfiguration)
	_, err = b.Compile()
	assert.Error(t, err)
}

func TestCompile_OutputKeys(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop)))
	require.NoError(t, b.AddEdge(domain.Start, "a"))

	_, err := b.Compile(graph.WithOutputKeys("path", "ghost"))
	assert.ErrorIs(t, err, domain.ErrUndeclaredKey)

	g, err := b.Compile(graph.WithOutputKeys("path"))
	require.NoError(t, err)
	assert.Equal(t, []string{"path"}, g.OutputKeys())
}

func TestNext_DedupesAndOrders(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	for _, id := range []string{"a", "b", "c", "join"} {
		require.NoError(t, b.AddNode(id, graph.NodeFunc(noop)))
	}
	require.NoError(t, b.AddEdge(domain.Start, "c"))
	require.NoError(t, b.AddEdge(domain.Start, "a"))
	require.NoError(t, b.AddEdge(domain.Start, "b"))
	require.NoError(t, b.AddEdge("a", "join"))
	require.NoError(t, b.AddEdge("b", "join"))
	require.NoError(t, b.AddEdge("c", domain.End))
	require.NoError(t, b.AddEdge("join", domain.End))
	g := b.MustCompile()

	entry, err := g.Entry(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, entry, "frontier follows registration order")

	next, err := g.Next(entry, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"join"}, next, "end is dropped and join appears once")

	next, err = g.Next([]string{"join"}, nil)
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestNext_RoutingErrors(t *testing.T) {
	build := func(route graph.RouteFunc) *graph.Graph {
		b := graph.NewBuilder(testSchema())
		require.NoError(t, b.AddNode("router", graph.NodeFunc(noop)))
		require.NoError(t, b.AddNode("left", graph.NodeFunc(noop)))
		require.NoError(t, b.AddEdge(domain.Start, "router"))
		require.NoError(t, b.AddConditionalEdge("router", route, "left", domain.End))
		return b.MustCompile()
	}

	t.Run("undeclared target", func(t *testing.T) {
		g := build(graph.Route(func(domain.Values) string { return "right" }))
		_, err := g.Next([]string{"router"}, nil)
		var re *domain.RoutingError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "router", re.Source)
		assert.Equal(t, "right", re.Target)
		assert.ErrorIs(t, err, domain.ErrRouting)
	})

	t.Run("panic", func(t *testing.T) {
		g := build(func(s domain.Values) []string {
			return []string{s["missing"].(string)}
		})
		_, err := g.Next([]string{"router"}, domain.Values{})
		assert.ErrorIs(t, err, domain.ErrRouting)
		assert.ErrorContains(t, err, "panicked")
	})

	t.Run("empty choice", func(t *testing.T) {
		g := build(func(domain.Values) []string { return nil })
		_, err := g.Next([]string{"router"}, nil)
		assert.ErrorIs(t, err, domain.ErrRouting)
	})

	t.Run("state is not shared with the route", func(t *testing.T) {
		g := build(func(s domain.Values) []string {
			s["domain"] = "mutated"
			return []string{domain.End}
		})
		state := domain.Values{"domain": "A"}
		next, err := g.Next([]string{"router"}, state)
		require.NoError(t, err)
		assert.Empty(t, next)
		assert.Equal(t, "A", state["domain"])
	})
}

func TestConditionalEdgeMap(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("supervisor", graph.NodeFunc(noop)))
	require.NoError(t, b.AddNode("researcher", graph.NodeFunc(noop)))
	require.NoError(t, b.AddEdge(domain.Start, "supervisor"))
	require.NoError(t, b.AddEdge("researcher", "supervisor"))
	require.NoError(t, b.AddConditionalEdgeMap("supervisor",
		graph.Route(func(s domain.Values) string { return s["path"].(string) }),
		map[string]string{"research": "researcher", "FINISH": domain.End},
	))
	g := b.MustCompile()

	next, err := g.Next([]string{"supervisor"}, domain.Values{"path": "research"})
	require.NoError(t, err)
	assert.Equal(t, []string{"researcher"}, next)

	next, err = g.Next([]string{"supervisor"}, domain.Values{"path": "FINISH"})
	require.NoError(t, err)
	assert.Empty(t, next)

	_, err = g.Next([]string{"supervisor"}, domain.Values{"path": "researcher"})
	assert.ErrorIs(t, err, domain.ErrRouting, "labels, not ids, are routed")

	var labels []string
	for _, e := range g.Edges() {
		if e.Conditional {
			labels = append(labels, e.Label)
		}
	}
	assert.Equal(t, []string{"FINISH", "research"}, labels)
}

func TestDescribe(t *testing.T) {
	b := graph.NewBuilder(testSchema())
	require.NoError(t, b.AddNode("a", graph.NodeFunc(noop), graph.WithTimeout(time.Second), graph.WithDescription("first")))
	require.NoError(t, b.AddEdge(domain.Start, "a"))
	require.NoError(t, b.AddEdge("a", domain.End))
	g := b.MustCompile(graph.WithName("tiny"))

	d := g.Describe()
	assert.Equal(t, "tiny", d.Name)
	require.Len(t, d.Nodes, 1)
	assert.Equal(t, graph.NodeInfo{ID: "a", Kind: graph.KindFunc, Timeout: time.Second, Description: "first"}, d.Nodes[0])
	assert.Equal(t, []graph.Edge{{From: domain.Start, To: "a"}, {From: "a", To: domain.End}}, d.Edges)
	assert.Len(t, d.Schema, 3)
}
