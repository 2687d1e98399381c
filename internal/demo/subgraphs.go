package demo

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/subgraph"
)

func parentSchema() (*schema.Schema, error) {
	return schema.New(schema.Field("foo", schema.Overwrite(), schema.WithType(schema.String())))
}

// SharedSubgraph embeds a child that declares foo alongside a private bar.
// foo flows in and out unchanged; bar never reaches the parent.
func SharedSubgraph() (*graph.Graph, error) {
	cs, err := schema.New(
		schema.Field("foo", schema.Overwrite(), schema.WithType(schema.String())),
		schema.Field("bar", schema.Overwrite(), schema.WithType(schema.String())),
	)
	if err != nil {
		return nil, err
	}
	child, err := dsl.New(cs).
		Start("subgraph_node").
		Func("subgraph_node", func(_ context.Context, st domain.Values) (domain.Values, error) {
			foo, _ := st["foo"].(string)
			return domain.Values{"foo": foo + "bar", "bar": "private"}, nil
		}).Terminal().
		Build(graph.WithName("shared_child"))
	if err != nil {
		return nil, err
	}

	ps, err := parentSchema()
	if err != nil {
		return nil, err
	}
	return dsl.New(ps).
		Start("subgraph").
		Node("subgraph", subgraph.Shared(child)).Terminal().
		Build(graph.WithName("subgraph-shared"))
}

// IsolatedSubgraph embeds a child with no keys in common. The parent's foo
// becomes the child's bar, the child appends "baz", and bar is copied back
// into foo.
func IsolatedSubgraph() (*graph.Graph, error) {
	cs, err := schema.New(
		schema.Field("bar", schema.Append(), schema.WithType(schema.String())),
		schema.Field("baz", schema.Overwrite()),
	)
	if err != nil {
		return nil, err
	}
	child, err := dsl.New(cs).
		Start("subgraph_node").
		Func("subgraph_node", func(context.Context, domain.Values) (domain.Values, error) {
			return domain.Values{"bar": "baz"}, nil
		}).Terminal().
		Build(graph.WithName("isolated_child"))
	if err != nil {
		return nil, err
	}

	ps, err := parentSchema()
	if err != nil {
		return nil, err
	}
	node := subgraph.Isolated(child, subgraph.Mapping{"foo": "bar"}, subgraph.Mapping{"bar": "foo"})
	return dsl.New(ps).
		Start("node").
		Node("node", node).Terminal().
		Build(graph.WithName("subgraph-isolated"))
}

func sharedSubgraphDemo() (Demo, error) {
	g, err := SharedSubgraph()
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "subgraph-shared",
		Description: "Child graph sharing the parent's foo key",
		Graph:       g,
		Input:       domain.Values{"foo": "hello"},
	}, nil
}

func isolatedSubgraphDemo() (Demo, error) {
	g, err := IsolatedSubgraph()
	if err != nil {
		return Demo{}, err
	}
	return Demo{
		Name:        "subgraph-isolated",
		Description: "Child graph reached through explicit key mappings",
		Graph:       g,
		Input:       domain.Values{"foo": "hello"},
	}, nil
}
