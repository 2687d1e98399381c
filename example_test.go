package weft_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/schema"
)

// ExampleNew routes a query to one of two branches based on the state.
func ExampleNew() {
	s := schema.MustNew(
		schema.Field("domain", schema.Overwrite()),
		schema.Field("path", schema.Overwrite()),
	)
	visit := func(path string) func(context.Context, domain.Values) (domain.Values, error) {
		return func(context.Context, domain.Values) (domain.Values, error) {
			return domain.Values{"path": path}, nil
		}
	}
	route := graph.Route(func(st domain.Values) string {
		if st["domain"] == "A" {
			return "left"
		}
		return "right"
	})

	g, err := dsl.New(s).
		Start("router").
		Func("router", visit("router")).Branch(route, "left", "right").
		Func("left", visit("left")).Terminal().
		Func("right", visit("right")).Terminal().
		Build(graph.WithName("router"))
	if err != nil {
		log.Fatal(err)
	}

	eng := weft.New(g)
	res, err := eng.Invoke(context.Background(), "thread-1", domain.Values{"domain": "A"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Values["path"], res.Status, res.Step)
	// Output: left completed 2
}

// ExampleEngine_Stream prints each committed superstep as it happens.
func ExampleEngine_Stream() {
	s := schema.MustNew(schema.Field("log", schema.Append(), schema.WithDefault([]string{})))
	step := func(id string) func(context.Context, domain.Values) (domain.Values, error) {
		return func(context.Context, domain.Values) (domain.Values, error) {
			return domain.Values{"log": []string{id}}, nil
		}
	}
	g, err := dsl.New(s).
		Start("a").
		Func("a", step("a")).To("b").
		Func("b", step("b")).Terminal().
		Build()
	if err != nil {
		log.Fatal(err)
	}

	for obs, err := range weft.New(g).Stream(context.Background(), "t", nil) {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(obs.Step, obs.Values["log"], obs.Status)
	}
	// Output:
	// 1 [a] running
	// 2 [a b] completed
}
