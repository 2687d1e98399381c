/*
Package dsl provides a fluent builder for weft graphs.

It wraps graph.Builder so that a whole graph reads as one expression. Edges
may reference nodes declared further down, and every problem is reported at
once by Build instead of at each call.

Example usage:

	g, err := dsl.New(s).
		Start("router").
		Func("router", route).
		Branch(graph.Route(pickSide), "left", "right").
		Func("left", left).Terminal().
		Func("right", right).Terminal().
		Build(graph.WithName("router"))
*/
package dsl
