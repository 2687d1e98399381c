// Package graph defines the node contract and the compiled graph topology.
//
// A Builder accumulates nodes, static edges and conditional edges over a
// state schema. Compile validates the topology (unknown endpoints, orphan
// nodes, missing entry) and returns an immutable Graph that any number of
// executors can share.
//
//	b := graph.NewBuilder(s)
//	_ = b.AddNode("router", graph.NodeFunc(route))
//	_ = b.AddEdge(domain.Start, "router")
//	_ = b.AddConditionalEdge("router", graph.Route(pick), "left", "right")
//	g, err := b.Compile()
package graph
