// Package subgraph embeds a compiled graph as a single node of another graph.
//
// The child runs as a complete invocation of its own, with its own step
// counter and a thread id derived from the parent thread, node and step
// (for example "order-42/research#3"). Three modes decide how state crosses
// the boundary:
//
//   - Isolated: explicit key mappings in and out.
//   - Shared: keys declared by both graphs flow through; child-only keys stay hidden.
//   - Func: arbitrary translation functions.
package subgraph
