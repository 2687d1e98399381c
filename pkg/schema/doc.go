// Package schema declares the state channels of a graph and how concurrent
// writes to them are merged.
//
// Each channel pairs a key with a Reducer:
//
//   - Overwrite: the new value replaces the old one.
//   - Append: sequences are concatenated left to right, duplicates kept.
//   - Custom: a user function (old, new) -> merged.
//
// Channels may also carry a Type, checked against the reduced value, and a
// default seeded when a thread starts:
//
//	s, err := schema.New(
//	    schema.Field("domain", schema.Overwrite(), schema.WithType(schema.String())),
//	    schema.Field("history", schema.Append(), schema.WithDefault([]string{})),
//	    schema.Field("score", schema.Custom("max", maxReducer)),
//	)
//
// Reduce applies the writes of one superstep in the order supplied. The
// executor supplies them in node-registration order, so the result never
// depends on goroutine scheduling.
package schema
