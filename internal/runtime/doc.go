// Package runtime implements the superstep executor.
//
// Each invocation loads the thread's latest checkpoint, runs the frontier's
// nodes concurrently against private copies of the state, merges their
// writes in registration order through the schema's reducers, evaluates
// routing and commits a new checkpoint, until the frontier drains or the
// step ceiling is hit. Runs of one thread are serialized by a
// session.Manager; distinct threads proceed independently.
package runtime
