/*
Package weft runs stateful graphs in checkpointed supersteps.

A graph is a set of nodes over a shared state whose keys are declared in a
schema. Each key carries a reducer that decides how a new write combines with
the previous value: Overwrite replaces it, Append concatenates sequences, and
custom reducers do anything else that is pure.

# Execution model

Execution proceeds in supersteps. Every node in the frontier runs concurrently
against its own copy of the state; their writes are merged through the
reducers in node registration order and committed as one checkpoint. Edges,
conditional edges included, are then evaluated against the merged state to
produce the next frontier. The run ends when the frontier is empty or only
holds End.

Cycles are ordinary conditional back-edges. Termination is the job of an exit
condition in the graph; the step limit (DefaultStepLimit per invocation) is a
safety net that fails the run with ErrStepLimitExceeded.

# Usage

	s := schema.MustNew(
		schema.Field("domain", schema.Overwrite()),
		schema.Field("path", schema.Overwrite()),
	)
	g, err := dsl.New(s).
		Start("router").
		Func("router", classify).Branch(route, "left", "right").
		Func("left", left).Terminal().
		Func("right", right).Terminal().
		Build()
	if err != nil {
		log.Fatal(err)
	}

	eng := weft.New(g, weft.WithStore(file.New(".weft/threads")))
	res, err := eng.Invoke(ctx, "thread-1", domain.Values{"domain": "A"})

Invoke blocks until the thread completes. Stream yields one Observation per
committed superstep and may be abandoned early; the thread is left pending
and the next Invoke without input resumes it from its last checkpoint.

# Persistence

Checkpoints are written through a ports.CheckpointStore. The memory store
serves tests and single-process use; the file, sqlite and redis stores survive
restarts. History, Fork and Delete operate on the stored checkpoints. A
subgraph node keeps its own thread, named after its parent as
parent/node#step, and is deleted together with it.
*/
package weft
