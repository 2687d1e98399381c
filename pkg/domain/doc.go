/*
Package domain contains the core types shared by every layer of the weft runtime.

It defines the state mapping flowing between nodes, the immutable snapshot committed
after every superstep, the observations emitted while streaming, lifecycle hooks and
the error taxonomy. The package is kept pure: no I/O, no persistence, no scheduling.

# Key Entities

  - Values: the full or partial state of a run, keyed by channel name.
  - Snapshot: the committed state of a thread at one step, with its pending frontier
    and per-key write provenance.
  - Observation: what a streaming consumer receives after each superstep.
  - LifecycleHooks: callbacks fired by the executor around steps and nodes.
*/
package domain
