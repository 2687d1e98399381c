/*
Package ports defines the driven ports (interfaces) of the weft runtime.

These interfaces decouple the executor from storage and coordination backends.

# Key Interfaces

  - CheckpointStore: append-only (thread, step) -> snapshot persistence.
  - DistributedLocker: cross-process locking of a thread while it runs.

RunCheckpointStoreContract is a reusable suite every CheckpointStore adapter
runs in its own tests.
*/
package ports
