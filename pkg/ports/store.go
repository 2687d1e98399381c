package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// CheckpointStore persists the append-only history of every thread.
// Implementations must be safe for concurrent use across distinct threads;
// writes to a single thread are serialized by the executor.
type CheckpointStore interface {
	// Put records the snapshot of threadID at step. The stored copy carries
	// threadID and step whatever the snapshot says.
	// Returns domain.ErrCheckpointExists if the step is already recorded.
	Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error

	// Latest returns the highest recorded step of a thread.
	// Returns domain.ErrThreadNotFound if the thread has no checkpoint.
	Latest(ctx context.Context, threadID string) (*domain.Snapshot, error)

	// History returns every checkpoint of a thread in ascending step order.
	// Returns domain.ErrThreadNotFound if the thread has no checkpoint.
	History(ctx context.Context, threadID string) ([]*domain.Snapshot, error)

	// List returns the ids of all stored threads, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes a thread and its history. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
}
