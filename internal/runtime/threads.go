package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/google/uuid"
)

// State returns the current checkpoint of a thread.
func (e *Executor) State(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	return e.store.Latest(ctx, threadID)
}

// History returns every checkpoint of a thread, oldest first.
func (e *Executor) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	return e.store.History(ctx, threadID)
}

// Threads lists the stored threads, including nested subgraph threads.
func (e *Executor) Threads(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Delete removes a thread and the threads of subgraphs it started. It waits
// for an in-flight run of the thread to finish.
func (e *Executor) Delete(ctx context.Context, threadID string) error {
	threads, err := e.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}
	for _, id := range threads {
		if strings.HasPrefix(id, threadID+"/") {
			if err := e.sessions.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete child thread %s: %w", id, err)
			}
		}
	}
	return e.sessions.Delete(ctx, threadID)
}

// Fork copies the history of src up to and including step into a new thread
// dst, whose head is re-tagged as a fork. Invoking dst continues from there
// while src is left untouched. An empty dst gets a generated id.
func (e *Executor) Fork(ctx context.Context, src string, step int, dst string) (*domain.Snapshot, error) {
	if dst == "" {
		dst = uuid.NewString()
	}
	if dst == src {
		return nil, fmt.Errorf("fork %s onto itself: %w", src, domain.ErrCheckpointExists)
	}

	history, err := e.store.History(ctx, src)
	if err != nil {
		return nil, err
	}

	var head *domain.Snapshot
	err = e.sessions.WithLock(ctx, dst, func(ctx context.Context) error {
		if _, err := e.store.Latest(ctx, dst); err == nil {
			return fmt.Errorf("fork target %s: %w", dst, domain.ErrCheckpointExists)
		}

		var kept []*domain.Snapshot
		for _, snap := range history {
			if snap.Step <= step {
				kept = append(kept, snap)
			}
		}
		if len(kept) == 0 || kept[len(kept)-1].Step != step {
			return fmt.Errorf("thread %s has no step %d: %w", src, step, domain.ErrThreadNotFound)
		}

		for i, snap := range kept {
			record := snap.Clone()
			record.ThreadID = dst
			if i == len(kept)-1 {
				record.Source = domain.SourceFork
				record.Timestamp = time.Now().UTC()
				head = record
			}
			if err := e.store.Put(ctx, dst, record.Step, record); err != nil {
				return fmt.Errorf("copy step %d: %w", record.Step, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("thread forked", "src", src, "step", step, "dst", dst)
	return head, nil
}
