package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a
// CheckpointStore implementation adheres to the interface contract.
// Values used by the suite survive a JSON round trip, so serializing stores
// are held to the same expectations as in-memory ones.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	t.Helper()
	ctx := context.Background()
	threadID := "contract-" + time.Now().Format("20060102150405.000000000")
	now := time.Now().UTC().Truncate(time.Millisecond)

	snapshot := func(step int, frontier ...string) *domain.Snapshot {
		return &domain.Snapshot{
			Values:    domain.Values{"foo": "bar", "count": float64(step), "log": []any{"a", "b"}},
			Frontier:  frontier,
			Writes:    map[string][]string{"foo": {"a", "b"}},
			Status:    domain.StatusFor(frontier),
			Source:    domain.SourceLoop,
			Timestamp: now.Add(time.Duration(step) * time.Second),
		}
	}

	t.Run("Put and Latest", func(t *testing.T) {
		id := threadID + "-latest"
		defer func() { _ = store.Delete(ctx, id) }()

		require.NoError(t, store.Put(ctx, id, 0, snapshot(0, "a")))
		require.NoError(t, store.Put(ctx, id, 1, snapshot(1)))

		latest, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, latest.ThreadID)
		assert.Equal(t, 1, latest.Step)
		assert.Equal(t, "bar", latest.Values["foo"])
		assert.Equal(t, float64(1), latest.Values["count"])
		assert.Equal(t, []any{"a", "b"}, latest.Values["log"])
		assert.Equal(t, map[string][]string{"foo": {"a", "b"}}, latest.Writes)
		assert.Equal(t, domain.StatusCompleted, latest.Status)
		assert.Equal(t, domain.SourceLoop, latest.Source)
		assert.Empty(t, latest.Frontier)
		assert.True(t, now.Add(time.Second).Equal(latest.Timestamp), "timestamp %v", latest.Timestamp)
	})

	t.Run("Put keys by argument", func(t *testing.T) {
		id := threadID + "-keys"
		defer func() { _ = store.Delete(ctx, id) }()

		snap := snapshot(0, "a")
		snap.ThreadID = "elsewhere"
		snap.Step = 42
		require.NoError(t, store.Put(ctx, id, 0, snap))

		latest, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, latest.ThreadID)
		assert.Equal(t, 0, latest.Step)
	})

	t.Run("History is ascending", func(t *testing.T) {
		id := threadID + "-history"
		defer func() { _ = store.Delete(ctx, id) }()

		for step := 0; step < 12; step++ {
			require.NoError(t, store.Put(ctx, id, step, snapshot(step, "a")))
		}

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 12)
		for i, snap := range history {
			assert.Equal(t, i, snap.Step)
			assert.Equal(t, id, snap.ThreadID)
			assert.Equal(t, []string{"a"}, snap.Frontier)
		}
	})

	t.Run("Duplicate step is rejected", func(t *testing.T) {
		id := threadID + "-dup"
		defer func() { _ = store.Delete(ctx, id) }()

		require.NoError(t, store.Put(ctx, id, 0, snapshot(0, "a")))
		err := store.Put(ctx, id, 0, snapshot(0))
		assert.ErrorIs(t, err, domain.ErrCheckpointExists)

		latest, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, latest.Frontier, "first write must survive")
	})

	t.Run("Returned snapshots are copies", func(t *testing.T) {
		id := threadID + "-copy"
		defer func() { _ = store.Delete(ctx, id) }()

		snap := snapshot(0, "a")
		require.NoError(t, store.Put(ctx, id, 0, snap))
		snap.Values["foo"] = "changed after put"

		first, err := store.Latest(ctx, id)
		require.NoError(t, err)
		first.Values["foo"] = "changed after load"
		first.Frontier[0] = "z"

		second, err := store.Latest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "bar", second.Values["foo"])
		assert.Equal(t, []string{"a"}, second.Frontier)
	})

	t.Run("Unknown thread", func(t *testing.T) {
		_, err := store.Latest(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)

		_, err = store.History(ctx, "non-existent-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)

		assert.NoError(t, store.Delete(ctx, "non-existent-"+threadID))
	})

	t.Run("Delete", func(t *testing.T) {
		id := threadID + "-delete"
		require.NoError(t, store.Put(ctx, id, 0, snapshot(0, "a")))
		require.NoError(t, store.Put(ctx, id, 1, snapshot(1)))

		require.NoError(t, store.Delete(ctx, id))

		_, err := store.Latest(ctx, id)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, threads, id)

		// The step sequence starts over.
		require.NoError(t, store.Put(ctx, id, 0, snapshot(0)))
		require.NoError(t, store.Delete(ctx, id))
	})

	t.Run("List", func(t *testing.T) {
		id1 := threadID + "-list-1"
		id2 := threadID + "-list-2/child#1"
		require.NoError(t, store.Put(ctx, id1, 0, snapshot(0)))
		require.NoError(t, store.Put(ctx, id2, 0, snapshot(0)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		threads, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, id1)
		assert.Contains(t, threads, id2)
		assert.IsNonDecreasing(t, threads)
	})

	t.Run("Concurrent threads", func(t *testing.T) {
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers*3)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				id := fmt.Sprintf("%s-concurrent-%d", threadID, w)
				for step := 0; step < 3; step++ {
					errs <- store.Put(ctx, id, step, snapshot(step, "a"))
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for w := 0; w < workers; w++ {
			id := fmt.Sprintf("%s-concurrent-%d", threadID, w)
			history, err := store.History(ctx, id)
			require.NoError(t, err)
			assert.Len(t, history, 3)
			_ = store.Delete(ctx, id)
		}
	})
}
