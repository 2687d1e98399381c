package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesThread(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "race-test", func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond) // Simulate IO
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak, "runs of one thread must not overlap")
}

func TestManager_DistinctThreadsDoNotContend(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	hold := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "a", func(ctx context.Context) error {
			<-hold
			return nil
		})
		close(done)
	}()

	err := manager.WithLock(ctx, "b", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)

	close(hold)
	<-done
}

func TestManager_WaitHonorsContext(t *testing.T) {
	manager := session.NewManager(memory.NewStore())

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = manager.WithLock(context.Background(), "t", func(ctx context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := manager.WithLock(ctx, "t", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

type fakeLocker struct {
	mu        sync.Mutex
	ttl       time.Duration
	locked    int
	unlocked  int
	unlockErr error
	lockErr   error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	f.ttl = ttl
	f.locked++
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked++
		return f.unlockErr
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{unlockErr: errors.New("redis gone")}
	manager := session.NewManager(memory.NewStore(),
		session.WithLocker(locker),
		session.WithLockTTL(time.Minute),
	)

	err := manager.WithLock(context.Background(), "t", func(ctx context.Context) error { return nil })
	require.NoError(t, err, "a failed release is logged, not returned")
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
	assert.Equal(t, time.Minute, locker.ttl)

	locker.lockErr = errors.New("contended")
	err = manager.WithLock(context.Background(), "t", func(ctx context.Context) error { return nil })
	assert.ErrorContains(t, err, "distributed lock")
}

func TestManager_StoreOperations(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "t", 0, &domain.Snapshot{Frontier: []string{"a"}}))

	snap, err := manager.Latest(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, snap.Frontier)

	threads, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, threads)

	require.NoError(t, manager.Delete(ctx, "t"))
	_, err = manager.Latest(ctx, "t")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	assert.Same(t, store, manager.Store())
}
