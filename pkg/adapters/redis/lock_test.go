package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	// 1. Acquire Lock
	unlock, err := locker.Lock(ctx, "thread-1", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	assert.True(t, mr.Exists("test:lock:thread-1"), "Lock key should be set in Redis")

	// 2. Release Lock
	assert.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:thread-1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:") // Same prefix -> contention
	ctx := context.Background()
	key := "shared-thread"

	// 1. Client 1 acquires lock
	unlock1, err := locker1.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)

	// 2. Client 2 blocks until its context gives up
	ctxTimeout, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, key, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), time.Now(), 150*time.Millisecond, "Should block until timeout")

	// 3. Client 1 unlocks, client 2 succeeds
	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, unlock2(ctx))
}

func TestRedisLocker_ExpiredHolderCannotRelease(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, "t", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock2, err := locker.Lock(ctx, "t", 5*time.Second)
	require.NoError(t, err)

	// The stale release must not drop the new holder's lock.
	require.NoError(t, unlock1(ctx))
	assert.True(t, mr.Exists(redis.DefaultPrefix+"lock:t"))

	require.NoError(t, unlock2(ctx))
	assert.False(t, mr.Exists(redis.DefaultPrefix+"lock:t"))
}
