package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the per-thread semaphore and its reference count.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager serializes access to threads, so at most one run is in flight per
// thread id. Threads are independent of each other.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking, for processes sharing a durable store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over the given checkpoint store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(threadID) once done with the entry.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// active reports how many threads currently hold or wait for a lock.
func (m *Manager) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock executes fn while holding the lock for the thread.
// Waiting for the lock honors ctx; fn itself runs to completion.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	defer m.release(threadID)

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-entry.sem }()

	// Distributed locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Latest loads the current checkpoint of a thread.
func (m *Manager) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Latest(ctx, threadID)
		return err
	})
	return snap, err
}

// Delete removes the thread from the store once no run holds it.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Delete(ctx, threadID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}
