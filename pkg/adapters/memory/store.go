package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use. History is lost when the process exits.
type Store struct {
	data map[string][]*domain.Snapshot // ascending by step
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]*domain.Snapshot),
	}
}

// Put appends a copy of the snapshot to the thread's history.
func (s *Store) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	// Deep copy to ensure isolation, similar to serialization
	record := snap.Clone()
	record.ThreadID = threadID
	record.Step = step

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[threadID]
	i, found := slices.BinarySearchFunc(history, step, func(e *domain.Snapshot, step int) int {
		return cmp.Compare(e.Step, step)
	})
	if found {
		return domain.ErrCheckpointExists
	}
	s.data[threadID] = slices.Insert(history, i, record)
	return nil
}

// Latest returns a copy of the highest step of the thread.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[threadID]
	if !ok || len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	// Copy on read so callers can't mutate store state by pointer
	return history[len(history)-1].Clone(), nil
}

// History returns copies of every checkpoint of the thread.
func (s *Store) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[threadID]
	if !ok || len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	out := make([]*domain.Snapshot, len(history))
	for i, snap := range history {
		out[i] = snap.Clone()
	}
	return out, nil
}

// Delete removes the thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns stored threads.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	slices.Sort(threads)
	return threads, nil
}
