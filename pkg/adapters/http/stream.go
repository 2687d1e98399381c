package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// StreamManager fans committed checkpoints out to SSE subscribers as
// snapshot diffs, one subscriber set per thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // thread id -> set of channels
	last        map[string]*domain.Snapshot
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		last:        make(map[string]*domain.Snapshot),
		logger:      logger,
	}
}

// Subscribe registers a listener for threadID. The returned func
// unsubscribes and closes the channel; calling it again is a no-op.
func (sm *StreamManager) Subscribe(threadID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		subs := sm.subscribers[threadID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, threadID)
				delete(sm.last, threadID)
			}
		}
	}
}

// Publish sends the diff between the previous checkpoint seen for the
// thread and snap. Threads without subscribers are ignored.
func (sm *StreamManager) Publish(snap *domain.Snapshot) {
	sm.mu.Lock()
	if _, ok := sm.subscribers[snap.ThreadID]; !ok {
		sm.mu.Unlock()
		return
	}
	prev := sm.last[snap.ThreadID]
	sm.last[snap.ThreadID] = snap
	sm.mu.Unlock()

	diff := domain.Diff(prev, snap)
	if diff == nil || diff.IsEmpty() {
		return
	}
	payload, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Warn("SSE: encode diff failed", "thread_id", snap.ThreadID, "err", err)
		return
	}
	sm.Broadcast(snap.ThreadID, string(payload))
}

// Broadcast delivers msg to every subscriber of threadID. Slow clients drop
// messages instead of blocking the run.
func (sm *StreamManager) Broadcast(threadID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// Hooks returns lifecycle hooks publishing every committed checkpoint.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepCommit: func(_ context.Context, snap *domain.Snapshot) {
			sm.Publish(snap)
		},
	}
}
