package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

const ext = ".jsonl"

// Store implements ports.CheckpointStore using the local filesystem.
// Each thread is a JSON-lines file holding one checkpoint per line, appended
// and fsynced as it is written. Thread ids are path-escaped into file names.
type Store struct {
	BasePath string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".weft/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".weft", "threads")
	}
	return &Store{BasePath: basePath, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) path(threadID string) string {
	return filepath.Join(s.BasePath, url.PathEscape(threadID)+ext)
}

// lock serializes writers of one file within this process.
func (s *Store) lock(threadID string) func() {
	s.mu.Lock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Put appends the checkpoint to the thread file.
func (s *Store) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}

	record := *snap
	record.ThreadID = threadID
	record.Step = step
	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	unlock := s.lock(threadID)
	defer unlock()

	existing, valid, err := s.read(threadID)
	if err != nil && !errors.Is(err, domain.ErrThreadNotFound) {
		return err
	}
	for _, snap := range existing {
		if snap.Step == step {
			return domain.ErrCheckpointExists
		}
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure thread directory: %w", err)
	}

	f, err := os.OpenFile(s.path(threadID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open thread file: %w", err)
	}
	defer f.Close()

	// Drop a torn record left by a crash so the new one starts on its own line.
	if info, err := f.Stat(); err == nil && info.Size() > valid {
		if err := f.Truncate(valid); err != nil {
			return fmt.Errorf("failed to truncate torn record: %w", err)
		}
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	// Fsync to ensure durability
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to fsync thread file: %w", err)
	}
	return f.Close()
}

// Latest returns the highest recorded step.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	history, err := s.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return history[len(history)-1], nil
}

// History reads the thread file, ordered by step.
func (s *Store) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	if threadID == "" {
		return nil, fmt.Errorf("threadID cannot be empty")
	}
	unlock := s.lock(threadID)
	defer unlock()

	history, _, err := s.read(threadID)
	return history, err
}

// read decodes the thread file and reports how many bytes hold complete
// records. A torn final line, missing its newline, is not counted.
func (s *Store) read(threadID string) ([]*domain.Snapshot, int64, error) {
	data, err := os.ReadFile(s.path(threadID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, domain.ErrThreadNotFound
		}
		return nil, 0, fmt.Errorf("failed to read thread file: %w", err)
	}

	valid := bytes.LastIndexByte(data, '\n') + 1
	var history []*domain.Snapshot
	for line, raw := range bytes.Split(data[:valid], []byte("\n")) {
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, 0, fmt.Errorf("corrupt checkpoint at %s:%d: %w", s.path(threadID), line+1, err)
		}
		history = append(history, &snap)
	}
	if len(history) == 0 {
		return nil, int64(valid), domain.ErrThreadNotFound
	}

	slices.SortStableFunc(history, func(a, b *domain.Snapshot) int {
		return a.Step - b.Step
	})
	return history, int64(valid), nil
}

// Delete removes the thread file.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return fmt.Errorf("threadID cannot be empty")
	}
	unlock := s.lock(threadID)
	defer unlock()

	err := os.Remove(s.path(threadID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete thread file: %w", err)
	}
	return nil
}

// List returns all stored thread ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	threads := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		threads = append(threads, id)
	}
	slices.Sort(threads)
	return threads, nil
}
