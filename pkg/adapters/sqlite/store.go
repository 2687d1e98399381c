package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id   TEXT NOT NULL,
	step        INTEGER NOT NULL,
	status      TEXT NOT NULL,
	source      TEXT NOT NULL,
	snapshot    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (thread_id, step)
);
`

// Store implements ports.CheckpointStore on a SQLite database.
// Each checkpoint is one row; the primary key rejects a second write of the
// same (thread, step).
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite allows a single writer

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaV1); err != nil {
		return err
	}

	var ver int
	err := db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&ver)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion)
		return err
	case err != nil:
		return err
	case ver > schemaVersion:
		return fmt.Errorf("database schema v%d is newer than supported v%d", ver, schemaVersion)
	}
	return nil
}

// Put inserts the checkpoint row.
func (s *Store) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	record := *snap
	record.ThreadID = threadID
	record.Step = step

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, step, status, source, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (thread_id, step) DO NOTHING`,
		threadID, step, string(record.Status), string(record.Source), string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	if n == 0 {
		return domain.ErrCheckpointExists
	}
	return nil
}

// Latest returns the row with the highest step.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM checkpoints WHERE thread_id = ? ORDER BY step DESC LIMIT 1",
		threadID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	return decode(raw)
}

// History returns every row of the thread in step order.
func (s *Store) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT snapshot FROM checkpoints WHERE thread_id = ? ORDER BY step",
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []*domain.Snapshot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		snap, err := decode(raw)
		if err != nil {
			return nil, err
		}
		history = append(history, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if len(history) == 0 {
		return nil, domain.ErrThreadNotFound
	}
	return history, nil
}

func decode(raw string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the distinct thread ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT thread_id FROM checkpoints ORDER BY thread_id")
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		threads = append(threads, id)
	}
	return threads, rows.Err()
}

// Delete removes every row of the thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
