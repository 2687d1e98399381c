package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by Store and Locker.
const DefaultPrefix = "weft:"

// Store implements ports.CheckpointStore using Redis.
//
// Layout under the prefix:
//
//	thread:<id>  HASH  step -> JSON snapshot (HSETNX, so steps are never overwritten)
//	steps:<id>   ZSET  step scored by step, used to find the latest checkpoint
//	index        ZSET  thread ids scored by expiry time
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of a thread, refreshed on every checkpoint.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client returns the underlying client, shared with a Locker by the CLI.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) threadKey(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *Store) stepsKey(threadID string) string {
	return s.prefix + "steps:" + threadID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// putScript writes a checkpoint and its index entries in one round trip.
// KEYS: thread, steps, index. ARGV: step, snapshot, expiry score, thread id, ttl ms.
const putScript = `
if redis.call("hsetnx", KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call("zadd", KEYS[2], ARGV[1], ARGV[1])
redis.call("zadd", KEYS[3], ARGV[3], ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call("pexpire", KEYS[1], ttl)
	redis.call("pexpire", KEYS[2], ttl)
end
return 1
`

// Put records a checkpoint. The hash field is written with HSETNX so a
// concurrent or repeated write of the same step is detected, and the
// indexes are updated by the same script so a checkpoint is never stored
// without being reachable from Latest.
func (s *Store) Put(ctx context.Context, threadID string, step int, snap *domain.Snapshot) error {
	record := *snap
	record.ThreadID = threadID
	record.Step = step

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
	score := time.Now().Add(s.ttl).Unix()
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	keys := []string{s.threadKey(threadID), s.stepsKey(threadID), s.indexKey()}
	created, err := s.client.Eval(ctx, putScript, keys,
		strconv.Itoa(step), data, score, threadID, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if created == 0 {
		return domain.ErrCheckpointExists
	}
	return nil
}

// Latest returns the highest recorded step.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.Snapshot, error) {
	fields, err := s.client.ZRevRange(ctx, s.stepsKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	val, err := s.client.HGet(ctx, s.threadKey(threadID), fields[0]).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

// History returns every checkpoint in ascending step order.
func (s *Store) History(ctx context.Context, threadID string) ([]*domain.Snapshot, error) {
	fields, err := s.client.ZRange(ctx, s.stepsKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	vals, err := s.client.HMGet(ctx, s.threadKey(threadID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	history := make([]*domain.Snapshot, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("checkpoint %s of thread %s is missing", fields[i], threadID)
		}
		snap, err := decode(raw)
		if err != nil {
			return nil, err
		}
		history = append(history, snap)
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

// Delete removes the thread and its index entry.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.threadKey(threadID), s.stepsKey(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live threads, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	// ZREMRANGEBYSCORE key -inf (now)
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	slices.Sort(threads)
	return threads, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
