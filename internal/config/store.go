package config

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/adapters/sqlite"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/session"
)

// Backend is an opened checkpoint store with its run serialization.
type Backend struct {
	Store    ports.CheckpointStore
	Sessions *session.Manager
	close    func() error
}

// Close releases the store's connections or files.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the configured store, wrapped with encryption when a key is
// set. The redis backend also serializes runs across processes.
func (s StoreConfig) Open(logger *slog.Logger) (*Backend, error) {
	var (
		store   ports.CheckpointStore
		closeFn func() error
		opts    = []session.Option{session.WithLogger(logger)}
	)

	switch s.Backend {
	case BackendMemory:
		store = memory.NewStore()
	case BackendFile:
		store = file.New(s.Path)
	case BackendSQLite:
		db, err := sqlite.Open(s.Path)
		if err != nil {
			return nil, err
		}
		store, closeFn = db, db.Close
	case BackendRedis:
		rs := redis.New(s.RedisAddr, s.RedisPassword, s.RedisDB, redis.WithPrefix(s.RedisPrefix), redis.WithTTL(s.TTL))
		store, closeFn = rs, rs.Close
		opts = append(opts, session.WithLocker(redis.NewLocker(rs.Client(), s.RedisPrefix)))
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}

	if s.EncryptionKey != "" {
		key, err := middleware.ParseKey(s.EncryptionKey)
		if err != nil {
			if closeFn != nil {
				_ = closeFn()
			}
			return nil, err
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	return &Backend{
		Store:    store,
		Sessions: session.NewManager(store, opts...),
		close:    closeFn,
	}, nil
}
