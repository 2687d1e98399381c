package config_test

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WEFT_CONFIG", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, config.BackendFile, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(".weft", "threads"), cfg.Store.Path)
	assert.Equal(t, 25, cfg.Engine.StepLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: sqlite
  path: /tmp/from-file.db
engine:
  step_limit: 10
  node_timeout: 2s
log:
  level: debug
`), 0o600))
	t.Setenv("WEFT_CONFIG", path)
	t.Setenv("WEFT_ENGINE_STEP_LIMIT", "12")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "info", "")
	require.NoError(t, cmd.Flags().Set("log-level", "warn"))

	cfg, err := config.Load(cmd)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend, "file")
	assert.Equal(t, "/tmp/from-file.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, 12, cfg.Engine.StepLimit, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	t.Setenv("WEFT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := config.Load(nil)
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	cfg := config.Config{
		Store:  config.StoreConfig{Backend: "etcd"},
		Engine: config.EngineConfig{StepLimit: -1, MaxConcurrency: -2},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, `unknown store backend "etcd"`)
	assert.ErrorContains(t, err, "step_limit")
	assert.ErrorContains(t, err, "max_concurrency")

	cfg = config.Config{Store: config.StoreConfig{Backend: config.BackendSQLite}}
	assert.ErrorContains(t, cfg.Validate(), "needs a path")
}

func TestStoreConfig_Open(t *testing.T) {
	mr := miniredis.RunT(t)
	key := hex.EncodeToString(make([]byte, 32))

	tests := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{"memory", config.StoreConfig{Backend: config.BackendMemory}},
		{"file", config.StoreConfig{Backend: config.BackendFile, Path: t.TempDir()}},
		{"sqlite", config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "weft.db")}},
		{"redis", config.StoreConfig{Backend: config.BackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "test:"}},
		{"encrypted", config.StoreConfig{Backend: config.BackendMemory, EncryptionKey: key}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := tt.cfg.Open(logging.NewNop())
			require.NoError(t, err)
			defer backend.Close()

			ctx := context.Background()
			err = backend.Sessions.WithLock(ctx, "t", func(ctx context.Context) error {
				return backend.Store.Put(ctx, "t", 0, &domain.Snapshot{Values: domain.Values{"k": "v"}})
			})
			require.NoError(t, err)

			snap, err := backend.Sessions.Latest(ctx, "t")
			require.NoError(t, err)
			assert.Equal(t, "v", snap.Values["k"])
		})
	}

	_, err := config.StoreConfig{Backend: config.BackendMemory, EncryptionKey: "short"}.Open(logging.NewNop())
	assert.Error(t, err)
}
