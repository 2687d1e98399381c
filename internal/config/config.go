package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the CLI configuration.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	Tools  ToolsConfig  `mapstructure:"tools"`
}

// StoreConfig selects and configures the checkpoint store.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	EncryptionKey string        `mapstructure:"encryption_key"`
}

// EngineConfig holds executor limits.
type EngineConfig struct {
	StepLimit      int           `mapstructure:"step_limit"`
	NodeTimeout    time.Duration `mapstructure:"node_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds network adapter settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ToolsConfig points at a file of allow-listed commands exposed as tools.
type ToolsConfig struct {
	File string `mapstructure:"file"`
	Dir  string `mapstructure:"dir"`
}

// flagKeys binds command flags to configuration keys.
var flagKeys = map[string]string{
	"store":           "store.backend",
	"store-path":      "store.path",
	"redis-addr":      "store.redis_addr",
	"redis-prefix":    "store.redis_prefix",
	"step-limit":      "engine.step_limit",
	"node-timeout":    "engine.node_timeout",
	"max-concurrency": "engine.max_concurrency",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"addr":            "server.addr",
	"tools":           "tools.file",
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and the flags of cmd, each overriding the previous one.
// Env var overrides use prefix WEFT_, e.g. WEFT_STORE_BACKEND.
func Load(cmd *cobra.Command) (Config, error) {
	v := viper.New()

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", filepath.Join(".weft", "threads"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "weft:")
	v.SetDefault("store.ttl", time.Duration(0))
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("engine.step_limit", 25)
	v.SetDefault("engine.node_timeout", time.Duration(0))
	v.SetDefault("engine.max_concurrency", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("tools.file", "")
	v.SetDefault("tools.dir", "")

	v.SetConfigType("yaml")

	cfgPath := os.Getenv("WEFT_CONFIG")
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil && f.Changed {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "weft"))
		}
		v.SetConfigName("weft")
	}

	v.SetEnvPrefix("WEFT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if (c.Store.Backend == BackendFile || c.Store.Backend == BackendSQLite) && c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store %s needs a path", c.Store.Backend))
	}
	if c.Engine.StepLimit < 0 {
		errs = append(errs, errors.New("engine.step_limit cannot be negative"))
	}
	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, errors.New("engine.max_concurrency cannot be negative"))
	}
	return errors.Join(errs...)
}
