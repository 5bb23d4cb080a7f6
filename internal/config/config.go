// Package config loads cardforge's runtime configuration the way the
// teacher's pkg/config does: defaults, then an optional .env file via
// godotenv, then env-tag decoding via envdecode, with an optional YAML
// overlay for structured defaults that don't map cleanly to flat env vars.
package config

import (
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cardforge/cardforge/internal/obslog"
)

// DatabaseConfig controls the Postgres-backed repository implementation.
type DatabaseConfig struct {
	DSN            string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns   int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns   int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the checkpoint read-cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
}

// RuntimeConfig carries the default LoopConfig envelope and checkpoint policy.
type RuntimeConfig struct {
	MaxIterations         uint32  `yaml:"max_iterations" env:"LOOP_MAX_ITERATIONS"`
	MaxRuntimeSeconds     uint64  `yaml:"max_runtime_seconds" env:"LOOP_MAX_RUNTIME_SECONDS"`
	MaxCostUSD            float64 `yaml:"max_cost_usd" env:"LOOP_MAX_COST_USD"`
	CheckpointInterval    uint32  `yaml:"checkpoint_interval" env:"LOOP_CHECKPOINT_INTERVAL"`
	CooldownSeconds       uint64  `yaml:"cooldown_seconds" env:"LOOP_COOLDOWN_SECONDS"`
	MaxConsecutiveErrors  uint32  `yaml:"max_consecutive_errors" env:"LOOP_MAX_CONSECUTIVE_ERRORS"`
	CompletionSignal      string  `yaml:"completion_signal" env:"LOOP_COMPLETION_SIGNAL"`
	MaxCheckpointsPerCard int     `yaml:"max_checkpoints_per_card" env:"LOOP_MAX_CHECKPOINTS_PER_CARD"`
}

// PlatformConfig describes a single agent platform's CLI invocation.
type PlatformConfig struct {
	Name          string `yaml:"name" env:"PLATFORM_NAME"`
	BinaryPath    string `yaml:"binary_path" env:"PLATFORM_BINARY_PATH"`
	ConfigDir     string `yaml:"config_dir" env:"PLATFORM_CONFIG_DIR"`
	MaxConcurrent int    `yaml:"max_concurrent" env:"PLATFORM_MAX_CONCURRENT"`
}

// Config is the top-level configuration structure.
type Config struct {
	Logging  obslog.Config  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Platform PlatformConfig `yaml:"platform"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Logging: obslog.DefaultConfig(),
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Runtime: RuntimeConfig{
			MaxIterations:         100,
			MaxRuntimeSeconds:     14400,
			MaxCostUSD:            300.0,
			CheckpointInterval:    10,
			CooldownSeconds:       3,
			MaxConsecutiveErrors:  3,
			CompletionSignal:      "<promise>COMPLETE</promise>",
			MaxCheckpointsPerCard: 3,
		},
		Platform: PlatformConfig{
			Name:          "claude-code",
			MaxConcurrent: 4,
		},
	}
}

// Load builds a Config from an optional YAML file at path (ignored if empty
// or missing), an optional .env file, and environment variables, in that
// order of increasing precedence — matching the teacher's layering.
func Load(yamlPath string) (*Config, error) {
	cfg := New()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, err
	}

	return cfg, nil
}
