package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/triptimes"
)

// Configuration of the triptimes command. Read from YAML, after which
// environment variables (and a .env file, if present) take
// precedence.
type Config struct {
	Storage  StorageConfig `yaml:"storage"`
	Static   FetchConfig   `yaml:"static"`
	Realtime FetchConfig   `yaml:"realtime"`

	// Timezone of the static feed. Realtime updates carrying
	// absolute times are interpreted in this zone.
	Timezone string `yaml:"timezone" validate:"omitempty,timezone"`

	// Serves Prometheus metrics when set, e.g. "localhost:9090".
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// Downloads are cached on disk here when set.
	CacheDir string `yaml:"cache_dir"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=memory sqlite postgres"`

	// Empty keeps SQLite databases in memory.
	SQLiteDir string `yaml:"sqlite_dir"`

	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
}

type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxSize  int           `yaml:"max_size" validate:"gte=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "memory",
		},
		Static: FetchConfig{
			Timeout: triptimes.DefaultStaticTimeout,
			MaxSize: triptimes.DefaultStaticMaxSize,
		},
		Realtime: FetchConfig{
			Timeout:  triptimes.DefaultRealtimeTimeout,
			MaxSize:  triptimes.DefaultRealtimeMaxSize,
			CacheTTL: triptimes.DefaultRealtimeTTL,
		},
		Timezone: "UTC",
	}
}

// Loads configuration from path, or only defaults and environment if
// path is empty.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	err := cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	for env, dst := range map[string]*string{
		"TRIPTIMES_STORAGE":      &c.Storage.Backend,
		"TRIPTIMES_SQLITE_DIR":   &c.Storage.SQLiteDir,
		"DATABASE_URL":           &c.Storage.PostgresDSN,
		"TRIPTIMES_TIMEZONE":     &c.Timezone,
		"TRIPTIMES_METRICS_ADDR": &c.MetricsAddr,
		"TRIPTIMES_CACHE_DIR":    &c.CacheDir,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	for env, dst := range map[string]*time.Duration{
		"TRIPTIMES_STATIC_TIMEOUT":   &c.Static.Timeout,
		"TRIPTIMES_REALTIME_TIMEOUT": &c.Realtime.Timeout,
		"TRIPTIMES_REALTIME_TTL":     &c.Realtime.CacheTTL,
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", env, v)
		}
		*dst = d
	}

	return nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
