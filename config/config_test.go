package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/triptimes/config"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Realtime.Timeout)
	assert.Equal(t, time.Minute, cfg.Realtime.CacheTTL)
	assert.Equal(t, 1<<20, cfg.Realtime.MaxSize)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
storage:
  backend: sqlite
  sqlite_dir: /tmp/feeds
static:
  timeout: 2m
  max_size: 1000
realtime:
  timeout: 5s
  cache_ttl: 15s
timezone: America/New_York
metrics_addr: localhost:9090
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/feeds", cfg.Storage.SQLiteDir)
	assert.Equal(t, 2*time.Minute, cfg.Static.Timeout)
	assert.Equal(t, 1000, cfg.Static.MaxSize)
	assert.Equal(t, 5*time.Second, cfg.Realtime.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Realtime.CacheTTL)
	assert.Equal(t, "localhost:9090", cfg.MetricsAddr)

	// Untouched fields keep their defaults
	assert.Equal(t, 1<<20, cfg.Realtime.MaxSize)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRIPTIMES_STORAGE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/feeds")
	t.Setenv("TRIPTIMES_REALTIME_TTL", "90s")

	cfg, err := config.Load(writeConfig(t, "storage:\n  backend: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/feeds", cfg.Storage.PostgresDSN)
	assert.Equal(t, 90*time.Second, cfg.Realtime.CacheTTL)
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{"bad yaml", "storage: [[["},
		{"unknown backend", "storage:\n  backend: mongodb\n"},
		{"postgres without dsn", "storage:\n  backend: postgres\n"},
		{"bad timezone", "timezone: Mars/Olympus_Mons\n"},
		{"negative size", "static:\n  max_size: -1\n"},
		{"bad metrics addr", "metrics_addr: nope\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadBadEnvDuration(t *testing.T) {
	t.Setenv("TRIPTIMES_STATIC_TIMEOUT", "soon")
	_, err := config.Load("")
	assert.Error(t, err)
}
