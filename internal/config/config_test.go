package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "dcbtree.db", cfg.SQLite.Path)
	assert.Equal(t, "dcbtree:", cfg.Redis.Prefix)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
backend: redis
redis:
  addr: cache:6379
log_level: debug
metrics_addr: ":9000"
`))
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "dcbtree:", cfg.Redis.Prefix, "unset keys keep defaults")
	assert.Equal(t, "dcbtree.db", cfg.SQLite.Path)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.MetricsAddr)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "backnd: sqlite\n", "field backnd not found"},
		{"unknown backend", "backend: postgres\n", `invalid backend "postgres"`},
		{"missing path", "sqlite:\n  path: \"\"\n", "sqlite.path is required"},
		{"missing redis addr", "backend: redis\nredis:\n  addr: \"\"\n", "redis.addr is required"},
		{"bad level", "log_level: loud\n", `invalid log level "loud"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcbtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
