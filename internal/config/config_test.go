package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DATABASE_URL", "SQLITE_PATH", "LEDGER_CURRENCY", "CHART_FILE", "DEV_SEED",
		"CORS_ALLOWED_ORIGINS", "DEPRECIATION_WORKERS", "DEPRECIATION_RETRIES", "LOG_LEVEL", "LOG_FORMAT", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "KRW", c.Currency.Code)
	assert.Equal(t, int32(0), c.Currency.Scale)
	assert.Equal(t, 4, c.DepreciationWorkers)
	assert.Equal(t, 3, c.DepreciationRetries)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, c.CORSAllowedOrigins)
	assert.Equal(t, "memory", c.Backend())
	assert.False(t, c.DevSeed)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_CURRENCY=USD\nSQLITE_PATH=/tmp/books.db\nDEV_SEED=yes\nCORS_ALLOWED_ORIGINS=http://a.test, http://b.test\n"), 0o600))
	// godotenv does not override variables that are already set (even to ""),
	// so unset the ones the file provides.
	for _, k := range []string{"LEDGER_CURRENCY", "SQLITE_PATH", "DEV_SEED", "CORS_ALLOWED_ORIGINS"} {
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range []string{"LEDGER_CURRENCY", "SQLITE_PATH", "DEV_SEED", "CORS_ALLOWED_ORIGINS"} {
			_ = os.Unsetenv(k)
		}
	})

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USD", c.Currency.Code)
	assert.Equal(t, int32(2), c.Currency.Scale)
	assert.Equal(t, "sqlite", c.Backend())
	assert.True(t, c.DevSeed)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.CORSAllowedOrigins)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string][2]string{
		"currency":  {"LEDGER_CURRENCY", "XXXX"},
		"workers":   {"DEPRECIATION_WORKERS", "0"},
		"retries":   {"DEPRECIATION_RETRIES", "many"},
		"format":    {"LOG_FORMAT", "xml"},
		"shutdown":  {"SHUTDOWN_TIMEOUT", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
			assert.Error(t, err)
		})
	}

	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("SQLITE_PATH", "x.db")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &Config{LogLevel: "warn", LogFormat: "json"}
	l := c.Logger(&buf)
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("nonsense"))
}
