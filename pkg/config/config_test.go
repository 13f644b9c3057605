package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
logger:
  level: debug
  format: text
server:
  port: "9090"
database:
  host: db.internal
  user: ledger
  password: secret
  name: accounts
redis:
  addr: localhost:6379
jobs:
  backend: local
  queue_size: 16
ledger:
  lock_ttl: 5s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadFile_AppliesDefaultsAndValues(t *testing.T) {
	cfg, v, err := LoadFile(writeConfig(t, validYAML), "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "local", cfg.Jobs.Backend)
	assert.Equal(t, 16, cfg.Jobs.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.IdempotencyTTL)
	assert.Equal(t, 30*time.Second, cfg.Ledger.RosterCacheTTL)
	assert.Equal(t, 30, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadFile_RateLimitWhitelist(t *testing.T) {
	body := validYAML + "rate_limit:\n  enabled: true\n  limit: 5\n  window: 10s\n  whitelist: [7, 9]\n"

	cfg, _, err := LoadFile(writeConfig(t, body), "test")
	require.NoError(t, err)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []uint32{7, 9}, cfg.RateLimit.Whitelist)
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_NAME", "accounts_override")

	cfg, _, err := LoadFile(writeConfig(t, validYAML), "test")
	require.NoError(t, err)

	assert.Equal(t, "accounts_override", cfg.Database.Name)
}

func TestLoadFile_RejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{
			name: "unknown jobs backend",
			body: strings.Replace(validYAML, "backend: local", "backend: rabbit", 1),
		},
		{
			name: "kafka enabled without brokers",
			body: validYAML + "kafka:\n  enabled: true\n  topic: coins\n",
		},
		{
			name: "sentry enabled without dsn",
			body: validYAML + "sentry:\n  enabled: true\n",
		},
		{
			name: "unsupported log format",
			body: strings.Replace(validYAML, "format: text", "format: xml", 1),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := LoadFile(writeConfig(t, tc.body), "test")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	assert.Error(t, err)
}

func TestGetDBConnectionString(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "ledger",
		Password: "pw",
		Name:     "accounts",
	}}

	assert.Equal(t,
		"host=localhost port=5432 user=ledger password=pw dbname=accounts sslmode=disable",
		cfg.GetDBConnectionString(),
	)
}
