package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ender.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearEnv neutralises overrides that may be set on the host.
func clearEnv(t *testing.T) {
	for _, k := range []string{"ENDER_POSTGRES_DSN", "ENDER_NATS_URL", "ENDER_REDIS_ADDR", "ENDER_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

// ============================================================================
// Test: Load
// ============================================================================

func TestLoad(t *testing.T) {
	path := writeTempFile(t, `
postgres:
  dsn: postgres://indexer@db:5432/ender
  max_open_conns: 8
nats:
  url: nats://bus:4222
  ack_wait: 2m
  nak_delay: 250ms
redis:
  addr: redis:6379
outbound:
  skip_websocket_topics: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://indexer@db:5432/ender", cfg.Postgres.DSN)
	assert.Equal(t, 8, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Minute, cfg.NATS.AckWait)
	assert.Equal(t, 250*time.Millisecond, cfg.NATS.NakDelay)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Outbound.SkipWebsocketTopics)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "secret123")
	path := writeTempFile(t, `
redis:
  addr: redis:6379
  password: ${TEST_REDIS_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.Redis.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeTempFile(t, "postgres: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config yaml")
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

// ============================================================================
// Test: LoadAndValidate
// ============================================================================

func TestLoadAndValidate_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadAndValidate("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPostgresDSN, cfg.Postgres.DSN)
	assert.Equal(t, DefaultMaxOpenConns, cfg.Postgres.MaxOpenConns)
	assert.Equal(t, DefaultMigrationsDir, cfg.Postgres.MigrationsDir)
	assert.Equal(t, DefaultNATSURL, cfg.NATS.URL)
	assert.Equal(t, "ENDER_BLOCKS", cfg.NATS.Stream)
	assert.Equal(t, "to-ender", cfg.NATS.Subject)
	assert.Equal(t, -1, cfg.NATS.MaxDeliver)
	assert.Equal(t, DefaultOutboundStream, cfg.NATS.OutboundStream)
	assert.Empty(t, cfg.Redis.Addr, "mid prices are off unless configured")
	assert.Equal(t, DefaultRefreshInterval, cfg.Reference.RefreshInterval)
	assert.Equal(t, DefaultMaxMessageBytes, cfg.Outbound.MaxMessageBytes)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestLoadAndValidate_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENDER_POSTGRES_DSN", "postgres://override/ender")
	t.Setenv("ENDER_REDIS_ADDR", "cache:6379")

	path := writeTempFile(t, `
postgres:
  dsn: postgres://file/ender
nats:
  url: nats://file:4222
`)
	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/ender", cfg.Postgres.DSN)
	assert.Equal(t, "nats://file:4222", cfg.NATS.URL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadAndValidate_SubscriberAndAggregator(t *testing.T) {
	clearEnv(t)
	path := writeTempFile(t, `
nats:
  consumer: ender-replica
  max_deliver: 10
outbound:
  max_message_bytes: 4096
`)
	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)

	sub := cfg.NATS.Subscriber()
	assert.Equal(t, "ender-replica", sub.Consumer)
	assert.Equal(t, 10, sub.MaxDeliver)
	assert.Equal(t, time.Second, sub.NakDelay)

	agg := cfg.Outbound.Aggregator()
	assert.Equal(t, 4096, agg.MaxMessageBytes)
	assert.False(t, agg.SkipWebsocketTopics)
}

// ============================================================================
// Test: Validate
// ============================================================================

func validConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"idle above open", func(c *Config) { c.Postgres.MaxIdleConns = c.Postgres.MaxOpenConns + 1 }, "postgres.max_idle_conns"},
		{"same inbound and outbound stream", func(c *Config) { c.NATS.OutboundStream = c.NATS.Stream }, "nats.outbound_stream"},
		{"negative ack wait", func(c *Config) { c.NATS.AckWait = -time.Second }, "nats.ack_wait"},
		{"max deliver below -1", func(c *Config) { c.NATS.MaxDeliver = -2 }, "nats.max_deliver"},
		{"negative redis db", func(c *Config) { c.Redis.DB = -1 }, "redis.db"},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"negative refresh interval", func(c *Config) { c.Reference.RefreshInterval = -time.Second }, "reference.refresh_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
