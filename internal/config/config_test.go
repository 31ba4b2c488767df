package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/tangible/internal/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tangible.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "panic", cfg.LogLevel)
	assert.Equal(t, BackendFile, cfg.Pairing.Backend)
	assert.Equal(t, "localhost:6379", cfg.Pairing.Redis.Address)
	assert.Equal(t, "tangible:", cfg.Pairing.Redis.Prefix)
	assert.Equal(t, "127.0.0.1:8080", cfg.Serve.Address)
	assert.Equal(t, 5*time.Second, cfg.Connection.AvailabilityTimeout)
	assert.Equal(t, 30*time.Second, cfg.Connection.ConnectTimeout)
	assert.True(t, cfg.Connection.AutoReconnect)
	assert.Equal(t, 16, cfg.Connection.SendQueueSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_OverridesOnlyPresentKeys(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
pairing:
  backend: memory
connection:
  ack_timeout: 750ms
  auto_reconnect: false
  send_queue_size: 4
serve:
  address: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.Pairing.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Connection.AckTimeout)
	assert.False(t, cfg.Connection.AutoReconnect)
	assert.Equal(t, 4, cfg.Connection.SendQueueSize)
	assert.Equal(t, "0.0.0.0:9000", cfg.Serve.Address)

	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Connection.WriteTimeout)
	assert.Equal(t, time.Second, cfg.Connection.ReconnectBackoff)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "malformed yaml", body: "log_level: [", wantErr: "failed to parse config"},
		{name: "bad duration", body: "connection:\n  ack_timeout: soon\n", wantErr: "failed to parse config"},
		{name: "bad level", body: "log_level: chatty\n", wantErr: `invalid log level "chatty"`},
		{name: "bad backend", body: "pairing:\n  backend: etcd\n", wantErr: `unknown pairing backend "etcd"`},
		{name: "redis without address", body: "pairing:\n  backend: redis\n  redis:\n    address: \"\"\n", wantErr: "pairing.redis.address is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{level: "debug", want: logrus.DebugLevel},
		{level: "info", want: logrus.InfoLevel},
		{level: "warn", want: logrus.WarnLevel},
		{level: "error", want: logrus.ErrorLevel},
		{level: "bogus", want: logrus.PanicLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_OpenPairingStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pairing.Backend = BackendMemory

		store, closeFn, err := cfg.OpenPairingStore()
		require.NoError(t, err)
		assert.IsType(t, &pairing.MemoryStore{}, store)
		assert.NoError(t, closeFn())
	})

	t.Run("file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pairing.Path = filepath.Join(t.TempDir(), "pairing.yaml")

		store, closeFn, err := cfg.OpenPairingStore()
		require.NoError(t, err)
		defer func() { assert.NoError(t, closeFn()) }()

		require.NoError(t, store.Set(ctx, "aa:bb:cc:dd:ee:ff"))
		assert.FileExists(t, cfg.Pairing.Path)
	})

	t.Run("redis", func(t *testing.T) {
		srv := miniredis.RunT(t)
		cfg := DefaultConfig()
		cfg.Pairing.Backend = BackendRedis
		cfg.Pairing.Redis.Address = srv.Addr()
		cfg.Pairing.Redis.Prefix = "test:"

		store, closeFn, err := cfg.OpenPairingStore()
		require.NoError(t, err)
		defer func() { assert.NoError(t, closeFn()) }()

		require.NoError(t, store.Set(ctx, "aa:bb:cc:dd:ee:ff"))
		srv.CheckGet(t, "test:"+pairing.Key, "AA:BB:CC:DD:EE:FF")
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pairing.Backend = "etcd"

		_, _, err := cfg.OpenPairingStore()
		assert.Error(t, err)
	})
}
