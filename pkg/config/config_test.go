package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nearby.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "FD68", cfg.ServiceUUID)
	assert.Equal(t, "8c8494e3-bed8-4a11-9b2f-9bd7a0ab5d69", cfg.CharacteristicUUID)
	assert.Equal(t, 60*time.Second, cfg.MinReconnectionInterval)
	assert.Equal(t, 180*time.Second, cfg.CacheExpiration)
	assert.Equal(t, 30*time.Second, cfg.PeerExpiry)
	assert.Equal(t, 1, cfg.MaxConcurrentConnections)
	assert.Equal(t, time.Second, cfg.ConnectionInterval)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 2*time.Second, cfg.KeepAliveDelay)
	assert.Equal(t, time.Second, cfg.ReadmissionDelay)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, int8(0), cfg.TxCompensation)
	assert.Equal(t, int8(0), cfg.RxCompensation)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
log_level: debug
max_concurrent_connections: 3
connection_timeout: 8s
tx_compensation: -12
rx_compensation: 20
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 3, cfg.MaxConcurrentConnections)
		assert.Equal(t, 8*time.Second, cfg.ConnectionTimeout)
		assert.Equal(t, int8(-12), cfg.TxCompensation)
		assert.Equal(t, int8(20), cfg.RxCompensation)
		assert.Equal(t, 60*time.Second, cfg.MinReconnectionInterval, "unset keys MUST keep their default")
	})

	t.Run("empty file yields defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "scan_timeout: 5s\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "bad service uuid", mutate: func(c *Config) { c.ServiceUUID = "not-a-uuid" }, wantErr: ErrInvalidUUID},
		{name: "empty characteristic uuid", mutate: func(c *Config) { c.CharacteristicUUID = "" }, wantErr: ErrInvalidUUID},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "zero connections", mutate: func(c *Config) { c.MaxConcurrentConnections = 0 }},
		{name: "negative timeout", mutate: func(c *Config) { c.ConnectionTimeout = -time.Second }},
		{name: "cache expiration too short", mutate: func(c *Config) { c.CacheExpiration = 4 }},
		{name: "no event buffer", mutate: func(c *Config) { c.EventBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TxCompensation = 7
	cfg.EventBuffer = 8

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.True(t, opts.Service.Equal(ble.MustParse("FD68")))
	assert.True(t, opts.Characteristic.Equal(ble.MustParse("8c8494e3-bed8-4a11-9b2f-9bd7a0ab5d69")))
	assert.Equal(t, int8(7), opts.TxCompensation)
	assert.Equal(t, 8, opts.EventBuffer)
	assert.Equal(t, cfg.PeerExpiry, opts.PeerExpiry)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	cfg.KeepAliveDelay = 3 * time.Second

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "keep_alive_delay: 3s")

	loaded, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
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
		{level: "bogus", want: logrus.InfoLevel},
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
