// Package config loads the options of a nearby node: defaults from struct
// tags, overlaid by an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/proximity"
	"gopkg.in/yaml.v3"
)

// ErrInvalidUUID is returned for a service or characteristic UUID go-ble
// cannot parse.
var ErrInvalidUUID = errors.New("invalid UUID")

// Config holds application configuration
type Config struct {
	LogLevel   string `yaml:"log_level" default:"info"`
	DeviceName string `yaml:"device_name" default:"nearby"`

	ServiceUUID        string `yaml:"service_uuid" default:"FD68"`
	CharacteristicUUID string `yaml:"characteristic_uuid" default:"8c8494e3-bed8-4a11-9b2f-9bd7a0ab5d69"`

	MinReconnectionInterval  time.Duration `yaml:"min_reconnection_interval" default:"60s"`
	CacheExpiration          time.Duration `yaml:"cache_expiration" default:"180s"`
	PeerExpiry               time.Duration `yaml:"peer_expiry" default:"30s"`
	MaxConcurrentConnections int           `yaml:"max_concurrent_connections" default:"1"`
	ConnectionInterval       time.Duration `yaml:"connection_interval" default:"1s"`
	ConnectionTimeout        time.Duration `yaml:"connection_timeout" default:"5s"`
	KeepAliveDelay           time.Duration `yaml:"keep_alive_delay" default:"2s"`
	ReadmissionDelay         time.Duration `yaml:"readmission_delay" default:"1s"`
	SweepInterval            time.Duration `yaml:"sweep_interval" default:"5s"`

	TxCompensation int8 `yaml:"tx_compensation" default:"0"`
	RxCompensation int8 `yaml:"rx_compensation" default:"0"`

	EventBuffer int `yaml:"event_buffer" default:"64"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns the defaults overlaid by the YAML file at path. An empty path
// yields the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.overlay(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every option; the first problem found is returned.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	_, err := c.Options()
	return err
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Options converts the configuration into coordinator options.
func (c *Config) Options() (proximity.Config, error) {
	service, err := parseUUID("service_uuid", c.ServiceUUID)
	if err != nil {
		return proximity.Config{}, err
	}
	characteristic, err := parseUUID("characteristic_uuid", c.CharacteristicUUID)
	if err != nil {
		return proximity.Config{}, err
	}

	opts := proximity.Config{
		Service:                  service,
		Characteristic:           characteristic,
		MinReconnectionInterval:  c.MinReconnectionInterval,
		CacheExpiration:          c.CacheExpiration,
		PeerExpiry:               c.PeerExpiry,
		MaxConcurrentConnections: c.MaxConcurrentConnections,
		ConnectionInterval:       c.ConnectionInterval,
		ConnectionTimeout:        c.ConnectionTimeout,
		KeepAliveDelay:           c.KeepAliveDelay,
		ReadmissionDelay:         c.ReadmissionDelay,
		SweepInterval:            c.SweepInterval,
		TxCompensation:           c.TxCompensation,
		RxCompensation:           c.RxCompensation,
		EventBuffer:              c.EventBuffer,
	}
	if err := opts.Validate(); err != nil {
		return proximity.Config{}, err
	}
	return opts, nil
}

func parseUUID(key, s string) (ble.UUID, error) {
	u, err := ble.Parse(s)
	if err != nil || len(u) == 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidUUID, key, s)
	}
	return u, nil
}

// YAML renders the configuration as a config file.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
