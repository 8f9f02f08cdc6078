package proximity

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/central"
	"github.com/srg/nearby/internal/dedup"
	"github.com/srg/nearby/internal/peripheral"
)

// Config holds every coordinator option.
type Config struct {
	Service        ble.UUID
	Characteristic ble.UUID

	MinReconnectionInterval  time.Duration
	CacheExpiration          time.Duration
	PeerExpiry               time.Duration
	MaxConcurrentConnections int
	ConnectionInterval       time.Duration
	ConnectionTimeout        time.Duration
	KeepAliveDelay           time.Duration
	ReadmissionDelay         time.Duration
	SweepInterval            time.Duration

	TxCompensation int8
	RxCompensation int8

	EventBuffer int
}

// DefaultConfig returns the stock options for a service and characteristic.
func DefaultConfig(service, characteristic ble.UUID) Config {
	cc := central.DefaultConfig(service, characteristic)
	return Config{
		Service:                  service,
		Characteristic:           characteristic,
		MinReconnectionInterval:  dedup.DefaultCooldown,
		CacheExpiration:          180 * time.Second,
		PeerExpiry:               cc.PeerExpiry,
		MaxConcurrentConnections: cc.MaxConcurrentConnections,
		ConnectionInterval:       cc.ConnectionInterval,
		ConnectionTimeout:        cc.ConnectionTimeout,
		KeepAliveDelay:           cc.KeepAliveDelay,
		ReadmissionDelay:         cc.ReadmissionDelay,
		SweepInterval:            cc.SweepInterval,
		EventBuffer:              64,
	}
}

// Validate rejects options the subsystem cannot run with.
func (c Config) Validate() error {
	if c.Service == nil || c.Characteristic == nil {
		return errors.New("service and characteristic UUIDs are required")
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"min reconnection interval", c.MinReconnectionInterval},
		{"cache expiration", c.CacheExpiration},
		{"peer expiry", c.PeerExpiry},
		{"connection interval", c.ConnectionInterval},
		{"connection timeout", c.ConnectionTimeout},
		{"keep alive delay", c.KeepAliveDelay},
		{"readmission delay", c.ReadmissionDelay},
		{"sweep interval", c.SweepInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.evictionPeriod() <= 0 {
		return fmt.Errorf("cache expiration %s is too short", c.CacheExpiration)
	}
	if c.MaxConcurrentConnections < 1 {
		return fmt.Errorf("max concurrent connections must be at least 1, got %d", c.MaxConcurrentConnections)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be at least 1, got %d", c.EventBuffer)
	}
	return nil
}

func (c Config) evictionPeriod() time.Duration {
	return c.CacheExpiration / 5
}

func (c Config) centralConfig() central.Config {
	return central.Config{
		Service:                  c.Service,
		Characteristic:           c.Characteristic,
		MaxConcurrentConnections: c.MaxConcurrentConnections,
		ConnectionInterval:       c.ConnectionInterval,
		ConnectionTimeout:        c.ConnectionTimeout,
		KeepAliveDelay:           c.KeepAliveDelay,
		ReadmissionDelay:         c.ReadmissionDelay,
		PeerExpiry:               c.PeerExpiry,
		SweepInterval:            c.SweepInterval,
	}
}

func (c Config) peripheralConfig() peripheral.Config {
	return peripheral.Config{Service: c.Service, Characteristic: c.Characteristic}
}
