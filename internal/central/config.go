package central

import (
	"time"

	"github.com/go-ble/ble"
)

// Config tunes the central role.
type Config struct {
	Service        ble.UUID
	Characteristic ble.UUID

	// MaxConcurrentConnections caps peers that are awaiting, connecting or connected.
	MaxConcurrentConnections int
	// ConnectionInterval is the minimum spacing between two connection attempts.
	ConnectionInterval time.Duration
	// ConnectionTimeout bounds how long a peer may stay connecting.
	ConnectionTimeout time.Duration
	// KeepAliveDelay postpones the disconnect after a peer answered our write
	// with radio.ATTCodeKeepLinkOpen.
	KeepAliveDelay time.Duration
	// ReadmissionDelay is the pause between a disconnect and the next admission sweep.
	ReadmissionDelay time.Duration
	// PeerExpiry expires disconnected peers not seen for this long.
	PeerExpiry time.Duration
	// SweepInterval is the period of the background admission sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns the stock timings for service and characteristic.
func DefaultConfig(service, characteristic ble.UUID) Config {
	return Config{
		Service:                  service,
		Characteristic:           characteristic,
		MaxConcurrentConnections: 1,
		ConnectionInterval:       time.Second,
		ConnectionTimeout:        5 * time.Second,
		KeepAliveDelay:           2 * time.Second,
		ReadmissionDelay:         time.Second,
		PeerExpiry:               30 * time.Second,
		SweepInterval:            5 * time.Second,
	}
}
