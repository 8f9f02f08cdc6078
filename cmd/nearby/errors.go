package main

import (
	"errors"
	"fmt"

	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/pkg/config"
)

// ErrInvalidIdentity is returned for an --identity that is not 16 hex encoded bytes.
var ErrInvalidIdentity = errors.New("invalid identity")

// FormatUserError turns known failures into a hint the user can act on.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, radio.ErrBluetoothOff):
		return "Bluetooth is turned off, enable it and try again"
	case errors.Is(err, radio.ErrUnsupported):
		return "no usable Bluetooth adapter found"
	case errors.Is(err, config.ErrInvalidUUID):
		return fmt.Sprintf("%v (use a 16-bit UUID like FD68 or a full 128-bit UUID)", err)
	case errors.Is(err, ErrInvalidIdentity):
		return fmt.Sprintf("%v (expected %d bytes, hex encoded)", err, payload.IdentitySize)
	default:
		return err.Error()
	}
}
