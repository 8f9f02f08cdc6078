package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/nearby/internal/radio"
)

// NormalizeError maps known go-ble error strings to radio sentinels, wrapping
// the original so its message is kept.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, radio.ErrBluetoothOff) ||
		errors.Is(err, radio.ErrNotConnected) || errors.Is(err, radio.ErrUnsupported) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", radio.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "have=2"), containsIgnoreCase(msg, "unsupported"):
		return fmt.Errorf("%w: %v", radio.ErrUnsupported, err)
	case containsIgnoreCase(msg, "can't init hci"), containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", radio.ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", radio.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", radio.ErrNotConnected, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
