package radio

import (
	"errors"
	"fmt"

	"github.com/go-ble/ble"
)

// ATTCodeKeepLinkOpen is the application ATT error a peer answers a write with
// when it wants the link kept open briefly to measure RSSI itself.
const ATTCodeKeepLinkOpen ble.ATTError = 0x80

var (
	ErrBluetoothOff  = errors.New("bluetooth is turned off")
	ErrUnsupported   = errors.New("bluetooth is not supported")
	ErrNotConnected  = errors.New("not connected")
	ErrNoPayload     = errors.New("no payload available")
	ErrNotConfigured = errors.New("service not configured")
)

// NotFoundError reports a GATT resource missing on the remote peer.
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // [service] or [service, characteristic]
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

// ATTCode extracts the ATT error code carried by err.
func ATTCode(err error) (ble.ATTError, bool) {
	var attErr ble.ATTError
	if errors.As(err, &attErr) {
		return attErr, true
	}
	return 0, false
}

// StateFromError maps a stack start-up failure to the state it implies.
func StateFromError(err error) State {
	switch {
	case err == nil:
		return StatePoweredOn
	case errors.Is(err, ErrBluetoothOff):
		return StatePoweredOff
	case errors.Is(err, ErrUnsupported):
		return StateUnsupported
	default:
		return StateUnknown
	}
}
