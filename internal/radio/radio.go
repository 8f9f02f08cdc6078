package radio

import (
	"github.com/go-ble/ble"
)

// Handle identifies a remote radio peer. It is owned by the radio stack; for
// go-ble it is the peer address.
type Handle string

func (h Handle) String() string { return string(h) }

// RSSIUnavailable is the value the stack reports when it could not measure
// signal strength.
const RSSIUnavailable = 127

// State is the power/authorization state of the local radio.
type State int

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s State) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "off"
	case StatePoweredOn:
		return "on"
	default:
		return "unknown"
	}
}

// EventKind tells which stack callback an Event represents.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventDiscovered
	EventRestored
	EventConnected
	EventFailedToConnect
	EventDisconnected
	EventServicesDiscovered
	EventCharacteristicsDiscovered
	EventValueRead
	EventValueWritten
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventDiscovered:
		return "discovered"
	case EventRestored:
		return "restored"
	case EventConnected:
		return "connected"
	case EventFailedToConnect:
		return "failed_to_connect"
	case EventDisconnected:
		return "disconnected"
	case EventServicesDiscovered:
		return "services_discovered"
	case EventCharacteristicsDiscovered:
		return "characteristics_discovered"
	case EventValueRead:
		return "value_read"
	case EventValueWritten:
		return "value_written"
	default:
		return "unknown"
	}
}

// Event is a single callback from the radio stack. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind   EventKind
	Handle Handle

	// EventStateChanged
	State State

	// EventDiscovered: service data advertised under the scanned service
	// (nil when the peer advertised none) and the measured RSSI.
	ServiceData []byte
	RSSI        int

	// EventRestored: peers the platform kept connected from a previous
	// process lifetime.
	Restored []Handle

	// EventConnected: the platform already holds the peer's services.
	ServicesCached bool

	// EventServicesDiscovered / EventCharacteristicsDiscovered: whether the
	// requested service or characteristic exists on the peer.
	Found bool

	// EventValueRead
	Value []byte

	// Failure of the operation the event completes.
	Err error
}

// Central is the scanning and connecting side of the stack.
//
// Commands return immediately; their outcome is reported as an Event. Every
// command is issued from the owning work queue.
type Central interface {
	SetHandler(handler func(Event))
	Start() error
	Stop() error

	StartScan(service ble.UUID, allowDuplicates bool) error
	StopScan()

	Connect(h Handle)
	CancelConnection(h Handle)

	DiscoverServices(h Handle, services []ble.UUID)
	DiscoverCharacteristics(h Handle, service ble.UUID, characteristics []ble.UUID)
	ReadValue(h Handle, service, characteristic ble.UUID)
	WriteValue(h Handle, service, characteristic ble.UUID, value []byte)
}

// ReadHandler answers a read request on the exposed characteristic.
type ReadHandler func() ([]byte, error)

// Peripheral is the advertising and responding side of the stack.
type Peripheral interface {
	SetHandler(handler func(Event))
	Start() error
	Stop() error

	SetService(service, characteristic ble.UUID, onRead ReadHandler) error
	RemoveServices() error
	StartAdvertising(service ble.UUID) error
	StopAdvertising()
}
