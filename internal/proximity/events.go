package proximity

import (
	"time"

	"github.com/google/uuid"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/radio"
)

// Event is published on Coordinator.Events. It is one of ProximityUpdate,
// StateChanged or ServiceNotFound.
type Event interface {
	event()
}

// ProximityUpdate is a calibrated signal strength reading for a peer whose
// payload is known.
type ProximityUpdate struct {
	PeerID     uuid.UUID
	Payload    payload.Payload
	Timestamp  time.Time
	Calibrated int
	Raw        int
	TxPower    int8
}

// StateChanged reports a radio power state change.
type StateChanged struct {
	State     radio.State
	Timestamp time.Time
}

// ServiceNotFound reports a peer that does not expose the exchange service.
// It is reported once; the peer is ignored for the rest of the session.
type ServiceNotFound struct {
	PeerID    uuid.UUID
	Timestamp time.Time
}

func (ProximityUpdate) event() {}
func (StateChanged) event()    {}
func (ServiceNotFound) event() {}
