// Package peer holds per-peer state for the central role and the registry
// that owns it.
package peer

import (
	"time"

	"github.com/google/uuid"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/timing"
)

// Role is the side of the exchange a peer plays, derived from how it was
// discovered.
type Role int

const (
	// RoleReader peers advertise no payload; we read theirs from the
	// characteristic (iOS-like).
	RoleReader Role = iota
	// RoleWriter peers advertise their payload; we write ours to them
	// (Android-like).
	RoleWriter
)

func (r Role) String() string {
	if r == RoleWriter {
		return "writer"
	}
	return "reader"
}

// Link is the connection state of the radio link to a peer.
type Link int

const (
	LinkDisconnected Link = iota
	LinkConnecting
	LinkConnected
	LinkDisconnecting
)

func (l Link) String() string {
	switch l {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Phase is where a peer is in the central exchange.
type Phase int

const (
	PhaseDiscovered Phase = iota
	PhaseAwaitingConnection
	PhaseConnecting
	PhaseServicesDiscovery
	PhaseCharacteristicsDiscovery
	PhaseExchanging
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingConnection:
		return "awaiting_connection"
	case PhaseConnecting:
		return "connecting"
	case PhaseServicesDiscovery:
		return "services_discovery"
	case PhaseCharacteristicsDiscovery:
		return "characteristics_discovery"
	case PhaseExchanging:
		return "exchanging"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "discovered"
	}
}

// Record is the state kept for one remote peer. Records are owned by a
// Registry and only touched from the work queue.
type Record struct {
	ID     uuid.UUID
	Handle radio.Handle
	Role   Role
	Link   Link
	Phase  Phase

	Payload     *payload.Payload
	FirstSeenAt time.Time
	LastSeenAt  time.Time

	// WantsConnection is set when a scan hit passed the duplicate filter and
	// cleared once the connect is issued.
	WantsConnection bool
	// AwaitingConnection is set while the scheduler holds the peer.
	AwaitingConnection bool
	// Expired never goes back to false.
	Expired bool

	timeout    timing.CancelFunc
	timeoutSeq uint64
	linger     timing.CancelFunc
	lingerSeq  uint64
}

func newRecord(h radio.Handle, role Role, now time.Time) *Record {
	return &Record{
		ID:          uuid.New(),
		Handle:      h,
		Role:        role,
		FirstSeenAt: now,
	}
}

// Seen updates LastSeenAt.
func (r *Record) Seen(at time.Time) {
	r.LastSeenAt = at
}

// Expire marks the record terminal.
func (r *Record) Expire() {
	r.Expired = true
}

// InFlight reports whether the record holds or is about to hold a connection slot.
func (r *Record) InFlight() bool {
	return r.AwaitingConnection || r.Link != LinkDisconnected
}

// LastActivity is LastSeenAt, or FirstSeenAt when the peer was never re-seen.
func (r *Record) LastActivity() time.Time {
	if r.LastSeenAt.IsZero() {
		return r.FirstSeenAt
	}
	return r.LastSeenAt
}

// ArmTimeout replaces any pending connection timeout with the one scheduled
// by arm. arm receives the sequence number the callback must present to
// IsCurrentTimeout so a superseded timer that already fired is ignored.
func (r *Record) ArmTimeout(arm func(seq uint64) timing.CancelFunc) {
	r.CancelTimeout()
	r.timeoutSeq++
	r.timeout = arm(r.timeoutSeq)
}

// CancelTimeout invalidates the pending connection timeout, if any.
func (r *Record) CancelTimeout() {
	if r.timeout != nil {
		r.timeout()
		r.timeout = nil
	}
	r.timeoutSeq++
}

// IsCurrentTimeout reports whether seq belongs to the armed timeout.
func (r *Record) IsCurrentTimeout(seq uint64) bool {
	return r.timeout != nil && r.timeoutSeq == seq
}

// ArmLinger replaces any pending delayed disconnect.
func (r *Record) ArmLinger(arm func(seq uint64) timing.CancelFunc) {
	r.CancelLinger()
	r.lingerSeq++
	r.linger = arm(r.lingerSeq)
}

// CancelLinger invalidates the pending delayed disconnect, if any.
func (r *Record) CancelLinger() {
	if r.linger != nil {
		r.linger()
		r.linger = nil
	}
	r.lingerSeq++
}

// IsCurrentLinger reports whether seq belongs to the armed delayed disconnect.
func (r *Record) IsCurrentLinger(seq uint64) bool {
	return r.linger != nil && r.lingerSeq == seq
}

// HasPendingTimers reports whether a timeout or delayed disconnect is armed.
func (r *Record) HasPendingTimers() bool {
	return r.timeout != nil || r.linger != nil
}

// Detach cancels every timer and resets the link so nothing scheduled for this
// record acts on it any more.
func (r *Record) Detach() {
	r.CancelTimeout()
	r.CancelLinger()
	r.Link = LinkDisconnected
	r.Phase = PhaseDiscovered
	r.AwaitingConnection = false
}

// Snapshot is a copy of a record safe to hand outside the work queue.
type Snapshot struct {
	ID                 uuid.UUID
	Handle             radio.Handle
	Role               Role
	Link               Link
	Phase              Phase
	Payload            *payload.Payload
	FirstSeenAt        time.Time
	LastSeenAt         time.Time
	WantsConnection    bool
	AwaitingConnection bool
	Expired            bool
	PendingTimers      bool
}

// Snapshot copies r.
func (r *Record) Snapshot() Snapshot {
	s := Snapshot{
		ID:                 r.ID,
		Handle:             r.Handle,
		Role:               r.Role,
		Link:               r.Link,
		Phase:              r.Phase,
		FirstSeenAt:        r.FirstSeenAt,
		LastSeenAt:         r.LastSeenAt,
		WantsConnection:    r.WantsConnection,
		AwaitingConnection: r.AwaitingConnection,
		Expired:            r.Expired,
		PendingTimers:      r.HasPendingTimers(),
	}
	if r.Payload != nil {
		p := *r.Payload
		s.Payload = &p
	}
	return s
}
