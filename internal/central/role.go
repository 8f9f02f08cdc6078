// Package central implements the initiating side of the exchange: scan for
// peers, admit them to a bounded number of connection slots, connect, discover
// the service, read or write the payload and disconnect.
//
// Every radio callback is routed through handleEvent on the work queue; peer
// state lives in a peer.Registry that only the work queue touches.
package central

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/dispatch"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/peer"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/scheduler"
	"github.com/srg/nearby/internal/timing"
)

// Delegate receives what the central role learns. All methods are called on
// the work queue.
type Delegate interface {
	CentralStateChanged(state radio.State)
	// PeerDiscovered reports a scan hit; advertised is nil when the peer
	// advertised no payload.
	PeerDiscovered(id uuid.UUID, advertised *payload.Payload, rssi int)
	PayloadRead(id uuid.UUID, p payload.Payload)
	ServiceNotFound(id uuid.UUID)
	// ShouldConnect decides whether a peer presenting candidate is worth a
	// connection. candidate is nil when its payload is unknown.
	ShouldConnect(candidate *payload.Payload) bool
	// OutgoingPayload is the blob written to writer peers.
	OutgoingPayload() ([]byte, bool)
}

// Role is the central state machine.
type Role struct {
	cfg      Config
	radio    radio.Central
	queue    *dispatch.Queue
	timers   timing.Scheduler
	delegate Delegate
	logger   *logrus.Logger

	registry  *peer.Registry
	scheduler *scheduler.Scheduler

	// fields below are owned by the work queue
	running      bool
	state        radio.State
	sweep        timing.CancelFunc
	readmit      timing.CancelFunc
	readmitSeq   uint64
	incompatible map[radio.Handle]struct{}
}

// New wires a central role to its radio. Radio events are delivered on queue.
func New(cfg Config, r radio.Central, queue *dispatch.Queue, timers timing.Scheduler, delegate Delegate, logger *logrus.Logger) *Role {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Role{
		cfg:          cfg,
		radio:        r,
		queue:        queue,
		timers:       timers,
		delegate:     delegate,
		logger:       logger,
		registry:     peer.NewRegistry(logger),
		state:        radio.StateUnknown,
		incompatible: make(map[radio.Handle]struct{}),
	}
	c.scheduler = scheduler.New(timers, cfg.ConnectionInterval, c.connectScheduled, logger)

	r.SetHandler(func(ev radio.Event) {
		c.queue.Async(func() { c.handleEvent(ev) })
	})
	return c
}

// Start powers up the radio; scanning begins once it reports powered on.
func (c *Role) Start() error {
	var err error
	if !c.queue.Sync(func() {
		c.running = true
		if err = c.radio.Start(); err == nil && c.state == radio.StatePoweredOn {
			// restarted while the radio stayed on
			c.startScanning()
		}
	}) {
		return fmt.Errorf("central: work queue closed")
	}
	if err != nil {
		return fmt.Errorf("central: failed to start radio: %w", err)
	}
	c.logger.Info("Central role started")
	return nil
}

// Stop stops scanning, cancels every link and forgets all peers.
func (c *Role) Stop() error {
	var err error
	c.queue.Sync(func() {
		if !c.running {
			return
		}
		c.running = false
		c.teardown(true)
		c.radio.StopScan()
		err = c.radio.Stop()
	})
	if err != nil {
		return fmt.Errorf("central: failed to stop radio: %w", err)
	}
	c.logger.Info("Central role stopped")
	return nil
}

// Peers returns a snapshot of every tracked peer, oldest first.
func (c *Role) Peers() []peer.Snapshot {
	var snaps []peer.Snapshot
	c.queue.Sync(func() {
		for _, rec := range c.registry.All() {
			snaps = append(snaps, rec.Snapshot())
		}
	})
	return snaps
}

// State returns the last radio state reported to the role.
func (c *Role) State() radio.State {
	state := radio.StateUnknown
	c.queue.Sync(func() { state = c.state })
	return state
}

// PendingConnections lists peers queued on the connection scheduler.
func (c *Role) PendingConnections() []uuid.UUID {
	return c.scheduler.Pending()
}

// SchedulerState reports whether a connection attempt is being issued.
func (c *Role) SchedulerState() scheduler.State {
	return c.scheduler.State()
}

// handleEvent is the single entry point for radio callbacks.
func (c *Role) handleEvent(ev radio.Event) {
	switch ev.Kind {
	case radio.EventStateChanged:
		c.handleState(ev.State)
		return
	case radio.EventDiscovered:
		c.handleDiscovered(ev)
		return
	case radio.EventRestored:
		c.handleRestored(ev.Restored)
		return
	}

	rec, ok := c.registry.ByHandle(ev.Handle)
	if !ok {
		c.handleUntracked(ev)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"event":   ev.Kind,
		"link":    rec.Link,
		"phase":   rec.Phase,
	}).Debug("Radio event")

	switch ev.Kind {
	case radio.EventConnected:
		c.onConnected(rec, ev)
	case radio.EventFailedToConnect:
		c.onLinkClosed(rec, ev)
	case radio.EventDisconnected:
		c.onLinkClosed(rec, ev)
	case radio.EventServicesDiscovered:
		c.onServicesDiscovered(rec, ev)
	case radio.EventCharacteristicsDiscovered:
		c.onCharacteristicsDiscovered(rec, ev)
	case radio.EventValueRead:
		c.onValueRead(rec, ev)
	case radio.EventValueWritten:
		c.onValueWritten(rec, ev)
	}
}

func (c *Role) handleUntracked(ev radio.Event) {
	if ev.Kind == radio.EventConnected {
		c.logger.WithField("address", ev.Handle).Debug("Connected to untracked peer, cancelling")
		c.radio.CancelConnection(ev.Handle)
		return
	}
	c.logger.WithFields(logrus.Fields{
		"address": ev.Handle,
		"event":   ev.Kind,
	}).Debug("Ignoring event for untracked peer")
}

func (c *Role) handleState(state radio.State) {
	if state == c.state {
		return
	}
	c.state = state
	c.logger.WithField("state", state).Info("Central radio state changed")
	c.delegate.CentralStateChanged(state)

	if state != radio.StatePoweredOn {
		c.teardown(false)
		return
	}
	if c.running {
		c.startScanning()
	}
}

func (c *Role) startScanning() {
	if err := c.radio.StartScan(c.cfg.Service, true); err != nil {
		c.logger.WithField("error", err).Warn("Failed to start scanning")
		return
	}
	c.startSweep()
}

// handleRestored disconnects peers the platform kept from a previous process;
// their state is unknown.
func (c *Role) handleRestored(handles []radio.Handle) {
	for _, h := range handles {
		c.logger.WithField("address", h).Debug("Disconnecting restored peer")
		c.radio.CancelConnection(h)
	}
}

func (c *Role) startSweep() {
	if c.sweep != nil {
		c.sweep()
	}
	c.sweep = c.timers.Every(c.cfg.SweepInterval, func() {
		c.queue.Async(c.admit)
	})
}

// teardown forgets every peer. With cancelLinks, live links are cancelled on
// the radio first; after a power loss there is nothing left to cancel.
func (c *Role) teardown(cancelLinks bool) {
	if c.sweep != nil {
		c.sweep()
		c.sweep = nil
	}
	c.cancelReadmission()

	for _, rec := range c.registry.All() {
		if cancelLinks && rec.Link != peer.LinkDisconnected {
			c.radio.CancelConnection(rec.Handle)
		}
	}
	c.registry.RemoveAll()
	c.scheduler.RemoveAll()
	c.incompatible = make(map[radio.Handle]struct{})
}
