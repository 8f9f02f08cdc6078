package central

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/peer"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/timing"
)

func (c *Role) handleDiscovered(ev radio.Event) {
	if !c.running || c.state != radio.StatePoweredOn {
		return
	}
	if _, bad := c.incompatible[ev.Handle]; bad {
		return
	}
	now := c.timers.Now()

	var advertised *payload.Payload
	if len(ev.ServiceData) > 0 {
		p, err := payload.Decode(ev.ServiceData)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"address": ev.Handle,
				"error":   err,
			}).Debug("Ignoring malformed advertised payload")
		} else {
			advertised = &p
		}
	}

	role := peer.RoleReader
	if advertised != nil {
		role = peer.RoleWriter
	}
	rec, created := c.registry.Upsert(ev.Handle, role, now)
	if advertised != nil {
		rec.Role = peer.RoleWriter
		rec.Payload = advertised
	}
	if !created {
		rec.Seen(now)
	}

	c.delegate.PeerDiscovered(rec.ID, advertised, ev.RSSI)

	if rec.Expired || rec.WantsConnection || rec.InFlight() {
		c.admit()
		return
	}

	candidate := advertised
	if candidate == nil {
		candidate = rec.Payload
	}
	if c.delegate.ShouldConnect(candidate) {
		rec.WantsConnection = true
		c.logger.WithFields(logrus.Fields{
			"peer_id": rec.ID,
			"address": rec.Handle,
			"role":    rec.Role,
			"rssi":    ev.RSSI,
		}).Debug("Peer wants a connection")
	}
	c.admit()
}

// admit expires stale peers, then hands the oldest eligible peers to the
// scheduler until every connection slot is taken. It is the only path that
// leads to a connect call.
func (c *Role) admit() {
	if !c.running || c.state != radio.StatePoweredOn {
		return
	}
	now := c.timers.Now()

	for _, rec := range c.registry.Stale(now, c.cfg.PeerExpiry) {
		c.logger.WithFields(logrus.Fields{
			"peer_id":   rec.ID,
			"address":   rec.Handle,
			"last_seen": rec.LastActivity(),
		}).Debug("Peer expired")
		rec.Expire()
		c.disconnect(rec)
	}

	slots := c.cfg.MaxConcurrentConnections - c.registry.InFlight()
	if slots <= 0 {
		return
	}
	for _, rec := range c.registry.Eligible() {
		if slots == 0 {
			break
		}
		rec.AwaitingConnection = true
		rec.Phase = peer.PhaseAwaitingConnection
		c.scheduler.Enqueue(rec.ID)
		slots--
	}
}

// connectScheduled is the scheduler's ConnectFunc. It runs on a scheduler
// goroutine and hops onto the work queue; done fires once the connect was issued.
func (c *Role) connectScheduled(id uuid.UUID, done func()) {
	if !c.queue.Async(func() {
		defer done()
		c.issueConnect(id)
	}) {
		done()
	}
}

func (c *Role) issueConnect(id uuid.UUID) {
	rec, ok := c.registry.ByID(id)
	if !ok {
		return
	}
	rec.AwaitingConnection = false
	if rec.Expired || rec.Link != peer.LinkDisconnected || c.state != radio.StatePoweredOn {
		rec.Phase = peer.PhaseDiscovered
		return
	}

	rec.WantsConnection = false
	rec.Link = peer.LinkConnecting
	rec.Phase = peer.PhaseConnecting

	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": rec.Handle,
		"role":    rec.Role,
	}).Info("Connecting to peer")
	c.radio.Connect(rec.Handle)
	c.armTimeout(rec)
}

// armTimeout bounds the time a link may stay connecting, and the time a
// requested disconnect may stay unconfirmed.
func (c *Role) armTimeout(rec *peer.Record) {
	h := rec.Handle
	rec.ArmTimeout(func(seq uint64) timing.CancelFunc {
		return c.timers.After(c.cfg.ConnectionTimeout, func() {
			c.queue.Async(func() { c.onConnectionTimeout(h, seq) })
		})
	})
}

func (c *Role) onConnectionTimeout(h radio.Handle, seq uint64) {
	rec, ok := c.registry.ByHandle(h)
	if !ok || !rec.IsCurrentTimeout(seq) {
		return
	}
	rec.CancelTimeout()

	fields := logrus.Fields{
		"peer_id": rec.ID,
		"address": h,
		"timeout": c.cfg.ConnectionTimeout,
	}
	switch rec.Link {
	case peer.LinkConnected:
	case peer.LinkDisconnecting:
		c.logger.WithFields(fields).Warn("Radio never confirmed the disconnect, forcing cleanup")
		c.cleanup(rec)
		c.scheduleReadmission()
	default:
		c.logger.WithFields(fields).Warn("Connection attempt timed out")
		c.disconnect(rec)
	}
}

func (c *Role) scheduleReadmission() {
	c.cancelReadmission()
	c.readmitSeq++
	seq := c.readmitSeq
	c.readmit = c.timers.After(c.cfg.ReadmissionDelay, func() {
		c.queue.Async(func() {
			if seq != c.readmitSeq {
				return
			}
			c.readmit = nil
			c.admit()
		})
	})
}

func (c *Role) cancelReadmission() {
	if c.readmit != nil {
		c.readmit()
		c.readmit = nil
	}
	c.readmitSeq++
}
