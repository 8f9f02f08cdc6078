package central

import (
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/peer"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/timing"
)

func (c *Role) onConnected(rec *peer.Record, ev radio.Event) {
	if rec.Expired || rec.Link != peer.LinkConnecting {
		// we gave up on this link already
		c.radio.CancelConnection(rec.Handle)
		return
	}
	rec.CancelTimeout()
	rec.Link = peer.LinkConnected

	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": rec.Handle,
	}).Debug("Peer connected")

	if ev.ServicesCached {
		c.discoverCharacteristics(rec)
		return
	}
	rec.Phase = peer.PhaseServicesDiscovery
	c.radio.DiscoverServices(rec.Handle, []ble.UUID{c.cfg.Service})
}

func (c *Role) onServicesDiscovered(rec *peer.Record, ev radio.Event) {
	if rec.Link != peer.LinkConnected || rec.Phase != peer.PhaseServicesDiscovery {
		return
	}
	if ev.Err != nil {
		c.transientFailure(rec, "Service discovery failed", ev.Err)
		return
	}
	if !ev.Found {
		c.serviceNotFound(rec, &radio.NotFoundError{
			Resource: "service",
			UUIDs:    []string{c.cfg.Service.String()},
		})
		return
	}
	c.discoverCharacteristics(rec)
}

func (c *Role) discoverCharacteristics(rec *peer.Record) {
	rec.Phase = peer.PhaseCharacteristicsDiscovery
	c.radio.DiscoverCharacteristics(rec.Handle, c.cfg.Service, []ble.UUID{c.cfg.Characteristic})
}

func (c *Role) onCharacteristicsDiscovered(rec *peer.Record, ev radio.Event) {
	if rec.Link != peer.LinkConnected || rec.Phase != peer.PhaseCharacteristicsDiscovery {
		return
	}
	if ev.Err != nil {
		c.transientFailure(rec, "Characteristic discovery failed", ev.Err)
		return
	}
	if !ev.Found {
		c.serviceNotFound(rec, &radio.NotFoundError{
			Resource: "characteristic",
			UUIDs:    []string{c.cfg.Service.String(), c.cfg.Characteristic.String()},
		})
		return
	}
	c.exchange(rec)
}

// exchange writes our payload to writer peers and reads the payload of
// reader peers.
func (c *Role) exchange(rec *peer.Record) {
	rec.Phase = peer.PhaseExchanging

	if rec.Role == peer.RoleWriter {
		blob, ok := c.delegate.OutgoingPayload()
		if !ok {
			c.transientFailure(rec, "Nothing to write", radio.ErrNoPayload)
			return
		}
		c.radio.WriteValue(rec.Handle, c.cfg.Service, c.cfg.Characteristic, blob)
		return
	}
	c.radio.ReadValue(rec.Handle, c.cfg.Service, c.cfg.Characteristic)
}

func (c *Role) onValueRead(rec *peer.Record, ev radio.Event) {
	if rec.Phase != peer.PhaseExchanging {
		return
	}
	if ev.Err != nil {
		c.transientFailure(rec, "Characteristic read failed", ev.Err)
		return
	}
	p, err := payload.Decode(ev.Value)
	if err != nil {
		c.transientFailure(rec, "Peer returned malformed payload", err)
		return
	}

	rec.Payload = &p
	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"payload": p,
	}).Debug("Read peer payload")
	c.delegate.PayloadRead(rec.ID, p)
	c.disconnect(rec)
}

func (c *Role) onValueWritten(rec *peer.Record, ev radio.Event) {
	if rec.Phase != peer.PhaseExchanging {
		return
	}
	if code, ok := radio.ATTCode(ev.Err); ok && code == radio.ATTCodeKeepLinkOpen {
		c.logger.WithFields(logrus.Fields{
			"peer_id": rec.ID,
			"delay":   c.cfg.KeepAliveDelay,
		}).Debug("Peer asked to keep the link open")
		c.lingerThenDisconnect(rec)
		return
	}
	if ev.Err != nil {
		c.transientFailure(rec, "Characteristic write failed", ev.Err)
		return
	}
	c.disconnect(rec)
}

func (c *Role) lingerThenDisconnect(rec *peer.Record) {
	h := rec.Handle
	rec.ArmLinger(func(seq uint64) timing.CancelFunc {
		return c.timers.After(c.cfg.KeepAliveDelay, func() {
			c.queue.Async(func() {
				rec, ok := c.registry.ByHandle(h)
				if !ok || !rec.IsCurrentLinger(seq) {
					return
				}
				rec.CancelLinger()
				c.disconnect(rec)
			})
		})
	})
}

func (c *Role) transientFailure(rec *peer.Record, msg string, err error) {
	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": rec.Handle,
		"phase":   rec.Phase,
		"error":   err,
	}).Warn(msg)
	c.disconnect(rec)
}

// serviceNotFound expires the peer for the rest of the session.
func (c *Role) serviceNotFound(rec *peer.Record, err error) {
	c.logger.WithFields(logrus.Fields{
		"peer_id": rec.ID,
		"address": rec.Handle,
		"error":   err,
	}).Warn("Peer does not expose the exchange service")
	rec.Expire()
	c.incompatible[rec.Handle] = struct{}{}
	c.delegate.ServiceNotFound(rec.ID)
	c.disconnect(rec)
}

// disconnect closes the link and watches for the confirmation, or cleans the record
// up straight away when there is no link to close.
func (c *Role) disconnect(rec *peer.Record) {
	switch rec.Link {
	case peer.LinkConnecting, peer.LinkConnected:
		rec.CancelLinger()
		rec.Link = peer.LinkDisconnecting
		rec.Phase = peer.PhaseDisconnecting
		c.radio.CancelConnection(rec.Handle)
		c.armTimeout(rec)
	case peer.LinkDisconnecting:
	default:
		c.cleanup(rec)
	}
}

func (c *Role) onLinkClosed(rec *peer.Record, ev radio.Event) {
	fields := logrus.Fields{
		"peer_id": rec.ID,
		"address": rec.Handle,
		"event":   ev.Kind,
	}
	if ev.Err != nil {
		fields["error"] = ev.Err
		c.logger.WithFields(fields).Warn("Link closed with error")
	} else {
		c.logger.WithFields(fields).Debug("Link closed")
	}

	c.cleanup(rec)
	c.scheduleReadmission()
}

// cleanup returns the record to rest. Expired records are removed from the
// registry; others keep their payload for later duplicate checks.
func (c *Role) cleanup(rec *peer.Record) {
	rec.Detach()
	c.scheduler.Remove(rec.ID)
	if rec.Expired {
		c.registry.Remove(rec.Handle)
	}
}
