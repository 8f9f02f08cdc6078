// Package peripheral implements the responding side of the exchange: expose
// the payload characteristic and advertise the service while the radio is on.
package peripheral

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/dispatch"
	"github.com/srg/nearby/internal/radio"
)

// Delegate supplies the payload served to readers and learns about radio
// state. Methods are called on the work queue.
type Delegate interface {
	PeripheralStateChanged(state radio.State)
	OutgoingPayload() ([]byte, bool)
}

// Config names the exposed service and its read-only characteristic.
type Config struct {
	Service        ble.UUID
	Characteristic ble.UUID
}

// Role is the peripheral state machine: off until the radio powers on, then
// advertising.
type Role struct {
	cfg      Config
	radio    radio.Peripheral
	queue    *dispatch.Queue
	delegate Delegate
	logger   *logrus.Logger

	// owned by the work queue
	running     bool
	state       radio.State
	advertising bool
	served      int
	missed      int
}

func New(cfg Config, r radio.Peripheral, queue *dispatch.Queue, delegate Delegate, logger *logrus.Logger) *Role {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Role{
		cfg:      cfg,
		radio:    r,
		queue:    queue,
		delegate: delegate,
		logger:   logger,
		state:    radio.StateUnknown,
	}
	r.SetHandler(func(ev radio.Event) {
		p.queue.Async(func() { p.handleEvent(ev) })
	})
	return p
}

// Start powers up the radio; advertising begins once it reports powered on.
func (p *Role) Start() error {
	var err error
	if !p.queue.Sync(func() {
		p.running = true
		if err = p.radio.Start(); err == nil && p.state == radio.StatePoweredOn {
			p.advertise()
		}
	}) {
		return fmt.Errorf("peripheral: work queue closed")
	}
	if err != nil {
		return fmt.Errorf("peripheral: failed to start radio: %w", err)
	}
	p.logger.Info("Peripheral role started")
	return nil
}

// Stop withdraws the service and stops advertising.
func (p *Role) Stop() error {
	var err error
	p.queue.Sync(func() {
		if !p.running {
			return
		}
		p.running = false
		p.stopAdvertising()
		if rmErr := p.radio.RemoveServices(); rmErr != nil {
			p.logger.WithField("error", rmErr).Debug("Failed to remove services")
		}
		err = p.radio.Stop()
	})
	if err != nil {
		return fmt.Errorf("peripheral: failed to stop radio: %w", err)
	}
	p.logger.Info("Peripheral role stopped")
	return nil
}

// Advertising reports whether the service is currently advertised.
func (p *Role) Advertising() bool {
	var adv bool
	p.queue.Sync(func() { adv = p.advertising })
	return adv
}

// State returns the last radio state reported to the role.
func (p *Role) State() radio.State {
	state := radio.StateUnknown
	p.queue.Sync(func() { state = p.state })
	return state
}

// ReadStats returns how many read requests were answered with a payload and
// how many were refused because none was available.
func (p *Role) ReadStats() (served, missed int) {
	p.queue.Sync(func() { served, missed = p.served, p.missed })
	return served, missed
}

func (p *Role) handleEvent(ev radio.Event) {
	if ev.Kind != radio.EventStateChanged {
		p.logger.WithField("event", ev.Kind).Debug("Ignoring peripheral event")
		return
	}
	if ev.State == p.state {
		return
	}
	p.state = ev.State
	p.logger.WithField("state", ev.State).Info("Peripheral radio state changed")
	p.delegate.PeripheralStateChanged(ev.State)

	if ev.State != radio.StatePoweredOn {
		// the stack dropped the service and the advertisement with the power
		p.advertising = false
		return
	}
	if p.running {
		p.advertise()
	}
}

// advertise (re)configures the service and starts advertising it.
func (p *Role) advertise() {
	if err := p.radio.RemoveServices(); err != nil {
		p.logger.WithField("error", err).Debug("Failed to remove stale services")
	}
	if err := p.radio.SetService(p.cfg.Service, p.cfg.Characteristic, p.onRead); err != nil {
		p.logger.WithField("error", err).Warn("Failed to configure service")
		return
	}
	if err := p.radio.StartAdvertising(p.cfg.Service); err != nil {
		p.logger.WithField("error", err).Warn("Failed to start advertising")
		return
	}
	p.advertising = true
	p.logger.WithField("service", p.cfg.Service).Info("Advertising")
}

func (p *Role) stopAdvertising() {
	if !p.advertising {
		return
	}
	p.radio.StopAdvertising()
	p.advertising = false
}

// onRead answers a remote read. It is called by the radio stack and hops onto
// the work queue to consult the delegate.
func (p *Role) onRead() ([]byte, error) {
	var (
		blob []byte
		ok   bool
	)
	if !p.queue.Sync(func() {
		blob, ok = p.delegate.OutgoingPayload()
		if ok {
			p.served++
		} else {
			p.missed++
		}
	}) {
		return nil, radio.ErrNoPayload
	}
	if !ok {
		p.logger.Debug("Read request with no payload available")
		return nil, radio.ErrNoPayload
	}
	p.logger.WithField("size", len(blob)).Debug("Served payload to reader")
	return blob, nil
}
