// Package goble drives the radio boundary with github.com/go-ble/ble. One
// Adapter owns the platform device; the Central and Peripheral built on it
// translate go-ble's blocking calls into radio.Events.
package goble

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/examples/lib/dev"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/radio"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests).
//
//nolint:revive // exported for test overrides
var DeviceFactory = func() (ble.Device, error) {
	return dev.NewDevice("default")
}

// Adapter shares one ble.Device between the central and peripheral side. The
// device is created by the first user and stopped when the last one leaves.
type Adapter struct {
	logger *logrus.Logger

	mu     sync.Mutex
	device ble.Device
	users  int
}

func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) acquire() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		d, err := DeviceFactory()
		if err != nil {
			return nil, NormalizeError(err)
		}
		a.device = d
		a.logger.Debug("BLE device created")
	}
	a.users++
	return a.device, nil
}

func (a *Adapter) release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.users == 0 {
		return nil
	}
	a.users--
	if a.users > 0 {
		return nil
	}
	d := a.device
	a.device = nil
	if err := d.Stop(); err != nil {
		return fmt.Errorf("failed to stop BLE device: %w", NormalizeError(err))
	}
	a.logger.Debug("BLE device stopped")
	return nil
}

// emitter serializes access to the event handler installed by a role.
type emitter struct {
	mu      sync.RWMutex
	handler func(radio.Event)
}

func (e *emitter) SetHandler(h func(radio.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *emitter) emit(ev radio.Event) {
	e.mu.RLock()
	h := e.handler
	e.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

// startState reports the state implied by a device creation error. Errors
// that do not map to a known state are returned to the caller.
func (e *emitter) startState(err error) error {
	state := radio.StateFromError(err)
	if state == radio.StateUnknown {
		return err
	}
	e.emit(radio.Event{Kind: radio.EventStateChanged, State: state})
	return nil
}
