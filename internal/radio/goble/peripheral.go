package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/groutine"
	"github.com/srg/nearby/internal/radio"
)

// attUnlikelyError is the ATT status returned to a reader when no payload can
// be served.
const attUnlikelyError ble.ATTError = 0x0E

// Peripheral implements radio.Peripheral on go-ble's GATT server.
type Peripheral struct {
	emitter

	adapter *Adapter
	logger  *logrus.Logger
	name    string

	mu        sync.Mutex
	device    ble.Device
	advCancel context.CancelFunc
}

var _ radio.Peripheral = (*Peripheral)(nil)

// NewPeripheral creates a peripheral advertising under the local name.
func NewPeripheral(adapter *Adapter, name string, logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{adapter: adapter, name: name, logger: logger}
}

func (p *Peripheral) Start() error {
	d, err := p.adapter.acquire()
	if err != nil {
		return p.startState(err)
	}
	p.mu.Lock()
	p.device = d
	p.mu.Unlock()
	p.emit(radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOn})
	return nil
}

func (p *Peripheral) Stop() error {
	p.StopAdvertising()
	p.mu.Lock()
	started := p.device != nil
	p.device = nil
	p.mu.Unlock()
	if !started {
		return nil
	}
	return p.adapter.release()
}

func (p *Peripheral) dev() (ble.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil, radio.ErrBluetoothOff
	}
	return p.device, nil
}

// SetService publishes a service with one read-only characteristic answered
// by onRead.
func (p *Peripheral) SetService(service, characteristic ble.UUID, onRead radio.ReadHandler) error {
	d, err := p.dev()
	if err != nil {
		return err
	}
	svc := ble.NewService(service)
	svc.NewCharacteristic(characteristic).HandleRead(ble.ReadHandlerFunc(func(_ ble.Request, rsp ble.ResponseWriter) {
		respond(rsp, onRead, p.logger)
	}))
	if err := d.AddService(svc); err != nil {
		return NormalizeError(err)
	}
	return nil
}

func (p *Peripheral) RemoveServices() error {
	d, err := p.dev()
	if err != nil {
		return err
	}
	return NormalizeError(d.RemoveAllServices())
}

// StartAdvertising advertises the local name and service until
// StopAdvertising.
func (p *Peripheral) StartAdvertising(service ble.UUID) error {
	p.mu.Lock()
	d := p.device
	if d == nil {
		p.mu.Unlock()
		return radio.ErrBluetoothOff
	}
	if p.advCancel != nil {
		p.advCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.advCancel = cancel
	p.mu.Unlock()

	groutine.Go(ctx, "ble-advertise", func(ctx context.Context) {
		err := d.AdvertiseNameAndServices(ctx, p.name, service)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		p.logger.WithField("error", err).Warn("Advertising stopped")
		if errors.Is(err, radio.ErrBluetoothOff) {
			p.emit(radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOff})
		}
	})
	return nil
}

func (p *Peripheral) StopAdvertising() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.advCancel != nil {
		p.advCancel()
		p.advCancel = nil
	}
}

// statusWriter is the part of ble.ResponseWriter a read response needs.
type statusWriter interface {
	Write(b []byte) (int, error)
	SetStatus(status ble.ATTError)
}

func respond(w statusWriter, onRead radio.ReadHandler, logger *logrus.Logger) {
	blob, err := onRead()
	if err != nil {
		logger.WithField("error", err).Debug("Refusing read request")
		w.SetStatus(attUnlikelyError)
		return
	}
	if _, err := w.Write(blob); err != nil {
		logger.WithField("error", err).Warn("Failed to write read response")
	}
}
