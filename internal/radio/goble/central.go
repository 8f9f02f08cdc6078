package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/groutine"
	"github.com/srg/nearby/internal/radio"
)

// link is one dialled or dialling peer.
type link struct {
	handle radio.Handle
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	client         ble.Client
	service        *ble.Service
	characteristic *ble.Characteristic

	closeOnce sync.Once
}

func (l *link) snapshot() (ble.Client, *ble.Service, *ble.Characteristic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client, l.service, l.characteristic
}

// Central implements radio.Central on go-ble. Every command returns at once;
// the blocking go-ble call runs on its own goroutine and its outcome is
// delivered as an event.
type Central struct {
	emitter

	adapter *Adapter
	logger  *logrus.Logger

	mu         sync.Mutex
	device     ble.Device
	scanCancel context.CancelFunc

	links *hashmap.Map[radio.Handle, *link]
}

var _ radio.Central = (*Central)(nil)

func NewCentral(adapter *Adapter, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{
		adapter: adapter,
		logger:  logger,
		links:   hashmap.New[radio.Handle, *link](),
	}
}

// Start opens the platform device and reports the resulting state. go-ble has
// no state callbacks, so a device that opens is reported powered on.
func (c *Central) Start() error {
	d, err := c.adapter.acquire()
	if err != nil {
		return c.startState(err)
	}
	c.mu.Lock()
	c.device = d
	c.mu.Unlock()
	c.emit(radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOn})
	return nil
}

func (c *Central) Stop() error {
	c.StopScan()
	c.links.Range(func(h radio.Handle, _ *link) bool {
		c.CancelConnection(h)
		return true
	})

	c.mu.Lock()
	started := c.device != nil
	c.device = nil
	c.mu.Unlock()
	if !started {
		return nil
	}
	return c.adapter.release()
}

func (c *Central) dev() ble.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// StartScan scans until StopScan, reporting advertisements that carry the
// service in their service list, overflow area or service data.
func (c *Central) StartScan(service ble.UUID, allowDuplicates bool) error {
	c.mu.Lock()
	d := c.device
	if d == nil {
		c.mu.Unlock()
		return radio.ErrBluetoothOff
	}
	if c.scanCancel != nil {
		c.scanCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.scanCancel = cancel
	c.mu.Unlock()

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := d.Scan(ctx, allowDuplicates, func(adv ble.Advertisement) {
			if ev, ok := discoveredEvent(adv, service); ok {
				c.emit(ev)
			}
		})
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		c.logger.WithField("error", err).Warn("Scan stopped")
		if errors.Is(err, radio.ErrBluetoothOff) {
			c.emit(radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOff})
		}
	})
	return nil
}

func (c *Central) StopScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
}

// discoveredEvent turns an advertisement into a discovery event when it
// belongs to service.
func discoveredEvent(adv ble.Advertisement, service ble.UUID) (radio.Event, bool) {
	var data []byte
	matched := false
	for _, sd := range adv.ServiceData() {
		if sd.UUID.Equal(service) {
			data = sd.Data
			matched = true
			break
		}
	}
	if !matched {
		matched = containsUUID(adv.Services(), service) || containsUUID(adv.OverflowService(), service)
	}
	if !matched {
		return radio.Event{}, false
	}

	return radio.Event{
		Kind:        radio.EventDiscovered,
		Handle:      radio.Handle(adv.Addr().String()),
		ServiceData: data,
		RSSI:        adv.RSSI(),
	}, true
}

func containsUUID(uuids []ble.UUID, u ble.UUID) bool {
	for _, v := range uuids {
		if v.Equal(u) {
			return true
		}
	}
	return false
}

// Connect dials h. It has no deadline of its own; CancelConnection aborts it.
func (c *Central) Connect(h radio.Handle) {
	d := c.dev()
	if d == nil {
		c.emit(radio.Event{Kind: radio.EventFailedToConnect, Handle: h, Err: radio.ErrBluetoothOff})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{handle: h, ctx: ctx, cancel: cancel}
	if _, loaded := c.links.GetOrInsert(h, l); loaded {
		cancel()
		c.logger.WithField("address", h).Debug("Connect ignored, link already exists")
		return
	}

	groutine.Go(ctx, "ble-dial", func(ctx context.Context) {
		client, err := d.Dial(ctx, ble.NewAddr(string(h)))
		if err != nil {
			c.links.Del(h)
			cancel()
			c.emit(radio.Event{Kind: radio.EventFailedToConnect, Handle: h, Err: NormalizeError(err)})
			return
		}
		if ctx.Err() != nil {
			// cancelled while dialling
			_ = client.CancelConnection()
			c.links.Del(h)
			c.emit(radio.Event{Kind: radio.EventFailedToConnect, Handle: h, Err: ctx.Err()})
			return
		}

		l.mu.Lock()
		l.client = client
		l.mu.Unlock()
		c.emit(radio.Event{Kind: radio.EventConnected, Handle: h})
		c.watch(l, client)
	})
}

// watch reports the link closed exactly once, either when the peer goes away
// or when we cancel it.
func (c *Central) watch(l *link, client ble.Client) {
	var err error
	select {
	case <-client.Disconnected():
	case <-l.ctx.Done():
		err = NormalizeError(client.CancelConnection())
	}
	c.closeLink(l, err)
}

func (c *Central) closeLink(l *link, err error) {
	l.closeOnce.Do(func() {
		l.cancel()
		c.links.Del(l.handle)
		c.emit(radio.Event{Kind: radio.EventDisconnected, Handle: l.handle, Err: err})
	})
}

func (c *Central) CancelConnection(h radio.Handle) {
	l, ok := c.links.Get(h)
	if !ok {
		c.logger.WithField("address", h).Debug("Cancel ignored, no link")
		return
	}
	l.cancel()
}

// run executes op against an established link on its own goroutine and emits
// the event it returns. A missing link yields an event carrying
// radio.ErrNotConnected.
func (c *Central) run(h radio.Handle, kind radio.EventKind, op func(l *link, client ble.Client) radio.Event) {
	l, ok := c.links.Get(h)
	if ok {
		if client, _, _ := l.snapshot(); client != nil {
			groutine.Go(l.ctx, "ble-"+kind.String(), func(context.Context) {
				ev := op(l, client)
				ev.Kind = kind
				ev.Handle = h
				c.emit(ev)
			})
			return
		}
	}
	c.emit(radio.Event{Kind: kind, Handle: h, Err: radio.ErrNotConnected})
}

func (c *Central) DiscoverServices(h radio.Handle, services []ble.UUID) {
	c.run(h, radio.EventServicesDiscovered, func(l *link, client ble.Client) radio.Event {
		svc, err := c.discoverService(l, client, services)
		return radio.Event{Found: svc != nil, Err: err}
	})
}

func (c *Central) discoverService(l *link, client ble.Client, services []ble.UUID) (*ble.Service, error) {
	found, err := client.DiscoverServices(services)
	if err != nil {
		return nil, NormalizeError(err)
	}
	for _, svc := range found {
		if len(services) > 0 && svc.UUID.Equal(services[0]) {
			l.mu.Lock()
			l.service = svc
			l.mu.Unlock()
			return svc, nil
		}
	}
	return nil, nil
}

func (c *Central) DiscoverCharacteristics(h radio.Handle, service ble.UUID, characteristics []ble.UUID) {
	c.run(h, radio.EventCharacteristicsDiscovered, func(l *link, client ble.Client) radio.Event {
		_, svc, _ := l.snapshot()
		if svc == nil || !svc.UUID.Equal(service) {
			var err error
			if svc, err = c.discoverService(l, client, []ble.UUID{service}); err != nil || svc == nil {
				return radio.Event{Err: err}
			}
		}
		found, err := client.DiscoverCharacteristics(characteristics, svc)
		if err != nil {
			return radio.Event{Err: NormalizeError(err)}
		}
		for _, ch := range found {
			if len(characteristics) > 0 && ch.UUID.Equal(characteristics[0]) {
				l.mu.Lock()
				l.characteristic = ch
				l.mu.Unlock()
				return radio.Event{Found: true}
			}
		}
		return radio.Event{}
	})
}

func (c *Central) ReadValue(h radio.Handle, _, characteristic ble.UUID) {
	c.run(h, radio.EventValueRead, func(l *link, client ble.Client) radio.Event {
		ch, err := discovered(l, characteristic)
		if err != nil {
			return radio.Event{Err: err}
		}
		value, err := client.ReadCharacteristic(ch)
		return radio.Event{Value: value, Err: NormalizeError(err)}
	})
}

func (c *Central) WriteValue(h radio.Handle, _, characteristic ble.UUID, value []byte) {
	c.run(h, radio.EventValueWritten, func(l *link, client ble.Client) radio.Event {
		ch, err := discovered(l, characteristic)
		if err != nil {
			return radio.Event{Err: err}
		}
		return radio.Event{Err: NormalizeError(client.WriteCharacteristic(ch, value, false))}
	})
}

func discovered(l *link, characteristic ble.UUID) (*ble.Characteristic, error) {
	_, _, ch := l.snapshot()
	if ch == nil || !ch.UUID.Equal(characteristic) {
		return nil, &radio.NotFoundError{Resource: "characteristic", UUIDs: []string{characteristic.String()}}
	}
	return ch, nil
}
