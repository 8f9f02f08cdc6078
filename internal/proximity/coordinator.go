// Package proximity is the public facade of the subsystem. A Coordinator runs
// the central and peripheral roles side by side, joins payloads with signal
// strength sightings and publishes calibrated proximity readings.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/central"
	"github.com/srg/nearby/internal/dedup"
	"github.com/srg/nearby/internal/dispatch"
	"github.com/srg/nearby/internal/expiring"
	"github.com/srg/nearby/internal/payload"
	"github.com/srg/nearby/internal/peer"
	"github.com/srg/nearby/internal/peripheral"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/ringchan"
	"github.com/srg/nearby/internal/timing"
	"go.uber.org/multierr"
)

var (
	ErrAlreadyStarted = errors.New("coordinator already started")
	ErrNotStarted     = errors.New("coordinator not started")
	ErrClosed         = errors.New("coordinator closed")
)

// IdentityProvider returns this device's current identity blob, or false when
// none is available yet.
type IdentityProvider func() ([]byte, bool)

type sighting struct {
	rssi int
	at   time.Time
}

// Coordinator composes the two roles with the payload and sighting caches and
// the duplicate connection filter.
type Coordinator struct {
	cfg    Config
	logger *logrus.Logger
	timers timing.Scheduler
	queue  *dispatch.Queue
	cancel context.CancelFunc

	central    *central.Role
	peripheral *peripheral.Role
	events     *ringchan.RingChannel[Event]

	txCompensation atomic.Int32
	rxCompensation atomic.Int32

	// owned by the work queue
	filter    *dedup.Filter
	payloads  *expiring.Cache[uuid.UUID, payload.Payload]
	sightings *expiring.Cache[uuid.UUID, sighting]
	provider  IdentityProvider

	mu      sync.Mutex
	started bool
	closed  bool
	evict   timing.CancelFunc
}

// New validates cfg and wires both roles to their radios. A nil timers uses the
// wall clock.
func New(cfg Config, c radio.Central, p radio.Peripheral, timers timing.Scheduler, logger *logrus.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proximity config: %w", err)
	}
	if c == nil || p == nil {
		return nil, errors.New("both central and peripheral radios are required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if timers == nil {
		timers = timing.New(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	co := &Coordinator{
		cfg:       cfg,
		logger:    logger,
		timers:    timers,
		queue:     dispatch.NewQueue("proximity", logger),
		cancel:    cancel,
		events:    ringchan.New[Event](cfg.EventBuffer),
		filter:    dedup.NewFilter(cfg.MinReconnectionInterval, payload.IdentityKey, timers.Now),
		payloads:  expiring.New[uuid.UUID, payload.Payload](cfg.CacheExpiration, timers.Now),
		sightings: expiring.New[uuid.UUID, sighting](cfg.CacheExpiration, timers.Now),
	}
	co.txCompensation.Store(int32(cfg.TxCompensation))
	co.rxCompensation.Store(int32(cfg.RxCompensation))

	co.central = central.New(cfg.centralConfig(), c, co.queue, timers, co, logger)
	co.peripheral = peripheral.New(cfg.peripheralConfig(), p, co.queue, co, logger)
	co.queue.Start(ctx)
	return co, nil
}

// Start launches both roles. provider is consulted every time our payload is
// written to a peer or read by one.
func (co *Coordinator) Start(provider IdentityProvider) error {
	co.mu.Lock()
	defer co.mu.Unlock()
	switch {
	case co.closed:
		return ErrClosed
	case co.started:
		return ErrAlreadyStarted
	}

	co.queue.Sync(func() { co.provider = provider })

	if err := co.central.Start(); err != nil {
		return err
	}
	if err := co.peripheral.Start(); err != nil {
		return multierr.Append(err, co.central.Stop())
	}

	co.evict = co.timers.Every(co.cfg.evictionPeriod(), func() {
		co.queue.Async(co.removeExpired)
	})
	co.started = true
	co.logger.WithFields(logrus.Fields{
		"service":        co.cfg.Service,
		"characteristic": co.cfg.Characteristic,
		"cache_ttl":      co.cfg.CacheExpiration,
	}).Info("Proximity coordinator started")
	return nil
}

// Stop stops both roles and the cache eviction timer and clears every cache.
func (co *Coordinator) Stop() error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if !co.started {
		return ErrNotStarted
	}
	return co.stopLocked()
}

func (co *Coordinator) stopLocked() error {
	co.started = false
	if co.evict != nil {
		co.evict()
		co.evict = nil
	}

	err := multierr.Combine(co.central.Stop(), co.peripheral.Stop())
	co.queue.Sync(func() {
		co.payloads.RemoveAll()
		co.sightings.RemoveAll()
		co.filter.RemoveAll()
		co.provider = nil
	})
	co.logger.Info("Proximity coordinator stopped")
	return err
}

// Close stops the coordinator if needed, shuts the work queue down and closes
// the event channel. The coordinator cannot be restarted afterwards.
func (co *Coordinator) Close() error {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.closed {
		return nil
	}
	var err error
	if co.started {
		err = co.stopLocked()
	}
	co.closed = true
	co.queue.Close()
	co.cancel()
	co.events.Close()
	return err
}

// Events delivers proximity readings and notifications. When the consumer
// lags, the oldest undelivered events are dropped.
func (co *Coordinator) Events() <-chan Event {
	return co.events.C()
}

// DroppedEvents counts events overwritten before they were consumed.
func (co *Coordinator) DroppedEvents() int64 {
	return co.events.Metrics().Overwritten
}

// SetTxCompensation updates the gain advertised with our payload and used for
// peer-reported readings.
func (co *Coordinator) SetTxCompensation(db int8) {
	co.txCompensation.Store(int32(db))
}

// SetRxCompensation updates the receiver gain used for local readings.
func (co *Coordinator) SetRxCompensation(db int8) {
	co.rxCompensation.Store(int32(db))
}

func (co *Coordinator) TxCompensation() int8 { return int8(co.txCompensation.Load()) }
func (co *Coordinator) RxCompensation() int8 { return int8(co.rxCompensation.Load()) }

// Peers returns the peers tracked by the central role.
func (co *Coordinator) Peers() []peer.Snapshot {
	return co.central.Peers()
}

// State returns the central radio state.
func (co *Coordinator) State() radio.State {
	return co.central.State()
}

// Advertising reports whether the peripheral role is advertising.
func (co *Coordinator) Advertising() bool {
	return co.peripheral.Advertising()
}

func (co *Coordinator) removeExpired() {
	p := co.payloads.RemoveExpired()
	s := co.sightings.RemoveExpired()
	f := co.filter.RemoveExpired()
	if p+s+f > 0 {
		co.logger.WithFields(logrus.Fields{
			"payloads":   p,
			"sightings":  s,
			"identities": f,
		}).Debug("Evicted expired cache entries")
	}
}

func (co *Coordinator) publish(ev Event) {
	if dropped := co.events.Send(ev); dropped {
		co.logger.Debug("Event consumer is lagging, dropped oldest event")
	}
}

// join emits a reading when both a payload and a usable sighting are cached
// for id.
func (co *Coordinator) join(id uuid.UUID) {
	p, ok := co.payloads.Get(id)
	if !ok {
		return
	}
	s, ok := co.sightings.Get(id)
	if !ok {
		return
	}
	calibrated, ok := Calibrate(s.rssi, SourceLocal, p.TxPower, co.RxCompensation(), co.TxCompensation())
	if !ok {
		return
	}
	co.publish(ProximityUpdate{
		PeerID:     id,
		Payload:    p,
		Timestamp:  s.at,
		Calibrated: calibrated,
		Raw:        s.rssi,
		TxPower:    p.TxPower,
	})
}

// The methods below implement central.Delegate and peripheral.Delegate. They
// run on the work queue.

func (co *Coordinator) CentralStateChanged(state radio.State) {
	co.publish(StateChanged{State: state, Timestamp: co.timers.Now()})
}

func (co *Coordinator) PeripheralStateChanged(state radio.State) {
	co.logger.WithField("state", state).Debug("Peripheral state forwarded")
}

func (co *Coordinator) PeerDiscovered(id uuid.UUID, advertised *payload.Payload, rssi int) {
	if advertised != nil {
		co.payloads.Set(id, *advertised)
	}
	// A sample without RSSI yields no reading, even when an older sighting
	// is cached.
	if rssi == radio.RSSIUnavailable {
		return
	}
	co.sightings.Set(id, sighting{rssi: rssi, at: co.timers.Now()})
	co.join(id)
}

func (co *Coordinator) PayloadRead(id uuid.UUID, p payload.Payload) {
	co.payloads.Set(id, p)
	co.filter.NoteIdentitySeen(p)
	co.join(id)
}

func (co *Coordinator) ServiceNotFound(id uuid.UUID) {
	co.payloads.Remove(id)
	co.sightings.Remove(id)
	co.publish(ServiceNotFound{PeerID: id, Timestamp: co.timers.Now()})
}

func (co *Coordinator) ShouldConnect(candidate *payload.Payload) bool {
	return co.filter.ShouldConnect(candidate)
}

// OutgoingPayload encodes our identity with the current tx compensation.
func (co *Coordinator) OutgoingPayload() ([]byte, bool) {
	if co.provider == nil {
		return nil, false
	}
	identity, ok := co.provider()
	if !ok {
		return nil, false
	}
	p, err := payload.New(identity, co.TxCompensation())
	if err != nil {
		co.logger.WithField("error", err).Warn("Identity provider returned an unusable identity")
		return nil, false
	}
	return p.Encode(), true
}
