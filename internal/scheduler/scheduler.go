// Package scheduler turns "please connect to X" requests into a deduplicated,
// rate-limited sequence of connection attempts, one at a time.
//
// The scheduler runs on its own timers, independently of the work queue that
// owns peer state, so all of its methods are safe for concurrent use.
package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/timing"
)

// ConnectFunc issues the connection attempt for id. It must call done exactly
// once, when the attempt was handed to the radio stack. done may be called
// synchronously or later from any goroutine.
type ConnectFunc func(id uuid.UUID, done func())

// State of the drain loop.
type State int

const (
	// StateIdle: no timer armed, nothing in flight.
	StateIdle State = iota
	// StateDraining: a drain tick is armed.
	StateDraining
	// StateInFlight: an attempt was handed to ConnectFunc and has not called done yet.
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateDraining:
		return "draining"
	case StateInFlight:
		return "in_flight"
	default:
		return "idle"
	}
}

type entry struct {
	id         uuid.UUID
	enqueuedAt time.Time
}

// Scheduler serialises connection attempts with a minimum spacing between the
// completion of one attempt and the start of the next.
type Scheduler struct {
	timers   timing.Scheduler
	interval time.Duration
	connect  ConnectFunc
	logger   *logrus.Logger

	mu            sync.Mutex
	pending       []entry
	armed         bool
	tick          timing.CancelFunc
	tickSeq       uint64
	busy          bool
	attemptSeq    uint64
	attemptGen    uint64
	gen           uint64
	lastAttemptAt time.Time
}

// New creates an idle scheduler.
func New(timers timing.Scheduler, interval time.Duration, connect ConnectFunc, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		timers:   timers,
		interval: interval,
		connect:  connect,
		logger:   logger,
	}
}

// Enqueue asks for a connection attempt to id. Enqueuing an id already
// pending is a no-op.
func (s *Scheduler) Enqueue(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) >= 0 {
		return
	}
	s.pending = append(s.pending, entry{id: id, enqueuedAt: s.timers.Now()})

	s.logger.WithFields(logrus.Fields{
		"peer_id": id,
		"pending": len(s.pending),
	}).Debug("Connection attempt queued")

	if !s.armed && !s.busy {
		s.armLocked(s.firstDelayLocked())
	}
}

// Remove drops id from the pending queue. An attempt already in flight is not
// affected.
func (s *Scheduler) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
	}
	if len(s.pending) == 0 {
		s.disarmLocked()
	}
}

// RemoveAll clears the queue and cancels the drain timer. An attempt in flight
// still completes, but no longer removes anything from the queue.
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.gen++
	s.disarmLocked()
}

// Pending returns the queued ids in drain order.
func (s *Scheduler) Pending() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, len(s.pending))
	for i, e := range s.pending {
		ids[i] = e.id
	}
	return ids
}

// State reports the drain loop state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.busy:
		return StateInFlight
	case s.armed:
		return StateDraining
	default:
		return StateIdle
	}
}

// LastAttemptAt is when the last attempt reported done, or zero before any.
func (s *Scheduler) LastAttemptAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAttemptAt
}

func (s *Scheduler) indexLocked(id uuid.UUID) int {
	for i, e := range s.pending {
		if e.id == id {
			return i
		}
	}
	return -1
}

// firstDelayLocked keeps the first attempt after an idle period at least one
// interval after the previous attempt.
func (s *Scheduler) firstDelayLocked() time.Duration {
	if s.lastAttemptAt.IsZero() {
		return 0
	}
	d := s.lastAttemptAt.Add(s.interval).Sub(s.timers.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) armLocked(d time.Duration) {
	s.armed = true
	s.tickSeq++
	seq := s.tickSeq
	s.tick = s.timers.After(d, func() { s.drainOne(seq) })
}

func (s *Scheduler) disarmLocked() {
	if s.tick != nil {
		s.tick()
		s.tick = nil
	}
	s.armed = false
	s.tickSeq++
}

func (s *Scheduler) drainOne(seq uint64) {
	s.mu.Lock()
	if seq != s.tickSeq || !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.tick = nil
	if s.busy || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	head := s.pending[0]
	s.busy = true
	s.attemptSeq++
	attempt := s.attemptSeq
	s.attemptGen = s.gen
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"peer_id": head.id,
		"waited":  s.timers.Now().Sub(head.enqueuedAt),
	}).Debug("Issuing connection attempt")

	var once sync.Once
	s.connect(head.id, func() {
		once.Do(func() { s.complete(attempt, head.id) })
	})
}

func (s *Scheduler) complete(attempt uint64, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy || attempt != s.attemptSeq {
		return
	}
	s.busy = false
	s.lastAttemptAt = s.timers.Now()

	if s.attemptGen == s.gen {
		if i := s.indexLocked(id); i >= 0 {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
		}
	}

	if len(s.pending) > 0 && !s.armed {
		s.armLocked(s.interval)
	}
}
