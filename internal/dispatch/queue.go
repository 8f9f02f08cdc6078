// Package dispatch implements the serial work queue that owns all radio state.
//
// Every radio callback and every radio command is funnelled through a single
// Queue, so registry and cache mutation never needs a lock. Tasks run one at a
// time, in submission order, on one named goroutine.
package dispatch

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/groutine"
)

// Queue is an unbounded FIFO of tasks executed serially.
type Queue struct {
	name   string
	logger *logrus.Logger

	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	closed  bool
	running bool
	done    chan struct{}
}

// NewQueue creates a stopped queue. Tasks submitted before Start are kept.
func NewQueue(name string, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine. It is a no-op when already running.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running || q.closed {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	groutine.Go(ctx, "dispatch-"+q.name, func(context.Context) {
		defer close(q.done)
		q.loop()
	})
}

func (q *Queue) loop() {
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		if len(q.tasks) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"queue": q.name,
				"panic": r,
			}).Error("Task panicked on work queue")
		}
	}()
	task()
}

// Async enqueues fn and returns immediately. Tasks submitted after Close are
// dropped and Async reports false.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.WithField("queue", q.name).Debug("Dropping task submitted to closed queue")
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync enqueues fn and waits until it ran. It must not be called from a task
// already running on the same queue. Returns false if the queue is closed.
func (q *Queue) Sync(fn func()) bool {
	ran := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, func() {
		defer close(ran)
		fn()
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-ran
	return true
}

// Close stops accepting tasks, lets the worker drain what is queued and waits
// for it to exit. Close on a queue that was never started discards its tasks.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	running := q.running
	if !running {
		q.tasks = nil
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	if running {
		<-q.done
	}
}
