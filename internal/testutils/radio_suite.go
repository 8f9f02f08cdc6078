package testutils

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/srg/nearby/internal/dispatch"
	"github.com/srg/nearby/internal/timing"
	"github.com/stretchr/testify/suite"
)

// RadioSuite is a testify suite with fake radios, a mock clock and a running
// work queue. Embed it and call RadioSuite.SetupTest from SetupTest overrides.
//
//	type CentralSuite struct {
//	    testutils.RadioSuite
//	}
//
//	func (s *CentralSuite) TestScan() {
//	    s.Central.Emit(testutils.PoweredOn())
//	    s.Flush()
//	}
type RadioSuite struct {
	suite.Suite

	Logger     *logrus.Logger
	Clock      *clock.Mock
	Timers     *timing.ClockScheduler
	Queue      *dispatch.Queue
	Central    *FakeCentral
	Peripheral *FakePeripheral

	// WaitTimeout bounds Eventually checks.
	WaitTimeout time.Duration

	cancel context.CancelFunc
}

func (s *RadioSuite) SetupTest() {
	s.Logger = NewTestLogger()
	s.Clock = clock.NewMock()
	s.Clock.Set(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	s.Timers = timing.New(s.Clock)
	s.Central = NewFakeCentral()
	s.Peripheral = NewFakePeripheral()
	if s.WaitTimeout == 0 {
		s.WaitTimeout = 2 * time.Second
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.Queue = dispatch.NewQueue("test", s.Logger)
	s.Queue.Start(ctx)
}

func (s *RadioSuite) TearDownTest() {
	s.Queue.Close()
	if s.cancel != nil {
		s.cancel()
	}
}

// Flush waits until every task queued so far has run.
func (s *RadioSuite) Flush() {
	s.Require().True(s.Queue.Sync(func() {}), "work queue closed")
}

// Advance moves the mock clock forward in small steps, flushing the work
// queue after each one so timer callbacks and the tasks they post settle.
func (s *RadioSuite) Advance(d time.Duration) {
	const step = 100 * time.Millisecond
	for d > 0 {
		n := step
		if d < n {
			n = d
		}
		s.Clock.Add(n)
		// AfterFunc callbacks run on their own goroutines
		time.Sleep(time.Millisecond)
		s.Flush()
		d -= n
	}
}

// WaitFor polls cond until it holds or WaitTimeout elapses, flushing the work
// queue between polls.
func (s *RadioSuite) WaitFor(cond func() bool, msgAndArgs ...interface{}) {
	s.Require().Eventually(func() bool {
		s.Flush()
		return cond()
	}, s.WaitTimeout, 5*time.Millisecond, msgAndArgs...)
}

// NewTestLogger returns a debug logger that writes nowhere unless the
// NEARBY_TEST_LOG environment variable is set.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	if os.Getenv("NEARBY_TEST_LOG") == "" {
		logger.SetOutput(io.Discard)
	}
	return logger
}
