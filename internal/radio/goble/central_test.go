package goble

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/radio"
	"github.com/srg/nearby/internal/testutils"
	"github.com/srg/nearby/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var (
	testService        = ble.MustParse("FD68")
	testCharacteristic = ble.MustParse("8c8494e3-bed8-4a11-9b2f-9bd7a0ab5d69")
)

// eventLog collects emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []radio.Event
}

func (l *eventLog) add(ev radio.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) of(kind radio.EventKind) []radio.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []radio.Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type GobleSuite struct {
	suite.Suite

	originalFactory func() (ble.Device, error)
	device          *mocks.MockDevice
	adapter         *Adapter
	log             *eventLog
}

func (s *GobleSuite) SetupTest() {
	s.originalFactory = DeviceFactory
	s.device = &mocks.MockDevice{}
	DeviceFactory = func() (ble.Device, error) { return s.device, nil }
	s.adapter = NewAdapter(testutils.NewTestLogger())
	s.log = &eventLog{}
}

func (s *GobleSuite) TearDownTest() {
	DeviceFactory = s.originalFactory
}

func (s *GobleSuite) waitEvents(kind radio.EventKind, n int) []radio.Event {
	s.Require().Eventually(func() bool {
		return len(s.log.of(kind)) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d %s events", n, kind)
	return s.log.of(kind)
}

type CentralSuite struct {
	GobleSuite
	central *Central
}

func TestCentralSuite(t *testing.T) {
	suite.Run(t, new(CentralSuite))
}

func (s *CentralSuite) SetupTest() {
	s.GobleSuite.SetupTest()
	s.central = NewCentral(s.adapter, testutils.NewTestLogger())
	s.central.SetHandler(s.log.add)
	s.Require().NoError(s.central.Start())
}

func (s *CentralSuite) TearDownTest() {
	s.device.On("Stop").Return(nil).Maybe()
	s.Require().NoError(s.central.Stop())
	s.GobleSuite.TearDownTest()
}

func (s *CentralSuite) TestStartReportsPoweredOn() {
	states := s.log.of(radio.EventStateChanged)
	s.Require().Len(states, 1)
	s.Equal(radio.StatePoweredOn, states[0].State)
}

func (s *CentralSuite) TestStartReportsPoweredOff() {
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}
	c := NewCentral(NewAdapter(nil), testutils.NewTestLogger())
	log := &eventLog{}
	c.SetHandler(log.add)

	s.Require().NoError(c.Start(), "a powered off radio MUST be reported as state, not error")
	states := log.of(radio.EventStateChanged)
	s.Require().Len(states, 1)
	s.Equal(radio.StatePoweredOff, states[0].State)
}

func (s *CentralSuite) TestStartFailsOnUnknownError() {
	DeviceFactory = func() (ble.Device, error) { return nil, errors.New("boom") }
	c := NewCentral(NewAdapter(nil), testutils.NewTestLogger())
	s.Error(c.Start())
}

func (s *CentralSuite) TestScanFiltersByService() {
	payload := []byte{1, 2, 3}
	testutils.ScanDelivering(s.device,
		testutils.NewAdvertisementBuilder().WithAddress("aa:aa").WithRSSI(-60).
			WithServiceData("FD68", payload).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("bb:bb").WithRSSI(-70).
			WithServices("FD68").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("cc:cc").WithRSSI(-80).
			WithOverflowServices("FD68").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("dd:dd").WithRSSI(-50).
			WithServices("180D").Build(),
	)

	s.Require().NoError(s.central.StartScan(testService, true))
	found := s.waitEvents(radio.EventDiscovered, 3)
	s.central.StopScan()

	s.Require().Len(found, 3, "unrelated advertisements MUST be dropped")
	s.Equal(radio.Handle("aa:aa"), found[0].Handle)
	s.Equal(payload, found[0].ServiceData)
	s.Equal(-60, found[0].RSSI)
	s.Nil(found[1].ServiceData)
	s.Equal(radio.Handle("cc:cc"), found[2].Handle)
	s.device.AssertCalled(s.T(), "Scan", mock.Anything, true, mock.Anything)
}

func (s *CentralSuite) TestExchangeOverLink() {
	client := &mocks.MockClient{}
	disconnected := make(chan struct{})
	svc := ble.NewService(testService)
	char := svc.NewCharacteristic(testCharacteristic)

	s.device.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	client.On("Disconnected").Return(disconnected)
	client.On("DiscoverServices", []ble.UUID{testService}).Return([]*ble.Service{svc}, nil)
	client.On("DiscoverCharacteristics", []ble.UUID{testCharacteristic}, svc).Return([]*ble.Characteristic{char}, nil)
	client.On("ReadCharacteristic", char).Return([]byte{9, 9}, nil)
	client.On("WriteCharacteristic", char, []byte{7}, false).Return(radio.ATTCodeKeepLinkOpen)
	client.On("CancelConnection").Run(func(mock.Arguments) { close(disconnected) }).Return(nil)

	s.central.Connect("aa:aa")
	s.waitEvents(radio.EventConnected, 1)

	s.central.DiscoverServices("aa:aa", []ble.UUID{testService})
	ev := s.waitEvents(radio.EventServicesDiscovered, 1)[0]
	s.True(ev.Found)
	s.NoError(ev.Err)

	s.central.DiscoverCharacteristics("aa:aa", testService, []ble.UUID{testCharacteristic})
	ev = s.waitEvents(radio.EventCharacteristicsDiscovered, 1)[0]
	s.True(ev.Found)

	s.central.ReadValue("aa:aa", testService, testCharacteristic)
	ev = s.waitEvents(radio.EventValueRead, 1)[0]
	s.Equal([]byte{9, 9}, ev.Value)

	s.central.WriteValue("aa:aa", testService, testCharacteristic, []byte{7})
	ev = s.waitEvents(radio.EventValueWritten, 1)[0]
	code, ok := radio.ATTCode(ev.Err)
	s.True(ok)
	s.Equal(radio.ATTCodeKeepLinkOpen, code)

	s.central.CancelConnection("aa:aa")
	s.waitEvents(radio.EventDisconnected, 1)
	s.central.CancelConnection("aa:aa")
	time.Sleep(20 * time.Millisecond)
	s.Len(s.log.of(radio.EventDisconnected), 1, "disconnect MUST be reported once")
	client.AssertNumberOfCalls(s.T(), "CancelConnection", 1)
}

func (s *CentralSuite) TestMissingServiceIsNotFound() {
	client := &mocks.MockClient{}
	s.device.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	client.On("Disconnected").Return(make(chan struct{}))
	client.On("DiscoverServices", mock.Anything).Return([]*ble.Service{}, nil)
	client.On("CancelConnection").Return(nil)

	s.central.Connect("aa:aa")
	s.waitEvents(radio.EventConnected, 1)
	s.central.DiscoverServices("aa:aa", []ble.UUID{testService})
	ev := s.waitEvents(radio.EventServicesDiscovered, 1)[0]
	s.False(ev.Found)
	s.NoError(ev.Err)
}

func (s *CentralSuite) TestRemoteDisconnect() {
	client := &mocks.MockClient{}
	disconnected := make(chan struct{})
	s.device.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	client.On("Disconnected").Return(disconnected)

	s.central.Connect("aa:aa")
	s.waitEvents(radio.EventConnected, 1)
	close(disconnected)
	s.waitEvents(radio.EventDisconnected, 1)

	s.central.ReadValue("aa:aa", testService, testCharacteristic)
	ev := s.waitEvents(radio.EventValueRead, 1)[0]
	s.ErrorIs(ev.Err, radio.ErrNotConnected)
}

func (s *CentralSuite) TestDialFailure() {
	s.device.On("Dial", mock.Anything, mock.Anything).Return(nil, errors.New("device not connected"))

	s.central.Connect("aa:aa")
	ev := s.waitEvents(radio.EventFailedToConnect, 1)[0]
	s.ErrorIs(ev.Err, radio.ErrNotConnected)
	s.Equal(radio.Handle("aa:aa"), ev.Handle)
}

func (s *CentralSuite) TestCommandsWithoutLinkFail() {
	s.central.DiscoverServices("zz", []ble.UUID{testService})
	ev := s.waitEvents(radio.EventServicesDiscovered, 1)[0]
	s.ErrorIs(ev.Err, radio.ErrNotConnected)
}
