// Package mocks holds testify mocks of the go-ble interfaces the radio
// adapter consumes. Each mock embeds the interface it stands in for, so
// calling a method without an override panics on the nil embedded value.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice mocks ble.Device.
type MockDevice struct {
	mock.Mock
	ble.Device
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	if c, ok := args.Get(0).(ble.Client); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDevice) AddService(svc *ble.Service) error {
	return m.Called(svc).Error(0)
}

func (m *MockDevice) RemoveAllServices() error {
	return m.Called().Error(0)
}

func (m *MockDevice) AdvertiseNameAndServices(ctx context.Context, name string, uuids ...ble.UUID) error {
	return m.Called(ctx, name, uuids).Error(0)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

// MockClient mocks ble.Client.
type MockClient struct {
	mock.Mock
	ble.Client
}

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	svcs, _ := args.Get(0).([]*ble.Service)
	return svcs, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	chars, _ := args.Get(0).([]*ble.Characteristic)
	return chars, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	ch, _ := m.Called().Get(0).(chan struct{})
	return ch
}

// MockAdvertisement mocks ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
	ble.Advertisement
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	sd, _ := m.Called().Get(0).([]ble.ServiceData)
	return sd
}

func (m *MockAdvertisement) Services() []ble.UUID {
	u, _ := m.Called().Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	u, _ := m.Called().Get(0).([]ble.UUID)
	return u
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	a, _ := m.Called().Get(0).(ble.Addr)
	return a
}
