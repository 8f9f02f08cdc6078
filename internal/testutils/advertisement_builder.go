package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// AdvertisementBuilder builds mocked go-ble advertisements. Only fields that
// were set get expectations; everything else answers with its zero value.
type AdvertisementBuilder struct {
	address     string
	rssi        int
	services    []ble.UUID
	overflow    []ble.UUID
	serviceData []ble.ServiceData
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{}
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds advertised service UUIDs, short ("FD68") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.services = append(b.services, ble.MustParse(u))
	}
	return b
}

// WithOverflowServices adds UUIDs found in the overflow area (iOS background
// advertising).
func (b *AdvertisementBuilder) WithOverflowServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.overflow = append(b.overflow, ble.MustParse(u))
	}
	return b
}

func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.serviceData = append(b.serviceData, ble.ServiceData{UUID: ble.MustParse(uuid), Data: data})
	return b
}

// Build returns the mock. Expectations are optional so that code under test
// may consult any subset of the fields.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}
	adv.On("Addr").Return(ble.NewAddr(b.address)).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("LocalName").Return("").Maybe()
	adv.On("Services").Return(b.services).Maybe()
	adv.On("OverflowService").Return(b.overflow).Maybe()
	adv.On("ServiceData").Return(b.serviceData).Maybe()
	return adv
}

// ScanDelivering makes a mocked Scan call handler with every advertisement and
// then block until its context is cancelled, like a real scan.
func ScanDelivering(dev *mocks.MockDevice, advs ...ble.Advertisement) {
	dev.On("Scan", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		handler := args.Get(2).(ble.AdvHandler)
		for _, adv := range advs {
			handler(adv)
		}
		<-args.Get(0).(interface{ Done() <-chan struct{} }).Done()
	}).Return(nil)
}
