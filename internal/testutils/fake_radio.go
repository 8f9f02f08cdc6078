package testutils

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/radio"
)

// Radio operations recorded by the fakes.
const (
	OpStart                   = "start"
	OpStop                    = "stop"
	OpStartScan               = "start_scan"
	OpStopScan                = "stop_scan"
	OpConnect                 = "connect"
	OpCancelConnection        = "cancel_connection"
	OpDiscoverServices        = "discover_services"
	OpDiscoverCharacteristics = "discover_characteristics"
	OpRead                    = "read"
	OpWrite                   = "write"
	OpSetService              = "set_service"
	OpRemoveServices          = "remove_services"
	OpStartAdvertising        = "start_advertising"
	OpStopAdvertising         = "stop_advertising"
)

// Call is one recorded radio command.
type Call struct {
	Op              string
	Handle          radio.Handle
	UUID            ble.UUID
	AllowDuplicates bool
	Value           []byte
}

type recorder struct {
	mu      sync.Mutex
	calls   []Call
	handler func(radio.Event)
}

func (r *recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) setHandler(h func(radio.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Emit delivers ev as if the radio stack reported it.
func (r *recorder) Emit(ev radio.Event) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Calls returns recorded commands, optionally filtered by op.
func (r *recorder) Calls(ops ...string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ops) == 0 {
		return append([]Call(nil), r.calls...)
	}
	var out []Call
	for _, c := range r.calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Count counts commands with op, for handle h when h is non-empty.
func (r *recorder) Count(op string, h radio.Handle) int {
	n := 0
	for _, c := range r.Calls(op) {
		if h == "" || c.Handle == h {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands.
func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// FakeCentral is a radio.Central that records commands and lets tests inject events.
type FakeCentral struct {
	recorder

	StartErr error
	ScanErr  error
}

var _ radio.Central = (*FakeCentral)(nil)

func NewFakeCentral() *FakeCentral {
	return &FakeCentral{}
}

func (f *FakeCentral) SetHandler(h func(radio.Event)) { f.setHandler(h) }

func (f *FakeCentral) Start() error {
	f.record(Call{Op: OpStart})
	return f.StartErr
}

func (f *FakeCentral) Stop() error {
	f.record(Call{Op: OpStop})
	return nil
}

func (f *FakeCentral) StartScan(service ble.UUID, allowDuplicates bool) error {
	f.record(Call{Op: OpStartScan, UUID: service, AllowDuplicates: allowDuplicates})
	return f.ScanErr
}

func (f *FakeCentral) StopScan() { f.record(Call{Op: OpStopScan}) }

func (f *FakeCentral) Connect(h radio.Handle) { f.record(Call{Op: OpConnect, Handle: h}) }

func (f *FakeCentral) CancelConnection(h radio.Handle) {
	f.record(Call{Op: OpCancelConnection, Handle: h})
}

func (f *FakeCentral) DiscoverServices(h radio.Handle, services []ble.UUID) {
	f.record(Call{Op: OpDiscoverServices, Handle: h, UUID: first(services)})
}

func (f *FakeCentral) DiscoverCharacteristics(h radio.Handle, _ ble.UUID, characteristics []ble.UUID) {
	f.record(Call{Op: OpDiscoverCharacteristics, Handle: h, UUID: first(characteristics)})
}

func (f *FakeCentral) ReadValue(h radio.Handle, _, characteristic ble.UUID) {
	f.record(Call{Op: OpRead, Handle: h, UUID: characteristic})
}

func (f *FakeCentral) WriteValue(h radio.Handle, _, characteristic ble.UUID, value []byte) {
	f.record(Call{Op: OpWrite, Handle: h, UUID: characteristic, Value: append([]byte(nil), value...)})
}

// FakePeripheral is a radio.Peripheral that records commands and exposes the
// installed read handler.
type FakePeripheral struct {
	recorder

	StartErr     error
	AdvertiseErr error

	handlerMu sync.Mutex
	onRead    radio.ReadHandler
}

var _ radio.Peripheral = (*FakePeripheral)(nil)

func NewFakePeripheral() *FakePeripheral {
	return &FakePeripheral{}
}

func (f *FakePeripheral) SetHandler(h func(radio.Event)) { f.setHandler(h) }

func (f *FakePeripheral) Start() error {
	f.record(Call{Op: OpStart})
	return f.StartErr
}

func (f *FakePeripheral) Stop() error {
	f.record(Call{Op: OpStop})
	return nil
}

func (f *FakePeripheral) SetService(service, characteristic ble.UUID, onRead radio.ReadHandler) error {
	f.record(Call{Op: OpSetService, UUID: characteristic})
	f.handlerMu.Lock()
	f.onRead = onRead
	f.handlerMu.Unlock()
	return nil
}

func (f *FakePeripheral) RemoveServices() error {
	f.record(Call{Op: OpRemoveServices})
	f.handlerMu.Lock()
	f.onRead = nil
	f.handlerMu.Unlock()
	return nil
}

func (f *FakePeripheral) StartAdvertising(service ble.UUID) error {
	f.record(Call{Op: OpStartAdvertising, UUID: service})
	return f.AdvertiseErr
}

func (f *FakePeripheral) StopAdvertising() { f.record(Call{Op: OpStopAdvertising}) }

// Read simulates a remote central reading the exposed characteristic.
func (f *FakePeripheral) Read() ([]byte, error) {
	f.handlerMu.Lock()
	h := f.onRead
	f.handlerMu.Unlock()
	if h == nil {
		return nil, radio.ErrNotConfigured
	}
	return h()
}

func first(uuids []ble.UUID) ble.UUID {
	if len(uuids) == 0 {
		return nil
	}
	return uuids[0]
}
