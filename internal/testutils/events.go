package testutils

import (
	"github.com/srg/nearby/internal/radio"
)

// PoweredOn is a state change to powered on.
func PoweredOn() radio.Event {
	return radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOn}
}

// PoweredOff is a state change to powered off.
func PoweredOff() radio.Event {
	return radio.Event{Kind: radio.EventStateChanged, State: radio.StatePoweredOff}
}

// Discovered is a scan hit. serviceData is nil for peers that advertise no
// payload.
func Discovered(h radio.Handle, serviceData []byte, rssi int) radio.Event {
	return radio.Event{Kind: radio.EventDiscovered, Handle: h, ServiceData: serviceData, RSSI: rssi}
}

func Connected(h radio.Handle) radio.Event {
	return radio.Event{Kind: radio.EventConnected, Handle: h}
}

func Disconnected(h radio.Handle, err error) radio.Event {
	return radio.Event{Kind: radio.EventDisconnected, Handle: h, Err: err}
}

func FailedToConnect(h radio.Handle, err error) radio.Event {
	return radio.Event{Kind: radio.EventFailedToConnect, Handle: h, Err: err}
}

func ServicesDiscovered(h radio.Handle, found bool) radio.Event {
	return radio.Event{Kind: radio.EventServicesDiscovered, Handle: h, Found: found}
}

func CharacteristicsDiscovered(h radio.Handle, found bool) radio.Event {
	return radio.Event{Kind: radio.EventCharacteristicsDiscovered, Handle: h, Found: found}
}

func ValueRead(h radio.Handle, value []byte, err error) radio.Event {
	return radio.Event{Kind: radio.EventValueRead, Handle: h, Value: value, Err: err}
}

func ValueWritten(h radio.Handle, err error) radio.Event {
	return radio.Event{Kind: radio.EventValueWritten, Handle: h, Err: err}
}

// KeepLinkOpen is the ATT error a peer answers a write with when it wants the
// link held open a little longer.
func KeepLinkOpen() error {
	return radio.ATTCodeKeepLinkOpen
}
