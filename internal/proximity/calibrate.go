package proximity

import "github.com/srg/nearby/internal/radio"

// Source tells who measured a signal strength reading.
type Source int

const (
	// SourceLocal readings were measured by this device scanning the peer.
	SourceLocal Source = iota
	// SourcePeerReported readings were measured by the peer and reported in-band.
	SourcePeerReported
)

func (s Source) String() string {
	if s == SourcePeerReported {
		return "peer"
	}
	return "local"
}

// Calibrate corrects a raw RSSI for transmit power and receiver gain. Local
// readings are corrected by the peer's advertised tx power and our rx
// compensation; peer-reported readings by our own tx compensation. A raw value
// of radio.RSSIUnavailable yields no reading. The Coordinator only measures
// readings itself, so it always calibrates with SourceLocal.
func Calibrate(raw int, source Source, peerTxPower, rxCompensation, txCompensation int8) (int, bool) {
	if raw == radio.RSSIUnavailable {
		return 0, false
	}
	if source == SourcePeerReported {
		return raw - int(txCompensation), true
	}
	return raw - int(peerTxPower) - int(rxCompensation), true
}
