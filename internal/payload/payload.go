// Package payload encodes the blob exchanged between peers: a fixed-size
// identity followed by one signed byte carrying the sender's transmit power
// level. There is no version field and no length prefix.
package payload

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// IdentitySize is the length of the identity blob in bytes.
const IdentitySize = 16

// Size is the encoded length of a payload.
const Size = IdentitySize + 1

// ErrInvalidLength is returned when a blob does not have exactly Size bytes.
var ErrInvalidLength = errors.New("invalid payload length")

// Payload is a peer identity plus its transmit power level in dBm.
type Payload struct {
	Identity [IdentitySize]byte
	TxPower  int8
}

// New builds a payload from identity bytes. identity must be IdentitySize long.
func New(identity []byte, txPower int8) (Payload, error) {
	if len(identity) != IdentitySize {
		return Payload{}, fmt.Errorf("%w: identity has %d bytes, want %d", ErrInvalidLength, len(identity), IdentitySize)
	}
	var p Payload
	copy(p.Identity[:], identity)
	p.TxPower = txPower
	return p, nil
}

// Decode parses an encoded payload.
func Decode(b []byte) (Payload, error) {
	if len(b) != Size {
		return Payload{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(b), Size)
	}
	var p Payload
	copy(p.Identity[:], b[:IdentitySize])
	p.TxPower = int8(b[IdentitySize])
	return p, nil
}

// Encode returns the wire form of p.
func (p Payload) Encode() []byte {
	b := make([]byte, Size)
	copy(b, p.Identity[:])
	b[IdentitySize] = byte(p.TxPower)
	return b
}

// WithTxPower returns a copy of p carrying a different power level.
func (p Payload) WithTxPower(txPower int8) Payload {
	p.TxPower = txPower
	return p
}

// IdentityKey is the default stable identity of a payload: the hex encoded
// identity blob. The power byte is ignored so a peer changing its transmit
// power is still recognised.
func IdentityKey(p Payload) string {
	return hex.EncodeToString(p.Identity[:])
}

func (p Payload) String() string {
	return fmt.Sprintf("%s/%ddBm", IdentityKey(p), p.TxPower)
}
