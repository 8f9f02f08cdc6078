package payload_test

import (
	"bytes"
	"testing"

	"github.com/srg/nearby/internal/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(b byte) []byte {
	return bytes.Repeat([]byte{b}, payload.IdentitySize)
}

func TestEncodeLayout(t *testing.T) {
	p, err := payload.New(identity(0xAB), -12)
	require.NoError(t, err)

	wire := p.Encode()
	require.Len(t, wire, payload.Size)
	assert.Equal(t, identity(0xAB), wire[:payload.IdentitySize], "identity MUST lead the blob")
	assert.Equal(t, byte(0xF4), wire[payload.IdentitySize], "power MUST be the trailing two's complement byte")
}

func TestDecode(t *testing.T) {
	t.Run("parses power as signed", func(t *testing.T) {
		wire := append(identity(0x01), 0x81)
		p, err := payload.Decode(wire)
		require.NoError(t, err)
		assert.Equal(t, int8(-127), p.TxPower)
		assert.Equal(t, wire, p.Encode())
	})

	t.Run("rejects wrong sizes", func(t *testing.T) {
		for _, n := range []int{0, payload.IdentitySize, payload.Size + 1} {
			_, err := payload.Decode(make([]byte, n))
			assert.ErrorIs(t, err, payload.ErrInvalidLength, "length %d MUST be rejected", n)
		}
	})
}

func TestNewRejectsShortIdentity(t *testing.T) {
	_, err := payload.New([]byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, payload.ErrInvalidLength)
}

func TestIdentityKeyIgnoresPower(t *testing.T) {
	a, _ := payload.New(identity(0x42), 4)
	b := a.WithTxPower(-20)

	assert.Equal(t, payload.IdentityKey(a), payload.IdentityKey(b))
	assert.Len(t, payload.IdentityKey(a), payload.IdentitySize*2)
}
