package radio_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/nearby/internal/radio"
	"github.com/stretchr/testify/assert"
)

func TestATTCode(t *testing.T) {
	t.Run("finds wrapped ATT errors", func(t *testing.T) {
		err := fmt.Errorf("write failed: %w", radio.ATTCodeKeepLinkOpen)
		code, ok := radio.ATTCode(err)
		assert.True(t, ok)
		assert.Equal(t, radio.ATTCodeKeepLinkOpen, code)
	})

	t.Run("reports other ATT codes", func(t *testing.T) {
		code, ok := radio.ATTCode(ble.ErrWriteNotPerm)
		assert.True(t, ok)
		assert.NotEqual(t, radio.ATTCodeKeepLinkOpen, code)
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		_, ok := radio.ATTCode(errors.New("link lost"))
		assert.False(t, ok)
	})
}

func TestStateFromError(t *testing.T) {
	assert.Equal(t, radio.StatePoweredOn, radio.StateFromError(nil))
	assert.Equal(t, radio.StatePoweredOff, radio.StateFromError(fmt.Errorf("x: %w", radio.ErrBluetoothOff)))
	assert.Equal(t, radio.StateUnsupported, radio.StateFromError(radio.ErrUnsupported))
	assert.Equal(t, radio.StateUnknown, radio.StateFromError(errors.New("weird")))
}

func TestNotFoundErrorMessage(t *testing.T) {
	assert.Equal(t, `service "fd68" not found`,
		(&radio.NotFoundError{Resource: "service", UUIDs: []string{"fd68"}}).Error())
	assert.Equal(t, `characteristic "abcd" not found in service "fd68"`,
		(&radio.NotFoundError{Resource: "characteristic", UUIDs: []string{"fd68", "abcd"}}).Error())
}
