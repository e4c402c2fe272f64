package hwio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestPinLine_ActiveHigh(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO16"}
	l := NewPinLine(pin, false)

	require.NoError(t, l.Set(true))
	assert.Equal(t, gpio.High, pin.Read())
	require.NoError(t, l.Set(false))
	assert.Equal(t, gpio.Low, pin.Read())
	assert.Equal(t, "GPIO16", l.Name())
}

func TestPinLine_ActiveLow(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO21"}
	l := NewPinLine(pin, true)

	require.NoError(t, l.Set(true))
	assert.Equal(t, gpio.Low, pin.Read())
	require.NoError(t, l.Set(false))
	assert.Equal(t, gpio.High, pin.Read())
}

func TestNopLine(t *testing.T) {
	n := &NopLine{LineName: "gate"}
	require.NoError(t, n.Set(true))
	assert.True(t, n.Active())
	assert.Equal(t, "gate", n.Name())
}
