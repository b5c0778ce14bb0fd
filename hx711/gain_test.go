package hx711

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGainPulses(t *testing.T) {
	want := map[int]int{128: 25, 64: 27, 32: 26}

	for value, pulses := range want {
		gain, err := ParseGain(value)
		require.NoError(t, err)
		assert.Equal(t, pulses, gain.Pulses())

		back, err := GainForPulses(pulses)
		require.NoError(t, err)
		assert.Equal(t, gain, back)
	}
}

func TestParseGainRejectsUnsupported(t *testing.T) {
	for _, value := range []int{0, 1, 16, 100, 256, -128} {
		_, err := ParseGain(value)
		assert.ErrorIs(t, err, ErrConfiguration, "gain %d", value)
	}

	_, err := GainForPulses(24)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, Gain(100).Pulses())
}
