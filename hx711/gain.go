package hx711

import (
	"strconv"

	"github.com/pkg/errors"
)

// Gain selects the amplifier gain and input channel of the next conversion.
// Channel A runs at 128 or 64, channel B at 32.
type Gain int

const (
	Gain128 Gain = 128
	Gain64  Gain = 64
	Gain32  Gain = 32
)

const DefaultGain = Gain128

// dataPulses is the number of clock pulses carrying the 24 bit conversion result.
const dataPulses = 24

var gainPulses = [...]struct {
	gain   Gain
	pulses int
}{
	{Gain128, 25},
	{Gain64, 27},
	{Gain32, 26},
}

// ParseGain validates value against the supported gains.
func ParseGain(value int) (Gain, error) {
	for _, gp := range gainPulses {
		if int(gp.gain) == value {
			return gp.gain, nil
		}
	}
	return 0, errors.Wrapf(ErrConfiguration, "unsupported gain %d (want 128, 64 or 32)", value)
}

// GainForPulses is the reverse of Gain.Pulses.
func GainForPulses(pulses int) (Gain, error) {
	for _, gp := range gainPulses {
		if gp.pulses == pulses {
			return gp.gain, nil
		}
	}
	return 0, errors.Wrapf(ErrConfiguration, "no gain is selected by %d clock pulses", pulses)
}

// Pulses returns the total clock pulses of one read at this gain, or 0 for an
// unsupported gain.
func (g Gain) Pulses() int {
	for _, gp := range gainPulses {
		if gp.gain == g {
			return gp.pulses
		}
	}
	return 0
}

func (g Gain) String() string {
	return strconv.Itoa(int(g))
}
