package hx711

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// SignExtend24 interprets the low 24 bits of value as a two's complement number.
func SignExtend24(value uint32) int32 {
	return int32(value<<8) >> 8
}

// isReady reports whether the chip has a conversion waiting: data line low.
func (s *Sensor) isReady() (bool, error) {
	state, err := s.data.GetState()
	if err != nil {
		return false, errors.Wrap(err, "failed to read data line")
	}
	return !state, nil
}

// waitReady polls the data line until a conversion is ready. There is no
// timeout; only ctx ends the wait early.
func (s *Sensor) waitReady(ctx context.Context) error {
	for {
		ready, err := s.isReady()
		if err != nil || ready {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		time.Sleep(s.timing.ReadyPoll)
	}
}

func (s *Sensor) pulse() error {
	if err := s.clock.Set(true); err != nil {
		return errors.Wrap(err, "failed to raise clock line")
	}
	if err := s.clock.Set(false); err != nil {
		return errors.Wrap(err, "failed to lower clock line")
	}
	return nil
}

// readRaw clocks one conversion out of a ready chip. The trailing pulses after
// the 24 data bits select gain and channel of the following conversion.
func (s *Sensor) readRaw(ctx context.Context) (int32, error) {
	if err := s.waitReady(ctx); err != nil {
		return 0, err
	}

	pulses := s.Gain().Pulses()

	var value uint32
	for i := 0; i < dataPulses; i++ {
		if err := s.clock.Set(true); err != nil {
			return 0, errors.Wrap(err, "failed to raise clock line")
		}
		bit, err := s.data.GetState()
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read data bit %d", dataPulses-1-i)
		}
		if err := s.clock.Set(false); err != nil {
			return 0, errors.Wrap(err, "failed to lower clock line")
		}
		value <<= 1
		if bit {
			value |= 1
		}
	}

	for i := dataPulses; i < pulses; i++ {
		if err := s.pulse(); err != nil {
			return 0, err
		}
	}

	return SignExtend24(value), nil
}

func (s *Sensor) powerDown() error {
	if err := s.clock.Set(false); err != nil {
		return errors.Wrap(err, "power down failed")
	}
	if err := s.clock.Set(true); err != nil {
		return errors.Wrap(err, "power down failed")
	}
	time.Sleep(s.timing.Settle)
	return nil
}

func (s *Sensor) powerUp() error {
	if err := s.clock.Set(false); err != nil {
		return errors.Wrap(err, "power up failed")
	}
	time.Sleep(s.timing.Settle)
	return nil
}

// reset power cycles the chip into a known idle state. After power up the
// chip converts at gain 128 until the next read selects otherwise.
func (s *Sensor) reset() error {
	if err := s.powerDown(); err != nil {
		return err
	}
	return s.powerUp()
}
