package hx711

import (
	"github.com/pkg/errors"
)

const DefaultTimes = 3

// calibration turns raw readings into weight:
//
//	weight = (raw + offset) * referenceUnit
//
// offset is kept in raw ADC units so it survives a change of referenceUnit.
type calibration struct {
	offset        float64
	referenceUnit float64
	times         int
	gain          Gain
}

func (c calibration) weight(raw int32) float64 {
	return (float64(raw) + c.offset) * c.referenceUnit
}

func validateTimes(times int) error {
	if times <= 0 {
		return errors.Wrapf(ErrConfiguration, "sample count must be positive, got %d", times)
	}
	return nil
}

func (s *Sensor) Offset() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal.offset
}

func (s *Sensor) SetOffset(offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.offset = offset
}

func (s *Sensor) ReferenceUnit() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal.referenceUnit
}

func (s *Sensor) SetReferenceUnit(referenceUnit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.referenceUnit = referenceUnit
}

// Times is the number of raw reads the median of each sample is taken over.
func (s *Sensor) Times() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal.times
}

func (s *Sensor) SetTimes(times int) error {
	if err := validateTimes(times); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.times = times
	return nil
}

func (s *Sensor) Gain() Gain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal.gain
}

// SetGain takes effect with the next read, whose trailing pulses select it.
func (s *Sensor) SetGain(value int) error {
	gain, err := ParseGain(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.gain = gain
	return nil
}

// Tare zeroes the current weight by moving offset to the last raw reading.
// It fails with ErrNoReading before the first sample.
func (s *Sensor) Tare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.Timestamp.IsZero() {
		return errors.Wrap(ErrNoReading, "cannot tare before the first sample")
	}
	s.cal.offset = -float64(s.last.RawValue)
	return nil
}
