package hx711

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// State of the sampling loop.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateSampling
	StateStopped
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (s *Sensor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(StateStopped)

	if err := s.initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("initialization failed, will reset on first iteration", "err", err)
		s.ForceReset()
	}
	s.setState(StateSampling)
	s.logger.Debug("sampling started", "gain", s.Gain(), "times", s.Times())

	for ctx.Err() == nil {
		didReset, err := s.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.countError()
			s.logger.Error("sampling failed, chip will be reset", "err", err)
			s.ForceReset()
		}

		pause := s.timing.SampleInterval
		if didReset {
			pause = s.timing.ResetPause
		}
		sleepContext(ctx, pause)
	}
}

func (s *Sensor) initialize(ctx context.Context) error {
	if err := s.reset(); err != nil {
		return err
	}
	return s.waitReady(ctx)
}

// step runs one loop iteration without the trailing pause: either a pending
// reset or one median sample handed to the observers.
func (s *Sensor) step(ctx context.Context) (didReset bool, err error) {
	if s.forceReset.CompareAndSwap(true, false) {
		s.logger.Info("resetting chip")
		return true, errors.Wrap(s.reset(), "forced reset failed")
	}

	raw, err := s.medianOf(ctx, s.Times())
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.last = Reading{RawValue: raw, Timestamp: time.Now()}
	reading := s.last
	reading.Weight = s.cal.weight(raw)
	s.mu.Unlock()

	s.logger.Debug("sensor value", "weight", reading.Weight, "raw_value", reading.RawValue)
	for _, observer := range s.observers {
		observer(reading)
	}
	return false, nil
}

func (s *Sensor) countError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
