// Package hx711 reads an HX711 load cell converter over two GPIO lines and
// keeps a calibrated weight reading up to date in the background.
package hx711

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/hubertat/swscale/drivers"
)

const (
	DefaultReadyPoll      = 100 * time.Microsecond
	DefaultSettle         = 100 * time.Microsecond
	DefaultResetPause     = 200 * time.Millisecond
	DefaultSampleInterval = 200 * time.Millisecond
)

// Config holds the wiring and initial calibration of a sensor.
type Config struct {
	DataPin       uint16  `yaml:"data_pin"`
	ClockPin      uint16  `yaml:"clock_pin"`
	Gain          int     `yaml:"gain"`
	Times         int     `yaml:"times"`
	Offset        float64 `yaml:"offset"`
	ReferenceUnit float64 `yaml:"reference_unit"`
}

// Timing of the protocol and the sampling loop. Zero fields use the defaults.
type Timing struct {
	ReadyPoll      time.Duration
	Settle         time.Duration
	ResetPause     time.Duration
	SampleInterval time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.ReadyPoll <= 0 {
		t.ReadyPoll = DefaultReadyPoll
	}
	if t.Settle <= 0 {
		t.Settle = DefaultSettle
	}
	if t.ResetPause <= 0 {
		t.ResetPause = DefaultResetPause
	}
	if t.SampleInterval <= 0 {
		t.SampleInterval = DefaultSampleInterval
	}
	return t
}

type Option func(*Sensor)

func WithLogger(logger *log.Logger) Option {
	return func(s *Sensor) {
		s.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Sensor) {
		s.observers = append(s.observers, observer)
	}
}

func WithTiming(timing Timing) Option {
	return func(s *Sensor) {
		s.timing = timing.withDefaults()
	}
}

// Sensor owns one HX711 chip. Readers never touch the hardware: Weight,
// RawValue and Reading return what the sampling loop stored last.
type Sensor struct {
	data      drivers.DigitalInput
	clock     drivers.DigitalOutput
	timing    Timing
	logger    *log.Logger
	observers []Observer

	mu     sync.RWMutex
	cal    calibration
	last   Reading
	state  State
	errors int

	forceReset atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a sensor to the data input and clock output of a set up driver.
// Zero Gain, Times and ReferenceUnit in cfg fall back to 128, 3 and 1.
func New(driver drivers.IoDriver, cfg Config, opts ...Option) (*Sensor, error) {
	if cfg.Gain == 0 {
		cfg.Gain = int(DefaultGain)
	}
	if cfg.Times == 0 {
		cfg.Times = DefaultTimes
	}
	if cfg.ReferenceUnit == 0 {
		cfg.ReferenceUnit = 1
	}

	gain, err := ParseGain(cfg.Gain)
	if err != nil {
		return nil, err
	}
	if err = validateTimes(cfg.Times); err != nil {
		return nil, err
	}

	if driver == nil || !driver.IsReady() {
		return nil, errors.New("hx711 init failed, driver not ready")
	}

	s := &Sensor{
		timing: Timing{}.withDefaults(),
		cal: calibration{
			offset:        cfg.Offset,
			referenceUnit: cfg.ReferenceUnit,
			times:         cfg.Times,
			gain:          gain,
		},
	}

	s.data, err = driver.GetInput(cfg.DataPin)
	if err != nil {
		return nil, errors.Wrapf(err, "hx711 init failed on getting data input from %s", driver)
	}
	s.clock, err = driver.GetOutput(cfg.ClockPin)
	if err != nil {
		return nil, errors.Wrapf(err, "hx711 init failed on getting clock output from %s", driver)
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "HX711: ",
			Level:  log.GetLevel(),
		})
	}

	return s, nil
}

// Start runs the sampling loop until ctx is done or Stop is called.
func (s *Sensor) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		return errors.New("hx711 sampling already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setState(StateInitializing)

	go s.run(ctx, s.done)
	return nil
}

// Stop ends the sampling loop and waits for it to return. An in-flight read
// finishes first.
func (s *Sensor) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// ForceReset makes the next loop iteration power cycle the chip instead of
// sampling.
func (s *Sensor) ForceReset() {
	s.forceReset.Store(true)
}

func (s *Sensor) Reading() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.last
	r.Weight = s.cal.weight(r.RawValue)
	return r
}

func (s *Sensor) Weight() float64 {
	return s.Reading().Weight
}

func (s *Sensor) RawValue() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.RawValue
}

// ErrorCount is the number of failed sampling iterations so far.
func (s *Sensor) ErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errors
}

func (s *Sensor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Sensor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
