package drivers

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const mockHx711DriverName = "mock_hx711"

// Clock held high at least this long powers the chip down (datasheet: 60µs).
const defaultPowerDownHold = 60 * time.Microsecond

// MockHx711 simulates an HX711 converter wired to one data input and one clock
// output. Conversions are served from the queue filled with Push; once the
// queue is empty Generator is used, or Baseline plus random Noise and Load.
type MockHx711 struct {
	Baseline int32 `yaml:"baseline"`
	Noise    int32 `yaml:"noise"`
	Load     int32 `yaml:"load"`

	PowerDownHold time.Duration `yaml:"power_down_hold"`
	Generator     func() int32  `json:"-" yaml:"-"`

	mu         sync.Mutex
	dataPin    uint16
	clockPin   uint16
	ready      bool
	clock      bool
	clockSince time.Time
	readInHigh bool
	pulses     int
	word       uint32
	latched    bool
	lastPulses int
	queue      []int32
	resets     int
	conversion int
	stuck      bool
	readErr    error
}

type mockHxData struct {
	chip *MockHx711
}

type mockHxClock struct {
	chip *MockHx711
}

func (md *mockHxData) GetState() (bool, error) {
	return md.chip.readData()
}

func (mc *mockHxClock) GetState() (bool, error) {
	mc.chip.mu.Lock()
	defer mc.chip.mu.Unlock()
	return mc.chip.clock, nil
}

func (mc *mockHxClock) Set(state bool) error {
	mc.chip.setClock(state)
	return nil
}

func (mh *MockHx711) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	if len(inputs) != 1 || len(outputs) != 1 {
		return errors.Errorf("mock hx711 needs exactly one data input and one clock output, got %v, %v", inputs, outputs)
	}

	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.dataPin = inputs[0]
	mh.clockPin = outputs[0]
	if mh.PowerDownHold == 0 {
		mh.PowerDownHold = defaultPowerDownHold
	}
	mh.ready = true
	return nil
}

func (mh *MockHx711) Close() error {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.ready = false
	return nil
}

func (mh *MockHx711) String() string {
	return mockHx711DriverName
}

func (mh *MockHx711) IsReady() bool {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	return mh.ready
}

func (mh *MockHx711) GetInput(pin uint16) (DigitalInput, error) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	if !mh.ready || pin != mh.dataPin {
		return nil, errors.Errorf("mock hx711 input %d not found", pin)
	}
	return &mockHxData{chip: mh}, nil
}

func (mh *MockHx711) GetOutput(pin uint16) (DigitalOutput, error) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	if !mh.ready || pin != mh.clockPin {
		return nil, errors.Errorf("mock hx711 output %d not found", pin)
	}
	return &mockHxClock{chip: mh}, nil
}

func (mh *MockHx711) GetAllIo() (inputs []uint16, outputs []uint16) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	if !mh.ready {
		return
	}
	return []uint16{mh.dataPin}, []uint16{mh.clockPin}
}

// Push queues raw conversion results, served in order.
func (mh *MockHx711) Push(values ...int32) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.queue = append(mh.queue, values...)
}

// SetLoad changes the simulated load added to Baseline.
func (mh *MockHx711) SetLoad(load int32) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.Load = load
}

// SetStuck keeps the data line high, as a disconnected or dead chip would.
func (mh *MockHx711) SetStuck(stuck bool) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.stuck = stuck
}

// FailReads makes every data line read return err until called with nil.
func (mh *MockHx711) FailReads(err error) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	mh.readErr = err
}

// Resets returns how many power down cycles the chip has seen.
func (mh *MockHx711) Resets() int {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	return mh.resets
}

// Conversions returns how many conversions were clocked out.
func (mh *MockHx711) Conversions() int {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	return mh.conversion
}

// LastPulseCount returns the clock pulses of the last finished conversion,
// 25, 26 or 27 depending on the gain selected for the next one. A conversion
// counts as finished once the data line is polled again or the chip is
// powered down.
func (mh *MockHx711) LastPulseCount() int {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	return mh.lastPulses
}

func (mh *MockHx711) nextValue() int32 {
	if len(mh.queue) > 0 {
		v := mh.queue[0]
		mh.queue = mh.queue[1:]
		return v
	}
	if mh.Generator != nil {
		return mh.Generator()
	}
	value := mh.Baseline + mh.Load
	if mh.Noise > 0 {
		value += rand.Int31n(2*mh.Noise+1) - mh.Noise
	}
	return value
}

func (mh *MockHx711) setClock(state bool) {
	mh.mu.Lock()
	defer mh.mu.Unlock()

	if state == mh.clock {
		return
	}
	mh.clock = state

	if state {
		mh.clockSince = time.Now()
		mh.readInHigh = false
		mh.pulses++
		return
	}

	if !mh.readInHigh && time.Since(mh.clockSince) >= mh.PowerDownHold {
		if mh.pulses-1 > 24 {
			mh.lastPulses = mh.pulses - 1
		}
		mh.resets++
		mh.pulses = 0
		mh.latched = false
	}
}

func (mh *MockHx711) readData() (bool, error) {
	mh.mu.Lock()
	defer mh.mu.Unlock()

	if mh.readErr != nil {
		return false, mh.readErr
	}
	if mh.clock {
		mh.readInHigh = true
	}
	if mh.stuck {
		return true, nil
	}

	switch {
	case mh.pulses == 0:
		return mh.clock, nil
	case mh.pulses > 24:
		// trailing pulses done, next conversion is ready
		mh.lastPulses = mh.pulses
		mh.pulses = 0
		mh.latched = false
		return mh.clock, nil
	case mh.pulses == 24 && !mh.clock && mh.latched:
		return true, nil
	}

	if !mh.latched {
		mh.word = uint32(mh.nextValue()) & 0xFFFFFF
		mh.latched = true
		mh.conversion++
	}
	bit := 24 - mh.pulses
	return mh.word&(1<<uint(bit)) != 0, nil
}
