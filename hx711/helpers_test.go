package hx711

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/hubertat/swscale/drivers"
)

const (
	testDataPin  = 5
	testClockPin = 6
)

var testTiming = Timing{
	SampleInterval: time.Millisecond,
	ResetPause:     time.Millisecond,
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newMockSensor(t *testing.T, cfg Config, opts ...Option) (*Sensor, *drivers.MockHx711) {
	t.Helper()

	chip := &drivers.MockHx711{}
	require.NoError(t, chip.Setup(context.Background(), []uint16{testDataPin}, []uint16{testClockPin}))

	cfg.DataPin = testDataPin
	cfg.ClockPin = testClockPin
	opts = append([]Option{WithTiming(testTiming), WithLogger(quietLogger())}, opts...)
	s, err := New(chip, cfg, opts...)
	require.NoError(t, err)

	return s, chip
}

// recordingLines answers data reads from a bit queue while the clock is high
// and reports ready while it is low. It counts what the protocol does.
type recordingLines struct {
	mu        sync.Mutex
	bits      []bool
	clockHigh bool
	rising    int
	bitReads  int
	readyPoll int
}

func (rl *recordingLines) queueWord(word uint32) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i := 23; i >= 0; i-- {
		rl.bits = append(rl.bits, word&(1<<uint(i)) != 0)
	}
}

func (rl *recordingLines) Set(state bool) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if state && !rl.clockHigh {
		rl.rising++
	}
	rl.clockHigh = state
	return nil
}

type recordingData struct {
	*recordingLines
}

func (rd recordingData) GetState() (bool, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if !rd.clockHigh {
		rd.readyPoll++
		return false, nil
	}
	rd.bitReads++
	if len(rd.bits) == 0 {
		return false, nil
	}
	bit := rd.bits[0]
	rd.bits = rd.bits[1:]
	return bit, nil
}

type recordingClock struct {
	*recordingLines
}

func (rc recordingClock) GetState() (bool, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.clockHigh, nil
}

// linesDriver hands out a fixed input and output regardless of pin number.
type linesDriver struct {
	in    drivers.DigitalInput
	out   drivers.DigitalOutput
	ready bool
}

func (ld *linesDriver) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	ld.ready = true
	return nil
}
func (ld *linesDriver) Close() error   { return nil }
func (ld *linesDriver) String() string { return "lines" }
func (ld *linesDriver) IsReady() bool  { return ld.ready }
func (ld *linesDriver) GetInput(pin uint16) (drivers.DigitalInput, error) {
	return ld.in, nil
}
func (ld *linesDriver) GetOutput(pin uint16) (drivers.DigitalOutput, error) {
	return ld.out, nil
}
func (ld *linesDriver) GetAllIo() (inputs []uint16, outputs []uint16) {
	return []uint16{testDataPin}, []uint16{testClockPin}
}

func newRecordingSensor(t *testing.T, cfg Config) (*Sensor, *recordingLines) {
	t.Helper()

	lines := &recordingLines{}
	driver := &linesDriver{in: recordingData{lines}, out: recordingClock{lines}, ready: true}
	s, err := New(driver, cfg, WithTiming(testTiming), WithLogger(quietLogger()))
	require.NoError(t, err)

	return s, lines
}
