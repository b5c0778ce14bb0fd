package hx711

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceResetReplacesOneIteration(t *testing.T) {
	s, chip := newMockSensor(t, Config{Times: 3})
	chip.Push(100, 101, 99, 200, 201, 199)
	ctx := context.Background()

	s.ForceReset()

	didReset, err := s.step(ctx)
	require.NoError(t, err)
	assert.True(t, didReset)
	assert.Equal(t, 1, chip.Resets())
	assert.Equal(t, 0, chip.Conversions(), "reset iteration must not sample")
	assert.True(t, s.Reading().Timestamp.IsZero())

	didReset, err = s.step(ctx)
	require.NoError(t, err)
	assert.False(t, didReset, "flag must clear itself")
	assert.Equal(t, int32(100), s.RawValue())
	assert.Equal(t, 3, chip.Conversions())

	didReset, err = s.step(ctx)
	require.NoError(t, err)
	assert.False(t, didReset)
	assert.Equal(t, int32(200), s.RawValue())
	assert.Equal(t, 1, chip.Resets())
}

func TestLoopPausesAfterReset(t *testing.T) {
	tests := []struct {
		name        string
		timing      Timing
		wantReading bool
	}{
		{"short reset pause", Timing{ResetPause: time.Millisecond, SampleInterval: time.Hour}, true},
		{"long reset pause", Timing{ResetPause: time.Hour, SampleInterval: time.Millisecond}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, chip := newMockSensor(t, Config{Times: 1}, WithTiming(tt.timing))
			s.ForceReset()
			require.NoError(t, s.Start(context.Background()))
			defer s.Stop()

			// one reset at initialization, one forced
			require.Eventually(t, func() bool { return chip.Resets() >= 2 }, 2*time.Second, time.Millisecond)

			sampled := func() bool { return !s.Reading().Timestamp.IsZero() }
			if tt.wantReading {
				assert.Eventually(t, sampled, 2*time.Second, time.Millisecond)
				time.Sleep(50 * time.Millisecond)
				assert.Equal(t, 1, chip.Conversions(), "next sample waits for the sample interval")
			} else {
				assert.Never(t, sampled, 100*time.Millisecond, 5*time.Millisecond)
				assert.Equal(t, 0, chip.Conversions())
			}
		})
	}
}

func TestStepNotifiesObservers(t *testing.T) {
	var got []Reading
	s, chip := newMockSensor(t, Config{Times: 1, ReferenceUnit: 0.5}, WithObserver(func(r Reading) {
		got = append(got, r)
	}))
	chip.Push(40)

	_, err := s.step(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, int32(40), got[0].RawValue)
	assert.Equal(t, 20.0, got[0].Weight)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, map[string]interface{}{"weight": 20.0, "raw_value": int32(40)}, got[0].Attributes())
}

func TestStartSamplesUntilStopped(t *testing.T) {
	readings := make(chan Reading, 100)
	s, chip := newMockSensor(t, Config{Times: 3}, WithObserver(func(r Reading) {
		select {
		case readings <- r:
		default:
		}
	}))
	chip.Baseline = 5000

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start must fail")

	select {
	case r := <-readings:
		assert.Equal(t, int32(5000), r.RawValue)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading from sampling loop")
	}
	assert.Equal(t, StateSampling, s.State())
	assert.GreaterOrEqual(t, chip.Resets(), 1, "initialization resets the chip")

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	conversions := chip.Conversions()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, conversions, chip.Conversions(), "no reads after stop")

	s.Stop()
}

func TestStartStopsWithContext(t *testing.T) {
	s, _ := newMockSensor(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return s.State() == StateStopped
	}, time.Second, time.Millisecond)
}

func TestStuckChipLeavesReadingStale(t *testing.T) {
	s, chip := newMockSensor(t, Config{})
	chip.SetStuck(true)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StateInitializing, s.State())
	r := s.Reading()
	assert.True(t, r.IsStale(time.Hour))
	assert.Equal(t, 0.0, s.Weight())

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestLoopSurvivesReadErrors(t *testing.T) {
	s, chip := newMockSensor(t, Config{Times: 1})
	chip.Baseline = 42

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.RawValue() == 42
	}, 2*time.Second, time.Millisecond)

	chip.FailReads(errors.New("gpio unavailable"))
	require.Eventually(t, func() bool {
		return s.ErrorCount() >= 2
	}, 2*time.Second, time.Millisecond)
	stale := s.Reading()
	assert.Equal(t, int32(42), stale.RawValue, "last good value is kept")
	assert.Equal(t, StateSampling, s.State())

	chip.SetLoad(8)
	chip.FailReads(nil)
	assert.Eventually(t, func() bool {
		r := s.Reading()
		return r.RawValue == 50 && r.Timestamp.After(stale.Timestamp)
	}, 2*time.Second, time.Millisecond)
}

// Writers store paired offset/reference unit documents while the loop
// samples; readers must only ever see pairs that a single writer stored.
func TestConcurrentCalibrationNeverTorn(t *testing.T) {
	s, chip := newMockSensor(t, Config{Times: 1, Offset: 0, ReferenceUnit: 1})
	chip.Generator = func() int32 { return 1000 }

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	const writers, readers, rounds = 4, 4, 300
	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				value := w*rounds + i + 1
				doc := fmt.Sprintf(`{"offset": %d, "reference_unit": %d}`, value, value)
				assert.NoError(t, s.ImportParameters(strings.NewReader(doc)))
			}
		}(w)
	}

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				p := s.Parameters()
				if p.Offset != 0 || p.ReferenceUnit != 1 {
					assert.Equal(t, p.Offset, p.ReferenceUnit, "torn parameters")
				}

				reading := s.Reading()
				if reading.Timestamp.IsZero() {
					continue
				}
				assert.Equal(t, int32(1000), reading.RawValue)
				assert.True(t, weightFromSingleWrite(reading.Weight), "torn weight %v", reading.Weight)
			}
		}()
	}

	wg.Wait()
}

// weightFromSingleWrite reports whether w equals (1000 + v) * v for the initial
// v = 0, reference unit 1 state or for some whole v a writer stored.
func weightFromSingleWrite(w float64) bool {
	if w == 1000 {
		return true
	}
	v := math.Round((-1000 + math.Sqrt(1000*1000+4*w)) / 2)
	return v >= 1 && (1000+v)*v == w
}
