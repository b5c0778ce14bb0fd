package hx711

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	s, _ := newMockSensor(t, Config{})

	assert.Equal(t, Parameters{Offset: 0, ReferenceUnit: 1, Times: DefaultTimes, Gain: 128}, s.Parameters())
	assert.Equal(t, StateIdle, s.State())
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&linesDriver{ready: true}, Config{Gain: 100})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(&linesDriver{ready: true}, Config{Times: -1})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(&linesDriver{}, Config{})
	assert.Error(t, err, "driver not set up")

	_, err = New(nil, Config{})
	assert.Error(t, err)
}

func TestNewFailsOnUnknownPins(t *testing.T) {
	s, chip := newMockSensor(t, Config{})
	require.NotNil(t, s)

	_, err := New(chip, Config{DataPin: 17, ClockPin: testClockPin})
	assert.Error(t, err)
	_, err = New(chip, Config{DataPin: testDataPin, ClockPin: 18})
	assert.Error(t, err)
}

func TestSetGain(t *testing.T) {
	s, _ := newMockSensor(t, Config{Gain: 64})

	require.NoError(t, s.SetGain(32))
	assert.Equal(t, Gain32, s.Gain())

	for _, value := range []int{0, 127, 256, -32} {
		err := s.SetGain(value)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, Gain32, s.Gain(), "gain must stay unchanged after %d", value)
	}
}

func TestSetTimes(t *testing.T) {
	s, _ := newMockSensor(t, Config{Times: 5})

	for _, value := range []int{0, -1} {
		err := s.SetTimes(value)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Equal(t, 5, s.Times())
	}

	require.NoError(t, s.SetTimes(7))
	assert.Equal(t, 7, s.Times())
}

func TestWeightFormula(t *testing.T) {
	s, chip := newMockSensor(t, Config{Times: 1, Offset: 1.5, ReferenceUnit: 2})
	chip.Push(10)

	_, err := s.step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(10), s.RawValue())
	assert.Equal(t, 23.0, s.Weight())

	s.SetReferenceUnit(0.5)
	s.SetOffset(-10)
	assert.Equal(t, 0.0, s.Weight())
}

func TestTare(t *testing.T) {
	s, chip := newMockSensor(t, Config{Times: 1, ReferenceUnit: 0.002})
	chip.Push(-84000, -84000, -83000)

	_, err := s.step(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, s.Weight())

	require.NoError(t, s.Tare())
	assert.Equal(t, 84000.0, s.Offset())
	assert.Equal(t, 0.0, s.Weight())

	_, err = s.step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Weight())

	_, err = s.step(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, s.Weight(), 1e-9)
}

func TestTareBeforeFirstSample(t *testing.T) {
	s, _ := newMockSensor(t, Config{Offset: 250, ReferenceUnit: 0.002})

	err := s.Tare()
	assert.ErrorIs(t, err, ErrNoReading)
	assert.Equal(t, 250.0, s.Offset())
}

func TestParametersRoundTrip(t *testing.T) {
	src, _ := newMockSensor(t, Config{})
	src.SetOffset(1.5)
	src.SetReferenceUnit(0.002)
	require.NoError(t, src.SetTimes(7))
	require.NoError(t, src.SetGain(64))

	buf := &bytes.Buffer{}
	require.NoError(t, src.ExportParameters(buf))

	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc, 4)
	for _, key := range []string{"offset", "reference_unit", "times", "gain"} {
		assert.Contains(t, doc, key)
	}

	dst, _ := newMockSensor(t, Config{})
	require.NoError(t, dst.ImportParameters(buf))
	assert.Equal(t, Parameters{Offset: 1.5, ReferenceUnit: 0.002, Times: 7, Gain: 64}, dst.Parameters())
}

func TestImportPartialDocument(t *testing.T) {
	s, _ := newMockSensor(t, Config{Gain: 32, Times: 9, ReferenceUnit: 0.5})

	require.NoError(t, s.ImportParameters(strings.NewReader(`{"offset": 2.0}`)))
	assert.Equal(t, Parameters{Offset: 2, ReferenceUnit: 0.5, Times: 9, Gain: 32}, s.Parameters())

	require.NoError(t, s.ImportParameters(strings.NewReader(`{"reference_unit": "0.25", "unknown": true}`)))
	assert.Equal(t, Parameters{Offset: 2, ReferenceUnit: 0.25, Times: 9, Gain: 32}, s.Parameters())

	require.NoError(t, s.ImportParameters(strings.NewReader(`{}`)))
	assert.Equal(t, Parameters{Offset: 2, ReferenceUnit: 0.25, Times: 9, Gain: 32}, s.Parameters())
}

func TestImportRejectsWithoutApplying(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `offset=2`, ErrSerialization},
		{"empty", ``, ErrSerialization},
		{"array", `[1, 2]`, ErrSerialization},
		{"null", `null`, ErrSerialization},
		{"trailing data", `{"offset": 1} junk`, ErrSerialization},
		{"two documents", `{"offset": 1} {"offset": 2}`, ErrSerialization},
		{"offset not a number", `{"offset": "heavy"}`, ErrSerialization},
		{"bad gain", `{"offset": 3, "gain": 100}`, ErrConfiguration},
		{"fractional gain", `{"offset": 3, "gain": 64.5}`, ErrConfiguration},
		{"zero times", `{"offset": 3, "times": 0}`, ErrConfiguration},
		{"negative times", `{"reference_unit": 3, "times": -2}`, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newMockSensor(t, Config{Offset: 1, ReferenceUnit: 2, Times: 3, Gain: 64})
			before := s.Parameters()

			err := s.ImportParameters(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, s.Parameters())
		})
	}
}

func TestParametersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.json")

	src, _ := newMockSensor(t, Config{Offset: -300, ReferenceUnit: 0.01, Times: 5, Gain: 32})
	require.NoError(t, src.ExportParametersFile(path))
	require.NoError(t, src.ExportParametersFile(path))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	dst, _ := newMockSensor(t, Config{})
	require.NoError(t, dst.ImportParametersFile(path))
	assert.Equal(t, src.Parameters(), dst.Parameters())

	err = dst.ImportParametersFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParametersFileMode(t *testing.T) {
	s, _ := newMockSensor(t, Config{})
	dir := t.TempDir()

	created := filepath.Join(dir, "created.json")
	require.NoError(t, s.ExportParametersFile(created))
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	existing := filepath.Join(dir, "existing.json")
	require.NoError(t, os.WriteFile(existing, []byte(`{}`), 0600))
	require.NoError(t, os.Chmod(existing, 0640))
	require.NoError(t, s.ExportParametersFile(existing))
	info, err = os.Stat(existing)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestParseNumber(t *testing.T) {
	for _, in := range []interface{}{2.5, float32(2.5), "2.5", " 2.5 ", json.Number("2.5"), Number(2.5)} {
		got, err := ParseNumber(in)
		require.NoError(t, err, "%v", in)
		assert.Equal(t, 2.5, got)
	}

	got, err := ParseNumber(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	for _, in := range []interface{}{"", "abc", "NaN", "Inf", true, nil} {
		_, err := ParseNumber(in)
		assert.ErrorIs(t, err, ErrSerialization, "%v", in)
	}
}
