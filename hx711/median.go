package hx711

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Median returns the middle value of samples. For an even count it returns the
// mean of the two middle values, truncated toward zero. samples is not modified.
func Median(samples []int32) int32 {
	n := len(samples)
	switch n {
	case 0:
		return 0
	case 1:
		return samples[0]
	}

	sorted := make([]int32, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if n%2 == 1 {
		return sorted[n/2]
	}
	return int32((int64(sorted[n/2-1]) + int64(sorted[n/2])) / 2)
}

func (s *Sensor) medianOf(ctx context.Context, n int) (int32, error) {
	if n <= 0 {
		return 0, errors.Wrapf(ErrConfiguration, "sample count must be positive, got %d", n)
	}

	samples := make([]int32, 0, n)
	for i := 0; i < n; i++ {
		raw, err := s.readRaw(ctx)
		if err != nil {
			return 0, errors.Wrapf(err, "read %d of %d failed", i+1, n)
		}
		samples = append(samples, raw)
	}

	return Median(samples), nil
}
