package hx711

import (
	"time"
)

// Reading is a snapshot of the last sample taken by the sampling loop.
type Reading struct {
	Weight    float64
	RawValue  int32
	Timestamp time.Time
}

// Observer receives every new reading. Observers run on the sampling
// goroutine and should return quickly.
type Observer func(Reading)

// Attributes returns the reading as named values.
func (r Reading) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"weight":    r.Weight,
		"raw_value": r.RawValue,
	}
}

// Age is the time since the reading was taken.
func (r Reading) Age() time.Duration {
	if r.Timestamp.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(r.Timestamp)
}

// IsStale reports whether the reading is older than maxAge, or was never taken.
func (r Reading) IsStale(maxAge time.Duration) bool {
	return r.Timestamp.IsZero() || r.Age() > maxAge
}
