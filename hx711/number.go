package hx711

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Number is a float that decodes from a JSON number or a numeric string,
// so "0.002" and 0.002 are both accepted.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	value, err := ParseNumber(text)
	if err != nil {
		return err
	}
	*n = Number(value)
	return nil
}

// ParseNumber coerces numeric-like input to a finite float64.
func ParseNumber(value interface{}) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case Number:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, errors.Wrapf(ErrSerialization, "not a number: %q", v.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrSerialization, "not a number: %q", v)
		}
		f = parsed
	default:
		return 0, errors.Wrapf(ErrSerialization, "not a number: %v (%T)", value, value)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrapf(ErrSerialization, "number out of range: %v", f)
	}
	return f, nil
}

// Int returns n as an int, failing for fractional values.
func (n Number) Int() (int, error) {
	f := float64(n)
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, errors.Wrapf(ErrConfiguration, "%v is not an integer", f)
	}
	return int(f), nil
}
