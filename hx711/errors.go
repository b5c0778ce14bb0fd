package hx711

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration marks invalid calibration or sampling settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrSerialization marks a malformed parameter document.
	ErrSerialization = errors.New("serialization error")
	// ErrNoReading marks an operation that needs a sample taken first.
	ErrNoReading = errors.New("no reading yet")
)
