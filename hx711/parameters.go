package hx711

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Parameters is the persisted calibration document.
type Parameters struct {
	Offset        float64 `json:"offset"`
	ReferenceUnit float64 `json:"reference_unit"`
	Times         int     `json:"times"`
	Gain          int     `json:"gain"`
}

// parametersDocument is what import accepts: every key optional, numbers may
// be quoted.
type parametersDocument struct {
	Offset        *Number `json:"offset"`
	ReferenceUnit *Number `json:"reference_unit"`
	Times         *Number `json:"times"`
	Gain          *Number `json:"gain"`
}

func (s *Sensor) Parameters() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Parameters{
		Offset:        s.cal.offset,
		ReferenceUnit: s.cal.referenceUnit,
		Times:         s.cal.times,
		Gain:          int(s.cal.gain),
	}
}

// ExportParameters writes the full parameter document to w.
func (s *Sensor) ExportParameters(w io.Writer) error {
	err := json.NewEncoder(w).Encode(s.Parameters())
	if err != nil {
		return errors.Wrap(err, "failed to write parameters")
	}
	return nil
}

// ImportParameters reads a parameter document from r. Keys missing from the
// document keep their current value. The document is validated as a whole
// before anything is applied.
func (s *Sensor) ImportParameters(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "failed to read parameter document")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return errors.Wrap(ErrSerialization, "parameter document must be a JSON object")
	}

	doc := parametersDocument{}
	err = json.Unmarshal(data, &doc)
	if err != nil {
		return errors.Wrapf(ErrSerialization, "malformed parameter document: %v", err)
	}

	var (
		gain  Gain
		times int
	)
	if doc.Gain != nil {
		value, err := doc.Gain.Int()
		if err != nil {
			return errors.Wrap(err, "invalid gain")
		}
		if gain, err = ParseGain(value); err != nil {
			return err
		}
	}
	if doc.Times != nil {
		if times, err = doc.Times.Int(); err != nil {
			return errors.Wrap(err, "invalid times")
		}
		if err = validateTimes(times); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Offset != nil {
		s.cal.offset = float64(*doc.Offset)
	}
	if doc.ReferenceUnit != nil {
		s.cal.referenceUnit = float64(*doc.ReferenceUnit)
	}
	if doc.Times != nil {
		s.cal.times = times
	}
	if doc.Gain != nil {
		s.cal.gain = gain
	}

	return nil
}

const parametersFileMode os.FileMode = 0644

// ExportParametersFile replaces path with the current parameters. The
// document is written to a temporary file first and renamed into place,
// keeping the permissions of the file it replaces.
func (s *Sensor) ExportParametersFile(path string) (err error) {
	mode := parametersFileMode
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", path)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = s.ExportParameters(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return errors.Wrapf(err, "failed to set mode of %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move parameters into %s", path)
	}
	return nil
}

func (s *Sensor) ImportParametersFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open parameter file %s", path)
	}
	defer file.Close()

	return errors.Wrapf(s.ImportParameters(file), "failed to import %s", path)
}
