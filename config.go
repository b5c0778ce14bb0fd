package swscale

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type InfluxConfig struct {
	Host         string `yaml:"host"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	Measurement  string `yaml:"measurement"`
}

// LoadConfig reads the service config. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON.
func LoadConfig(path string) (*Scale, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading config file %s", path)
	}

	sc := &Scale{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, sc)
	default:
		err = json.Unmarshal(data, sc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed unmarshalling config %s", path)
	}

	if len(sc.LogLevel) > 0 {
		level, err := log.ParseLevel(sc.LogLevel)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid log level %q", sc.LogLevel)
		}
		log.SetLevel(level)
	}

	return sc, nil
}
