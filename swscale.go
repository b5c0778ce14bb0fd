package swscale

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/pkg/errors"

	"github.com/hubertat/swscale/drivers"
	"github.com/hubertat/swscale/hx711"
	"github.com/hubertat/swscale/mqtt"
)

const defaultName = "swscale"
const defaultStaleAfter = 5 * time.Second

// Scale is the service root: it is unmarshalled from the config file and
// wires one HX711 sensor to the HTTP API, MQTT, InfluxDB and HomeKit.
type Scale struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`

	Sensor        hx711.Config `yaml:"sensor"`
	ParameterFile string       `yaml:"parameter_file"`
	StaleAfter    string       `yaml:"stale_after"`
	SampleEvery   string       `yaml:"sample_every"`

	Driver     string             `yaml:"driver"`
	Gpio       *drivers.GpIO      `yaml:"gpio"`
	FakeDriver *drivers.MockHx711 `yaml:"fake_driver"`

	HttpAddr   string        `yaml:"http_addr"`
	MqttBroker string        `yaml:"mqtt_broker"`
	Influx     *InfluxConfig `yaml:"influx"`

	HkPin       string `yaml:"hk_pin"`
	HkDirectory string `yaml:"hk_directory"`
	HkAddress   string `yaml:"hk_address"`
	HkDebug     bool   `yaml:"hk_debug"`

	driver     drivers.IoDriver
	sensor     *hx711.Sensor
	logger     *log.Logger
	staleAfter time.Duration

	mqttClient *mqtt.MqttClient
	publisher  mqtt.Publisher

	influxClient influxdb2.Client
	pointWriter  pointWriter

	persistMu sync.Mutex
}

func (sc *Scale) name() string {
	if len(sc.Name) > 0 {
		return sc.Name
	}
	return defaultName
}

func (sc *Scale) getLogger() *log.Logger {
	if sc.logger == nil {
		sc.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix:          sc.name() + ": ",
			Level:           log.GetLevel(),
			ReportTimestamp: true,
		})
	}
	return sc.logger
}

// SetLogger replaces the service logger, the sensor logs through it as well.
func (sc *Scale) SetLogger(logger *log.Logger) {
	sc.logger = logger
}

// GetSensor returns the sensor, nil before InitSensor.
func (sc *Scale) GetSensor() *hx711.Sensor {
	return sc.sensor
}

func (sc *Scale) selectDriver() (drivers.IoDriver, error) {
	if sc.Gpio != nil && sc.FakeDriver != nil {
		return nil, errors.New("both gpio and fake driver configured, pick one")
	}
	if sc.Gpio != nil {
		return sc.Gpio, nil
	}
	if sc.FakeDriver != nil {
		return sc.FakeDriver, nil
	}

	driver, found := drivers.MapAllIoDrivers()[strings.ToLower(sc.Driver)]
	if !found {
		return nil, errors.Errorf("no io driver configured (driver name: %q)", sc.Driver)
	}
	return driver, nil
}

// InitDrivers sets up the data pin as input and the clock pin as output.
func (sc *Scale) InitDrivers(ctx context.Context) error {
	driver, err := sc.selectDriver()
	if err != nil {
		return err
	}

	err = driver.Setup(ctx, []uint16{sc.Sensor.DataPin}, []uint16{sc.Sensor.ClockPin})
	if err != nil {
		return errors.Wrapf(err, "failed to setup %s driver", driver)
	}

	sc.driver = driver
	return nil
}

// InitSensor creates the sensor on the set up driver and loads the parameter
// file. A missing parameter file is created from the configured values.
func (sc *Scale) InitSensor() error {
	if sc.driver == nil {
		return errors.New("drivers not initialized")
	}

	sc.staleAfter = defaultStaleAfter
	if len(sc.StaleAfter) > 0 {
		d, err := time.ParseDuration(sc.StaleAfter)
		if err != nil {
			return errors.Wrapf(err, "invalid stale_after %q", sc.StaleAfter)
		}
		sc.staleAfter = d
	}

	timing := hx711.Timing{}
	if len(sc.SampleEvery) > 0 {
		d, err := time.ParseDuration(sc.SampleEvery)
		if err != nil {
			return errors.Wrapf(err, "invalid sample_every %q", sc.SampleEvery)
		}
		timing.SampleInterval = d
	}

	sensorLogger := sc.getLogger().WithPrefix(sc.name() + " hx711: ")
	sensor, err := hx711.New(sc.driver, sc.Sensor,
		hx711.WithLogger(sensorLogger),
		hx711.WithTiming(timing),
		hx711.WithObserver(sc.observe),
	)
	if err != nil {
		return errors.Wrap(err, "failed to init hx711 sensor")
	}
	sc.sensor = sensor

	if len(sc.ParameterFile) == 0 {
		return nil
	}

	err = sensor.ImportParametersFile(sc.ParameterFile)
	if errors.Is(err, os.ErrNotExist) {
		sc.getLogger().Warn("parameter file not found, creating it", "path", sc.ParameterFile)
		return sc.persist()
	}
	if err != nil {
		return err
	}

	sc.getLogger().Info("parameters imported", "path", sc.ParameterFile, "params", sensor.Parameters())
	return nil
}

// Start begins sampling. It returns immediately.
func (sc *Scale) Start(ctx context.Context) error {
	if sc.sensor == nil {
		return errors.New("sensor not initialized")
	}
	return sc.sensor.Start(ctx)
}

// tare zeroes the scale and saves the new offset. A stale reading is still
// used, with a warning.
func (sc *Scale) tare() error {
	reading := sc.sensor.Reading()
	if !reading.Timestamp.IsZero() && reading.IsStale(sc.staleAfter) {
		sc.getLogger().Warn("tare on a stale reading", "age", reading.Age(), "raw_value", reading.RawValue)
	}

	err := sc.sensor.Tare()
	if err != nil {
		sc.getLogger().Warn("tare rejected", "err", err)
		return err
	}
	sc.persist()
	return nil
}

// persist writes the current calibration to the parameter file, if any.
func (sc *Scale) persist() error {
	if len(sc.ParameterFile) == 0 {
		return nil
	}

	sc.persistMu.Lock()
	defer sc.persistMu.Unlock()

	err := sc.sensor.ExportParametersFile(sc.ParameterFile)
	if err != nil {
		sc.getLogger().Error("failed to save parameters", "path", sc.ParameterFile, "err", err)
		return err
	}
	return nil
}

func (sc *Scale) Close() (err error) {
	if sc.sensor != nil {
		sc.sensor.Stop()
	}

	if sc.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if mqttErr := sc.mqttClient.Disconnect(ctx); mqttErr != nil {
			err = errors.Wrap(mqttErr, "mqtt disconnect failed")
		}
	}

	sc.closeInflux()

	if sc.driver != nil {
		closeErr := sc.driver.Close()
		if closeErr != nil {
			if err != nil {
				err = errors.Wrap(err, closeErr.Error())
			} else {
				err = closeErr
			}
		}
	}

	return
}

func (sc *Scale) PrintIoStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active io driver ===")
	if sc.driver != nil {
		inputs, outputs := sc.driver.GetAllIo()
		fmt.Fprintf(writer, "| driver: %s\n", sc.driver)
		fmt.Fprintf(writer, "| data (in) pins: %v\n", inputs)
		fmt.Fprintf(writer, "| clock (out) pins: %v\n", outputs)
	}
	if sc.sensor != nil {
		params := sc.sensor.Parameters()
		fmt.Fprintf(writer, "| gain: %d, times: %d\n", params.Gain, params.Times)
		fmt.Fprintf(writer, "| offset: %g, reference unit: %g\n", params.Offset, params.ReferenceUnit)
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
