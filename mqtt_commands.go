package swscale

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/swscale/hx711"
	"github.com/hubertat/swscale/mqtt"
)

func (sc *Scale) topic(parts ...string) string {
	return strings.Join(append([]string{sc.name()}, parts...), "/")
}

// InitMqtt connects to MqttBroker, publishes readings to <name>/reading and
// accepts calibration commands.
func (sc *Scale) InitMqtt(ctx context.Context) (err error) {
	if len(sc.MqttBroker) == 0 {
		return errors.New("mqtt broker not set")
	}
	if sc.sensor == nil {
		return errors.New("sensor not initialized")
	}

	mc, err := mqtt.NewMqttClient(sc.MqttBroker, sc.name())
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt client")
	}
	sc.mqttClient = mc

	err = mc.Connect(ctx, sc.mqttHandlers())
	if err != nil {
		return errors.Wrap(err, "failed to connect to mqtt broker")
	}

	sc.publisher = mc
	return nil
}

func (sc *Scale) mqttHandlers() []mqtt.MqttHandler {
	setNumber := func(key string, apply func(float64) error) mqtt.HandlerFunc {
		return mqtt.HandlerFunc{
			Topic: sc.topic("set", key),
			Handle: func(payload []byte) {
				value, err := hx711.ParseNumber(string(payload))
				if err == nil {
					err = apply(value)
				}
				if err != nil {
					sc.getLogger().Warn("rejected mqtt command", "key", key, "payload", string(payload), "err", err)
					return
				}
				sc.persist()
			},
		}
	}

	asInt := func(value float64) (int, error) {
		return hx711.Number(value).Int()
	}

	return []mqtt.MqttHandler{
		setNumber("offset", func(v float64) error {
			sc.sensor.SetOffset(v)
			return nil
		}),
		setNumber("reference_unit", func(v float64) error {
			sc.sensor.SetReferenceUnit(v)
			return nil
		}),
		setNumber("times", func(v float64) error {
			times, err := asInt(v)
			if err != nil {
				return err
			}
			return sc.sensor.SetTimes(times)
		}),
		setNumber("gain", func(v float64) error {
			gain, err := asInt(v)
			if err != nil {
				return err
			}
			return sc.sensor.SetGain(gain)
		}),
		mqtt.HandlerFunc{
			Topic: sc.topic("tare"),
			Handle: func(payload []byte) {
				sc.tare()
			},
		},
		mqtt.HandlerFunc{
			Topic: sc.topic("reset"),
			Handle: func(payload []byte) {
				sc.sensor.ForceReset()
			},
		},
	}
}
