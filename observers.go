package swscale

import (
	"encoding/json"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"

	"github.com/hubertat/swscale/hx711"
)

const defaultMeasurement = "scale"

type pointWriter interface {
	WritePoint(point *write.Point)
}

// observe is called by the sampling loop with every new reading.
func (sc *Scale) observe(r hx711.Reading) {
	sc.getLogger().Info("sensor value", "weight", r.Weight, "raw_value", r.RawValue)

	if sc.publisher != nil {
		payload, err := json.Marshal(newWeightResponse(r, sc.sensor.State(), false))
		if err == nil {
			err = sc.publisher.Publish(sc.topic("reading"), payload)
		}
		if err != nil {
			sc.getLogger().Warn("failed to publish reading", "err", err)
		}
	}

	if sc.pointWriter != nil {
		sc.pointWriter.WritePoint(sc.influxPoint(r))
	}
}

func (sc *Scale) influxPoint(r hx711.Reading) *write.Point {
	measurement := defaultMeasurement
	if sc.Influx != nil && len(sc.Influx.Measurement) > 0 {
		measurement = sc.Influx.Measurement
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{"name": sc.name()},
		map[string]interface{}{
			"weight":    r.Weight,
			"raw_value": r.RawValue,
		},
		r.Timestamp,
	)
}

// InitInflux starts writing every reading to InfluxDB.
func (sc *Scale) InitInflux() error {
	if sc.Influx == nil || len(sc.Influx.Host) == 0 {
		return errors.New("influx host not set")
	}
	if len(sc.Influx.Bucket) == 0 || len(sc.Influx.Organization) == 0 {
		return errors.New("influx bucket and organization are required")
	}

	sc.influxClient = influxdb2.NewClient(sc.Influx.Host, sc.Influx.Token)
	writeApi := sc.influxClient.WriteAPI(sc.Influx.Organization, sc.Influx.Bucket)

	go func() {
		for err := range writeApi.Errors() {
			sc.getLogger().Warn("influx write failed", "err", err)
		}
	}()

	sc.pointWriter = writeApi
	return nil
}

func (sc *Scale) closeInflux() {
	if sc.influxClient == nil {
		return
	}
	sc.influxClient.WriteAPI(sc.Influx.Organization, sc.Influx.Bucket).Flush()
	sc.influxClient.Close()
}
