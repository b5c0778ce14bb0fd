package swscale

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/swscale/hx711"
)

const remoteScaleTimeout = 2 * time.Second

// RemoteScale talks to the HTTP API of a running scale.
type RemoteScale struct {
	Host    string
	Timeout time.Duration

	client *http.Client
}

func (rs *RemoteScale) do(ctx context.Context, method, path string, body, out interface{}) error {
	if rs.client == nil {
		timeout := rs.Timeout
		if timeout == 0 {
			timeout = remoteScaleTimeout
		}
		rs.client = &http.Client{Timeout: timeout}
	}

	reqUrl, err := url.JoinPath(rs.Host, path)
	if err != nil {
		return errors.Wrapf(err, "RemoteScale failed to join Host url with %s", path)
	}

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "RemoteScale failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqUrl, reader)
	if err != nil {
		return errors.Wrap(err, "RemoteScale error preparing request")
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := rs.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "RemoteScale %s %s failed", method, path)
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		apiErr := map[string]string{}
		json.NewDecoder(response.Body).Decode(&apiErr)
		return errors.Errorf("RemoteScale %s %s failed (response code: %d): %s", method, path, response.StatusCode, apiErr["error"])
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(response.Body).Decode(out), "RemoteScale: decoding response failed")
}

func (rs *RemoteScale) Reading(ctx context.Context) (reading WeightResponse, err error) {
	err = rs.do(ctx, http.MethodGet, "api/weight", nil, &reading)
	return
}

func (rs *RemoteScale) Parameters(ctx context.Context) (params hx711.Parameters, err error) {
	err = rs.do(ctx, http.MethodGet, "api/parameters", nil, &params)
	return
}

// ImportParameters sends a parameter document to the remote scale as is, so
// keys missing from doc keep their remote values. It returns the parameters
// in effect afterwards.
func (rs *RemoteScale) ImportParameters(ctx context.Context, doc io.Reader) (hx711.Parameters, error) {
	updated := hx711.Parameters{}
	err := rs.do(ctx, http.MethodPut, "api/parameters", doc, &updated)
	return updated, err
}

// Tare zeroes the remote scale and returns the new offset.
func (rs *RemoteScale) Tare(ctx context.Context) (float64, error) {
	out := map[string]float64{}
	err := rs.do(ctx, http.MethodPost, "api/tare", nil, &out)
	return out["offset"], err
}

func (rs *RemoteScale) ForceReset(ctx context.Context) error {
	return rs.do(ctx, http.MethodPost, "api/reset", nil, nil)
}

func (rs *RemoteScale) SetOffset(ctx context.Context, offset float64) error {
	return rs.do(ctx, http.MethodPost, "api/offset", map[string]float64{"offset": offset}, nil)
}

func (rs *RemoteScale) SetReferenceUnit(ctx context.Context, referenceUnit float64) error {
	return rs.do(ctx, http.MethodPost, "api/reference-unit", map[string]float64{"reference_unit": referenceUnit}, nil)
}

func (rs *RemoteScale) SetTimes(ctx context.Context, times int) error {
	return rs.do(ctx, http.MethodPost, "api/times", map[string]int{"times": times}, nil)
}

func (rs *RemoteScale) SetGain(ctx context.Context, gain int) error {
	return rs.do(ctx, http.MethodPost, "api/gain", map[string]int{"gain": gain}, nil)
}
