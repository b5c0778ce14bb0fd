package swscale

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/hubertat/swscale/hx711"
)

const httpTimeoutsMs = 3000

// WeightResponse is the body of GET /api/weight and of published readings.
// Timestamp is in unix seconds.
type WeightResponse struct {
	Weight    float64 `json:"weight"`
	RawValue  int32   `json:"raw_value"`
	Timestamp float64 `json:"timestamp"`
	Stale     bool    `json:"stale"`
	State     string  `json:"state"`
}

func newWeightResponse(r hx711.Reading, state hx711.State, stale bool) WeightResponse {
	response := WeightResponse{
		Weight:   r.Weight,
		RawValue: r.RawValue,
		Stale:    stale,
		State:    state.String(),
	}
	if !r.Timestamp.IsZero() {
		response.Timestamp = float64(r.Timestamp.UnixNano()) / float64(time.Second)
	}
	return response
}

type calibrationRequest struct {
	Offset        *hx711.Number `json:"offset"`
	ReferenceUnit *hx711.Number `json:"reference_unit"`
	Times         *hx711.Number `json:"times"`
	Gain          *hx711.Number `json:"gain"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, hx711.ErrConfiguration) || errors.Is(err, hx711.ErrSerialization) {
		status = http.StatusBadRequest
	}
	if errors.Is(err, hx711.ErrNoReading) {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeCalibration(r *http.Request) (req calibrationRequest, err error) {
	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		err = errors.Wrapf(hx711.ErrSerialization, "invalid request body: %v", err)
	}
	return
}

func missingKey(key string) error {
	return errors.Wrapf(hx711.ErrSerialization, "request body has no %s", key)
}

// Handler returns the HTTP API of the scale.
func (sc *Scale) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/api/weight", sc.handleWeight)
	router.GET("/api/reference-unit", sc.handleReferenceUnit)
	router.POST("/api/reference-unit", sc.handleReferenceUnit)
	router.GET("/api/offset", sc.handleOffset)
	router.POST("/api/offset", sc.handleOffset)
	router.GET("/api/times", sc.handleTimes)
	router.POST("/api/times", sc.handleTimes)
	router.GET("/api/gain", sc.handleGain)
	router.POST("/api/gain", sc.handleGain)
	router.POST("/api/tare", sc.handleTare)
	router.POST("/api/reset", sc.handleReset)
	router.GET("/api/parameters", sc.handleGetParameters)
	router.PUT("/api/parameters", sc.handlePutParameters)

	return router
}

func (sc *Scale) handleWeight(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	reading := sc.sensor.Reading()
	writeJSON(w, http.StatusOK, newWeightResponse(reading, sc.sensor.State(), reading.IsStale(sc.staleAfter)))
}

func (sc *Scale) handleReferenceUnit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Method == http.MethodPost {
		req, err := decodeCalibration(r)
		if err == nil && req.ReferenceUnit == nil {
			err = missingKey("reference_unit")
		}
		if err != nil {
			writeError(w, err)
			return
		}
		sc.sensor.SetReferenceUnit(float64(*req.ReferenceUnit))
		sc.persist()
	}

	writeJSON(w, http.StatusOK, map[string]float64{"reference_unit": sc.sensor.ReferenceUnit()})
}

func (sc *Scale) handleOffset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Method == http.MethodPost {
		req, err := decodeCalibration(r)
		if err == nil && req.Offset == nil {
			err = missingKey("offset")
		}
		if err != nil {
			writeError(w, err)
			return
		}
		sc.sensor.SetOffset(float64(*req.Offset))
		sc.persist()
	}

	writeJSON(w, http.StatusOK, map[string]float64{"offset": sc.sensor.Offset()})
}

func (sc *Scale) handleTimes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Method == http.MethodPost {
		req, err := decodeCalibration(r)
		if err == nil && req.Times == nil {
			err = missingKey("times")
		}
		var times int
		if err == nil {
			times, err = req.Times.Int()
		}
		if err == nil {
			err = sc.sensor.SetTimes(times)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		sc.persist()
	}

	writeJSON(w, http.StatusOK, map[string]int{"times": sc.sensor.Times()})
}

func (sc *Scale) handleGain(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if r.Method == http.MethodPost {
		req, err := decodeCalibration(r)
		if err == nil && req.Gain == nil {
			err = missingKey("gain")
		}
		var gain int
		if err == nil {
			gain, err = req.Gain.Int()
		}
		if err == nil {
			err = sc.sensor.SetGain(gain)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		sc.persist()
	}

	writeJSON(w, http.StatusOK, map[string]int{"gain": int(sc.sensor.Gain())})
}

func (sc *Scale) handleTare(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := sc.tare(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{"offset": sc.sensor.Offset()})
}

func (sc *Scale) handleReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sc.sensor.ForceReset()

	writeJSON(w, http.StatusAccepted, map[string]string{"state": sc.sensor.State().String()})
}

func (sc *Scale) handleGetParameters(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, sc.sensor.Parameters())
}

func (sc *Scale) handlePutParameters(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	err := sc.sensor.ImportParameters(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	sc.persist()

	writeJSON(w, http.StatusOK, sc.sensor.Parameters())
}

// StartHttp serves the API on HttpAddr until ctx is done.
func (sc *Scale) StartHttp(ctx context.Context) error {
	if sc.sensor == nil {
		return errors.New("sensor not initialized")
	}

	httpTimeout := httpTimeoutsMs * time.Millisecond
	server := &http.Server{
		Addr:              sc.HttpAddr,
		Handler:           sc.Handler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	sc.getLogger().Info("http api listening", "addr", sc.HttpAddr)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "http server failed")
}
