/*
Copyright © 2026 the Fallout authors.
This file is part of Fallout.

Fallout is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Fallout is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Fallout.  If not, see <http://www.gnu.org/licenses/>.
*/

package falloututil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/lnashier/viper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/model"
)

// scenarioKeys are the configuration options a client may set in a
// simulation request.
var scenarioKeys = []string{
	"Yield", "FissionFraction", "Burst", "Height", "Lat", "Lon", "Place",
	"WindSpeed", "WindDirection", "WindProfile", "Model", "Start", "Duration",
	"Shelter", "DecayExponent", "Population", "CellSize", "HalfWidth",
}

// maxRequestBytes limits the size of a simulation request body.
const maxRequestBytes = 1 << 20

// ServerConfig configures a Server.
type ServerConfig struct {
	// CacheSize is the number of results kept in memory.
	CacheSize int

	// CacheDir, if not empty, is where every result is also stored.
	CacheDir string

	// Places are the named locations clients may use. Nil means the
	// default places.
	Places *fallout.Gazetteer
}

// Server is an HTTP service that runs simulations and answers queries
// about their results. Its endpoints are:
//
//	POST /simulate                 run a scenario given as a JSON object
//	                               with the same keys as the run command
//	GET  /results/{id}             summary of a result
//	GET  /results/{id}/dose        dose at lat and lon, with optional entry,
//	                               stay and shelter
//	GET  /results/{id}/report      spreadsheet report
//	GET  /places                   known places
//	GET  /shelters                 shelter transmission factors
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics
type Server struct {
	Log logrus.FieldLogger

	handler http.Handler
	sims    *model.Cache
	metrics *Metrics
	places  *fallout.Gazetteer

	mu      sync.Mutex
	results *lru.Cache // id -> *entry
}

type entry struct {
	result   *fallout.Result
	computed time.Time
}

// NewServer creates a server.
func NewServer(cfg ServerConfig, m *Metrics) *Server {
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1
	}
	if cfg.Places == nil {
		cfg.Places = fallout.DefaultGazetteer()
	}
	mux := http.NewServeMux()
	s := &Server{
		Log:     logrus.StandardLogger(),
		handler: mux,
		sims:    model.NewCache(cfg.CacheSize, cfg.CacheDir),
		metrics: m,
		places:  cfg.Places,
		results: lru.New(cfg.CacheSize),
	}
	mux.HandleFunc("POST /simulate", s.handleSimulate)
	mux.HandleFunc("GET /results/{id}", s.handleResult)
	mux.HandleFunc("GET /results/{id}/dose", s.handleDose)
	mux.HandleFunc("GET /results/{id}/report", s.handleReport)
	mux.HandleFunc("GET /results/{id}/map", s.handleMap)
	mux.HandleFunc("GET /places", s.handlePlaces)
	mux.HandleFunc("GET /shelters", s.handleShelters)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// ServeHTTP delegates to the underlying handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errorStatus returns the HTTP status for a simulation or query error.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, fallout.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, fallout.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// scenarioConfig returns a configuration holding the defaults of the run
// command overridden by the values in body.
func (s *Server) scenarioConfig(body map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	allowed := make(map[string]string, len(scenarioKeys))
	for _, k := range scenarioKeys {
		allowed[strings.ToLower(k)] = k
	}
	for _, o := range options {
		if _, ok := allowed[strings.ToLower(o.name)]; ok {
			v.SetDefault(o.name, o.defaultVal)
		}
	}
	for k, val := range body {
		name, ok := allowed[strings.ToLower(k)]
		if !ok {
			return nil, fallout.InvalidParameterError{Name: k, Reason: "not a scenario option"}
		}
		v.Set(name, val)
	}
	// Places are resolved from the server's gazetteer.
	if name := v.GetString("Place"); name != "" {
		p, err := s.places.Lookup(name)
		if err != nil {
			return nil, err
		}
		v.Set("Lat", p.Lat)
		v.Set("Lon", p.Lon)
		v.Set("Place", "")
	}
	return v, nil
}

// SimulationResponse is the reply to a simulation request.
type SimulationResponse struct {
	ID          string
	Computed    time.Time
	Summary     fallout.Summary
	Divergences []string `json:",omitempty"`
	Notes       []string `json:",omitempty"`
}

func newSimulationResponse(id string, e *entry) (SimulationResponse, error) {
	sum, err := e.result.Summary()
	if err != nil {
		return SimulationResponse{}, err
	}
	out := SimulationResponse{ID: id, Computed: e.computed, Summary: sum, Notes: e.result.Notes}
	for _, d := range e.result.Divergences {
		out.Divergences = append(out.Divergences, d.Error())
	}
	return out, nil
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, fmt.Errorf("falloututil: decoding request: %w", err))
		return
	}
	modelName := "unknown"
	fail := func(err error) {
		outcome := "error"
		if errors.Is(err, fallout.ErrInvalidParameters) {
			outcome = "invalid"
		}
		s.metrics.Simulations.WithLabelValues(modelName, outcome).Inc()
		s.Log.WithFields(logrus.Fields{"model": modelName, "error": err}).Warn("simulation failed")
		writeError(w, errorStatus(err), err)
	}
	cfg, err := s.scenarioConfig(body)
	if err != nil {
		fail(err)
		return
	}
	sc, err := LoadScenario(r.Context(), cfg)
	if err != nil {
		fail(err)
		return
	}
	modelName = sc.Model.Kind.String()
	req := sc.Request()
	id := req.Key()

	s.mu.Lock()
	v, ok := s.results.Get(id)
	s.mu.Unlock()
	if ok {
		s.metrics.ResultCache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.ResultCache.WithLabelValues("miss").Inc()
		start := clock.Now()
		res, err := s.sims.Run(r.Context(), req)
		if err != nil {
			fail(err)
			return
		}
		elapsed := clock.Since(start)
		s.metrics.SimulationDuration.WithLabelValues(modelName).Observe(elapsed.Seconds())
		v = &entry{result: res, computed: clock.Now()}
		s.mu.Lock()
		s.results.Add(id, v)
		s.mu.Unlock()
		s.Log.WithFields(logrus.Fields{
			"id":       id,
			"model":    modelName,
			"yield":    sc.Params.Yield,
			"duration": elapsed,
		}).Info("simulation complete")
	}
	s.metrics.Simulations.WithLabelValues(modelName, "success").Inc()
	resp, err := newSimulationResponse(id, v.(*entry))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookup returns the result with the id in the request path, writing an
// error if there is none.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *entry, bool) {
	id := r.PathValue("id")
	s.mu.Lock()
	v, ok := s.results.Get(id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("falloututil: no result %q; it may have expired", id))
		return id, nil, false
	}
	return id, v.(*entry), true
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp, err := newSimulationResponse(id, e)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DoseResponse is the reply to a dose query. Arrival is absent where no
// fallout arrives.
type DoseResponse struct {
	Lat, Lon   float64
	Entry      float64  `units:"h"`
	Stay       float64  `units:"h"`
	Shelter    float64  `desc:"Transmission factor"`
	DoseRateH1 float64  `units:"R/h"`
	Arrival    *float64 `json:",omitempty" units:"h"`
	Dose       float64  `units:"R"`
	Effect     string
}

// floatParam parses the query parameter name, or returns def if it is
// missing.
func floatParam(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fallout.InvalidParameterError{Name: name, Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return v, nil
}

func (s *Server) handleDose(w http.ResponseWriter, r *http.Request) {
	_, e, ok := s.lookup(w, r)
	if !ok {
		s.metrics.Queries.WithLabelValues("unknown").Inc()
		return
	}
	q := DoseResponse{}
	var err error
	fail := func(err error) {
		outcome := "invalid"
		if errors.Is(err, fallout.ErrOutOfRange) {
			outcome = "outside"
		}
		s.metrics.Queries.WithLabelValues(outcome).Inc()
		writeError(w, errorStatus(err), err)
	}
	if name := r.URL.Query().Get("place"); name != "" {
		p, err := s.places.Lookup(name)
		if err != nil {
			fail(err)
			return
		}
		q.Lat, q.Lon = p.Lat, p.Lon
	} else {
		if q.Lat, err = floatParam(r, "lat", math.NaN()); err != nil {
			fail(err)
			return
		}
		if q.Lon, err = floatParam(r, "lon", math.NaN()); err != nil {
			fail(err)
			return
		}
		if math.IsNaN(q.Lat) || math.IsNaN(q.Lon) {
			fail(fallout.InvalidParameterError{Name: "lat/lon", Reason: "a place or both lat and lon are required"})
			return
		}
	}
	if q.Entry, err = floatParam(r, "entry", e.result.Window.Start); err != nil {
		fail(err)
		return
	}
	if q.Stay, err = floatParam(r, "stay", e.result.Window.Duration); err != nil {
		fail(err)
		return
	}
	if q.Shelter, err = shelter(r.URL.Query().Get("shelter")); err != nil {
		fail(fallout.InvalidParameterError{Name: "shelter", Reason: err.Error()})
		return
	}
	p, err := e.result.StayDose(q.Lat, q.Lon, q.Entry, q.Stay, q.Shelter)
	if err != nil {
		fail(err)
		return
	}
	q.DoseRateH1, q.Dose, q.Effect = p.DoseRateH1, p.Dose, p.Effect.String()
	if !math.IsInf(p.Arrival, 0) {
		a := p.Arrival
		q.Arrival = &a
	}
	s.metrics.Queries.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "fallout-"+id+".xlsx"))
	if err := e.result.WriteReport(w, s.places.Places()); err != nil {
		s.Log.WithFields(logrus.Fields{"id": id, "error": err}).Error("writing report")
	}
}

// handleMap draws the field named by the field parameter, by default the
// dose.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	id, e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	field := r.URL.Query().Get("field")
	if field == "" {
		field = fallout.IntegratedDoseField
	}
	if _, err := e.result.Field(field); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteMap(&buf, e.result, field); err != nil {
		s.Log.WithFields(logrus.Fields{"id": id, "field": field, "error": err}).Error("drawing map")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) handlePlaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.places.Places())
}

func (s *Server) handleShelters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, casualty.Shelters)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": fallout.Version})
}
