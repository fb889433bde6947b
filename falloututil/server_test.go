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
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/casualty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *Metrics) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(testTime))
	t.Cleanup(func() { SetClock(nil) })
	m := NewMetricsForTesting()
	s := NewServer(ServerConfig{CacheSize: 4}, m)
	l := logrus.New()
	l.Out = io.Discard
	s.Log = l
	return s, m
}

func do(s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		buf := new(bytes.Buffer)
		json.NewEncoder(buf).Encode(b)
		r = buf
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

var testScenario = map[string]interface{}{
	"Yield":     5,
	"Model":     "WSEG-10",
	"CellSize":  2000,
	"HalfWidth": 30000,
}

func simulate(t *testing.T, s *Server) SimulationResponse {
	t.Helper()
	rec := do(s, http.MethodPost, "/simulate", testScenario)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SimulationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, fallout.Version, body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSimulate(t *testing.T) {
	s, m := newTestServer(t)
	first := simulate(t, s)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "WSEG-10", first.Summary.Model)
	assert.Equal(t, 5.0, first.Summary.Yield)
	assert.True(t, first.Computed.Equal(testTime))
	assert.Greater(t, first.Summary.PeakDose, 0.0)
	assert.LessOrEqual(t, first.Summary.PeakLocation.Lon, 77.2090, "the plume blows west")
	assert.NotEmpty(t, first.Notes)

	second := simulate(t, s)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultCache.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Simulations.WithLabelValues("WSEG-10", "success")))

	rec := do(s, http.MethodGet, "/results/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got SimulationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, first.Summary, got.Summary)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/results/nope", nil).Code)
}

func TestSimulateInvalid(t *testing.T) {
	s, m := newTestServer(t)
	tests := map[string]interface{}{
		"negative yield": map[string]interface{}{"Yield": -1},
		"unknown option": map[string]interface{}{"OutputFile": "/tmp/x.shp"},
		"unknown place":  map[string]interface{}{"Place": "Atlantis"},
		"bad window":     map[string]interface{}{"Duration": -1},
		"not json":       "{yield",
	}
	for name, body := range tests {
		rec := do(s, http.MethodPost, "/simulate", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		var b map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), name)
		assert.NotEmpty(t, b["error"], name)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Simulations.WithLabelValues("unknown", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Simulations.WithLabelValues("DELFIC", "invalid")))
}

func TestSimulateTooLarge(t *testing.T) {
	s, m := newTestServer(t)
	body := `{"Yield": 5, "Place": "` + strings.Repeat("a", maxRequestBytes) + `"}`
	rec := do(s, http.MethodPost, "/simulate", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var b map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Contains(t, b["error"], "too large")
	assert.Zero(t, testutil.CollectAndCount(m.Simulations))
}

func TestDose(t *testing.T) {
	s, m := newTestServer(t)
	id := simulate(t, s).ID
	query := func(v url.Values) (*httptest.ResponseRecorder, DoseResponse) {
		rec := do(s, http.MethodGet, "/results/"+id+"/dose?"+v.Encode(), nil)
		var d DoseResponse
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
		}
		return rec, d
	}

	// 10 km downwind.
	rec, out := query(url.Values{"lat": {"28.6139"}, "lon": {"77.1176"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Greater(t, out.Dose, 0.0)
	require.NotNil(t, out.Arrival)
	assert.Greater(t, *out.Arrival, 0.0)
	assert.Equal(t, 0.0, out.Entry)
	assert.Equal(t, 24.0, out.Stay)

	rec, in := query(url.Values{"lat": {"28.6139"}, "lon": {"77.1176"}, "shelter": {"basement-concrete"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, out.Dose*0.005, in.Dose, 1e-9*out.Dose)

	rec, later := query(url.Values{"lat": {"28.6139"}, "lon": {"77.1176"}, "entry": {"48"}, "stay": {"24"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, later.Dose, out.Dose)

	rec, _ = query(url.Values{"place": {"Dwarka, New Delhi"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = query(url.Values{"lat": {"40"}, "lon": {"0"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec, _ = query(url.Values{"lat": {"north"}, "lon": {"0"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = query(url.Values{"lat": {"28.6"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = query(url.Values{"lat": {"28.6139"}, "lon": {"77.1176"}, "shelter": {"tent"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Queries.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("outside")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Queries.WithLabelValues("invalid")))
}

func TestReport(t *testing.T) {
	s, _ := newTestServer(t)
	id := simulate(t, s).ID
	rec := do(s, http.MethodGet, "/results/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx files are zip archives")
}

func TestMap(t *testing.T) {
	s, _ := newTestServer(t)
	id := simulate(t, s).ID
	for _, target := range []string{"/results/" + id + "/map", "/results/" + id + "/map?field=DoseRateH1"} {
		rec := do(s, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		_, err := png.Decode(rec.Body)
		assert.NoError(t, err, target)
	}
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/results/"+id+"/map?field=Fluence", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/results/nope/map", nil).Code)
}

func TestPlacesAndShelters(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, http.MethodGet, "/places", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var places []fallout.Place
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &places))
	assert.Equal(t, fallout.DefaultGazetteer().Places(), places)

	rec = do(s, http.MethodGet, "/shelters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shelters []casualty.Shelter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shelters))
	assert.Equal(t, casualty.Shelters, shelters)
}
