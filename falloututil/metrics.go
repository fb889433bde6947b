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
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms of the web service.
type Metrics struct {
	Simulations        *prometheus.CounterVec   // labels: model, outcome={success,invalid,error}
	ResultCache        *prometheus.CounterVec   // labels: result={hit,miss}
	SimulationDuration *prometheus.HistogramVec // labels: model
	Queries            *prometheus.CounterVec   // labels: outcome={success,invalid,outside,unknown}
}

var durationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// NewMetrics creates and registers the service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fallout",
			Name:      "simulations_total",
			Help:      "Simulation requests by model and outcome.",
		}, []string{"model", "outcome"}),
		ResultCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fallout",
			Name:      "result_cache_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		SimulationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fallout",
			Name:      "simulation_duration_seconds",
			Help:      "Time to compute a simulation that was not cached.",
			Buckets:   durationBuckets,
		}, []string{"model"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fallout",
			Name:      "dose_queries_total",
			Help:      "Point dose queries by outcome.",
		}, []string{"outcome"}),
	}
	prometheus.MustRegister(m.Simulations, m.ResultCache, m.SimulationDuration, m.Queries)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Simulations:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fallout", Name: "simulations_total"}, []string{"model", "outcome"}),
		ResultCache:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fallout", Name: "result_cache_total"}, []string{"result"}),
		SimulationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "fallout", Name: "simulation_duration_seconds", Buckets: durationBuckets}, []string{"model"}),
		Queries:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fallout", Name: "dose_queries_total"}, []string{"outcome"}),
	}
}

// clock is the time source of the web service, replaceable in tests.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
