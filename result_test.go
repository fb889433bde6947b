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

package fallout

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/grid"
)

var delhi = grid.LatLon{Lat: 28.6139, Lon: 77.2090}

// plume returns a stage that lays down a Gaussian hot spot 2 km west of
// ground zero, arriving later with distance.
func plume(peak float64) CellManipulator {
	return func(s *Simulation, idx grid.Index) {
		x, y := s.Grid.CellCenter(idx)
		r2 := (x+2000)*(x+2000) + y*y
		h1 := peak * math.Exp(-r2/(2*3000*3000))
		if h1 < 1e-3 {
			return
		}
		s.Grid.Set(DoseRateField, idx, h1)
		s.Grid.Set(DepositionField, idx, h1/2000/2.589988)
		s.Grid.Set(ArrivalField, idx, 0.5+math.Hypot(x, y)/5000)
	}
}

// testResult runs a small synthetic simulation with one recorded
// divergence.
func testResult(t *testing.T) *Result {
	t.Helper()
	return shelteredResult(t, 1)
}

func shelteredResult(t *testing.T, shelter float64) *Result {
	t.Helper()
	s := &Simulation{
		Params:  DetonationParameters{Yield: 10, Location: delhi},
		Wind:    UniformWind(20, 90),
		Window:  ExposureWindow{Start: 0, Duration: 24},
		Decay:   DefaultDecay,
		Shelter: shelter,
		InitFuncs: []DomainManipulator{
			CreateGrid(grid.Centered(delhi, 1000, 10000)),
			AddOutputFields(),
			SetPopulation(UniformDensity(1000)),
		},
		RunFuncs: []DomainManipulator{
			Calculations(plume(2000), IntegrateDose()),
			func(s *Simulation) error {
				s.Diverged(DivergenceError{Stage: "test", Bin: 3, Value: math.NaN()})
				s.Note("synthetic plume")
				return nil
			},
			Casualties(casualty.Default),
		},
	}
	if err := s.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewResult("test", s)
}

func TestResultSummary(t *testing.T) {
	r := testResult(t)
	s, err := r.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if different(s.PeakDoseRate, 2000, 0.1) {
		t.Errorf("peak dose rate %g", s.PeakDoseRate)
	}
	if !(s.PeakLocation.Lon < delhi.Lon) || math.Abs(s.PeakLocation.Lat-delhi.Lat) > 0.01 {
		t.Errorf("peak at %+v", s.PeakLocation)
	}
	if s.Divergences != 1 || len(r.Notes) != 1 {
		t.Errorf("%d divergences, notes %v", s.Divergences, r.Notes)
	}
	pop, err := r.Field(PopulationField)
	if err != nil {
		t.Fatal(err)
	}
	if different(s.Casualties.Population(), pop.Sum(), 1e-9) {
		t.Errorf("population %g, accounted for %g", pop.Sum(), s.Casualties.Population())
	}
	if !(s.Casualties.Fatal > 0) {
		t.Errorf("casualties %+v", s.Casualties)
	}
}

func TestDoseAtLocation(t *testing.T) {
	r := testResult(t)
	d, err := r.DoseAtLocation(delhi.Lat, delhi.Lon)
	if err != nil {
		t.Fatal(err)
	}
	idx, _ := r.Grid.CoordinateToIndex(delhi.Lat, delhi.Lon)
	if want := r.Grid.Value(IntegratedDoseField, idx); d != want || !(d > 0) {
		t.Errorf("dose %g, want %g", d, want)
	}
	if _, err := r.DoseAtLocation(delhi.Lat+1, delhi.Lon); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("outside: %v", err)
	}
}

func TestStayDose(t *testing.T) {
	r := testResult(t)
	var prev float64
	for _, stay := range []float64{1, 4, 24, 96} {
		p, err := r.StayDose(delhi.Lat, delhi.Lon, 1, stay, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !(p.Dose > prev) {
			t.Errorf("stay %g h: %g R after %g R", stay, p.Dose, prev)
		}
		prev = p.Dose
	}
	out, _ := r.StayDose(delhi.Lat, delhi.Lon, 1, 24, 1)
	in, _ := r.StayDose(delhi.Lat, delhi.Lon, 1, 24, 0.1)
	if different(in.Dose, out.Dose/10, 1e-12) || in.Effect > out.Effect {
		t.Errorf("sheltered %+v, outdoors %+v", in, out)
	}
	if _, err := r.StayDose(delhi.Lat, delhi.Lon, -1, 24, 1); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("negative entry: %v", err)
	}
	if _, err := r.StayDose(delhi.Lat, delhi.Lon, 1, 24, 2); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("shelter 2: %v", err)
	}
}

// TestFullShielding checks that a zero transmission factor means the same
// thing to the casualty stage as it does to StayDose.
func TestFullShielding(t *testing.T) {
	out := testResult(t)
	if !(out.Casualties.Casualties() > 0) {
		t.Fatalf("no casualties outdoors: %+v", out.Casualties)
	}
	r := shelteredResult(t, 0)
	if c := r.Casualties.Casualties(); c != 0 {
		t.Errorf("%g casualties with full shielding", c)
	}
	p, err := r.StayDose(delhi.Lat, delhi.Lon, 0, 24, r.Shelter)
	if err != nil {
		t.Fatal(err)
	}
	if p.Dose != 0 {
		t.Errorf("stay dose %g R with full shielding", p.Dose)
	}

	s := &Simulation{
		Shelter: 1.5,
		InitFuncs: []DomainManipulator{
			CreateGrid(grid.Centered(delhi, 1000, 3000)),
			AddOutputFields(),
			SetPopulation(UniformDensity(1000)),
		},
		RunFuncs: []DomainManipulator{Casualties(casualty.Default)},
	}
	if err := s.Simulate(context.Background()); !errors.Is(err, ErrInvalidParameters) {
		t.Errorf("shelter 1.5: %v", err)
	}
}
