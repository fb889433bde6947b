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
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/grid"
)

// Names of the fields a simulation produces.
const (
	DepositionField     = "Deposition"
	DoseRateField       = "DoseRateH1"
	IntegratedDoseField = "Dose"
	ArrivalField        = "Arrival"
	PopulationField     = "Population"
)

// AddOutputFields adds the standard output fields to the grid.
func AddOutputFields() DomainManipulator {
	return func(s *Simulation) error {
		s.Grid.AddField(DepositionField, "kt/km²", "Fission-equivalent activity deposited per unit area")
		f := s.Grid.AddField(DoseRateField, "R/h", "Exposure rate referenced to one hour after detonation")
		f.Attributes["reference_time"] = "H+1"
		f = s.Grid.AddField(IntegratedDoseField, "R", "Exposure accumulated over the exposure window")
		f.Attributes["window"] = s.Window.String()
		a := s.Grid.AddField(ArrivalField, "h", "Time fallout first arrives")
		for i := range a.Data.Elements {
			a.Data.Elements[i] = math.Inf(1)
		}
		return nil
	}
}

// IntegrateDose returns a function that fills the integrated dose field
// from the H+1 dose rate and arrival time of each cell.
func IntegrateDose() CellManipulator {
	return func(s *Simulation, idx grid.Index) {
		h1 := s.Grid.Value(DoseRateField, idx)
		if h1 == 0 {
			return
		}
		arrival := s.Grid.Value(ArrivalField, idx)
		d := s.Decay.WindowDose(h1, arrival, s.Window)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			s.Diverged(DivergenceError{Stage: "dose integration", Bin: -1, Cell: idx, Value: d})
			d = 0
		}
		s.Grid.Set(IntegratedDoseField, idx, d)
	}
}

// Casualties returns a function that classifies the sheltered dose
// received by the population of every cell. A shelter transmission of 0
// is full shielding, as in StayDose. Rows are tallied concurrently
// and merged in row order.
func Casualties(bands casualty.Bands) DomainManipulator {
	return func(s *Simulation) error {
		dose, err := s.Grid.Field(IntegratedDoseField)
		if err != nil {
			return err
		}
		pop, err := s.Grid.Field(PopulationField)
		if err != nil {
			return err
		}
		shelter := s.Shelter
		if !(shelter >= 0 && shelter <= 1) {
			return InvalidParameterError{Name: "Shelter", Reason: fmt.Sprintf("transmission=%g but should be in [0, 1]", shelter)}
		}
		nx, ny := s.Grid.Nx, s.Grid.Ny
		cellArea := s.Grid.CellArea() / 1e6
		rows := make([]casualty.Breakdown, ny)
		nprocs := runtime.GOMAXPROCS(0)
		var wg sync.WaitGroup
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				defer wg.Done()
				d := make([]float64, nx)
				for j := pp; j < ny; j += nprocs {
					row := dose.Data.Elements[j*nx : (j+1)*nx]
					for i, v := range row {
						d[i] = v * shelter
					}
					rows[j] = bands.Tally(d, pop.Data.Elements[j*nx:(j+1)*nx], cellArea)
				}
			}(pp)
		}
		wg.Wait()
		var total casualty.Breakdown
		for _, r := range rows {
			total.Add(r)
		}
		s.Casualties = total
		return nil
	}
}

// Result is the outcome of a simulation.
type Result struct {
	Model   string
	Params  DetonationParameters
	Wind    WindProfile
	Window  ExposureWindow
	Decay   DecayLaw
	Shelter float64

	// Grid holds the Deposition, DoseRateH1, Dose, Arrival and Population
	// fields.
	Grid *grid.Grid

	Casualties  casualty.Breakdown
	Divergences []DivergenceError
	Notes       []string
}

// NewResult collects the outputs of a finished simulation.
func NewResult(model string, s *Simulation) *Result {
	return &Result{
		Model:       model,
		Params:      s.Params,
		Wind:        s.Wind,
		Window:      s.Window,
		Decay:       s.Decay,
		Shelter:     s.Shelter,
		Grid:        s.Grid,
		Casualties:  s.Casualties,
		Divergences: s.Divergences(),
		Notes:       s.Notes(),
	}
}

// Field returns one of the result fields.
func (r *Result) Field(name string) (*grid.Field, error) { return r.Grid.Field(name) }

// DoseAtLocation returns the integrated dose in roentgen at the grid cell
// nearest to (lat, lon).
func (r *Result) DoseAtLocation(lat, lon float64) (float64, error) {
	idx, err := r.Grid.CoordinateToIndex(lat, lon)
	if err != nil {
		return 0, err
	}
	return r.Grid.GetField(IntegratedDoseField, idx)
}

// PointDose describes the exposure of someone at one location.
type PointDose struct {
	Cell       grid.Index
	DoseRateH1 float64 `units:"R/h"`
	Arrival    float64 `units:"h"`
	Dose       float64 `units:"R"`
	Effect     casualty.Effect
}

// StayDose returns the dose received by someone who enters the location
// (lat, lon) entry hours after the detonation and stays for stay hours in
// a shelter with the given transmission factor.
func (r *Result) StayDose(lat, lon, entry, stay, shelter float64) (PointDose, error) {
	w := ExposureWindow{Start: entry, Duration: stay}
	if err := w.Validate(); err != nil {
		return PointDose{}, err
	}
	if !(shelter >= 0 && shelter <= 1) {
		return PointDose{}, InvalidParameterError{Name: "Shelter", Reason: fmt.Sprintf("transmission=%g but should be in [0, 1]", shelter)}
	}
	idx, err := r.Grid.CoordinateToIndex(lat, lon)
	if err != nil {
		return PointDose{}, err
	}
	p := PointDose{
		Cell:       idx,
		DoseRateH1: r.Grid.Value(DoseRateField, idx),
		Arrival:    r.Grid.Value(ArrivalField, idx),
	}
	p.Dose = r.Decay.WindowDose(p.DoseRateH1, p.Arrival, w) * shelter
	p.Effect = casualty.HealthEffect(p.Dose)
	return p, nil
}

// Summary is a compact description of a result.
type Summary struct {
	Model          string
	Yield          float64 `units:"kt"`
	PeakDoseRate   float64 `units:"R/h"`
	PeakDose       float64 `units:"R"`
	PeakLocation   grid.LatLon
	DepositedTotal float64 `units:"kt"`
	Casualties     casualty.Breakdown
	Divergences    int
}

// Summary returns a summary of r.
func (r *Result) Summary() (Summary, error) {
	s := Summary{Model: r.Model, Yield: r.Params.Yield, Casualties: r.Casualties, Divergences: len(r.Divergences)}
	rate, err := r.Grid.Field(DoseRateField)
	if err != nil {
		return s, err
	}
	s.PeakDoseRate, _ = rate.Max()
	dose, err := r.Grid.Field(IntegratedDoseField)
	if err != nil {
		return s, err
	}
	var idx grid.Index
	s.PeakDose, idx = dose.Max()
	pr, err := r.Grid.Projection()
	if err != nil {
		return s, err
	}
	x, y := r.Grid.CellCenter(idx)
	if s.PeakLocation, err = pr.ToGeographic(x, y); err != nil {
		return s, err
	}
	dep, err := r.Grid.Field(DepositionField)
	if err != nil {
		return s, err
	}
	s.DepositedTotal = dep.Sum() * r.Grid.CellArea() / 1e6
	return s, nil
}
