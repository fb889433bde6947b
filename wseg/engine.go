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

package wseg

import (
	"math"

	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/grid"
)

// EffectiveWind returns the mean wind vector between the ground and the
// given height in meters, as a speed in km/h and a unit vector pointing
// downwind. A calm wind points along +x.
func EffectiveWind(w fallout.WindProfile, height float64) (speed, ex, ey float64) {
	const step = 100.0
	var u, v float64
	n := 0
	for z := step / 2; z < height || n == 0; z += step {
		uu, vv := w.At(z)
		u += uu
		v += vv
		n++
	}
	u /= float64(n)
	v /= float64(n)
	s := math.Hypot(u, v)
	if s == 0 {
		return 0, 1, 0
	}
	return s * 3.6, u / s, v / s
}

// PlumeFor returns the plume of a detonation in a wind profile and the
// unit vector pointing downwind. Winds are averaged up to the cloud
// center.
func (c Config) PlumeFor(p fallout.DetonationParameters, w fallout.WindProfile) (plume Plume, ex, ey float64) {
	hc := NewPlume(c, p.Yield, p.Fission(), 0).CloudHeight * metersPerKft
	speed, ex, ey := EffectiveWind(w, hc)
	return NewPlume(c, p.Yield, p.Fission(), speed), ex, ey
}

// frame is the plume and the hot-line direction in grid coordinates.
type frame struct {
	plume  Plume
	x0, y0 float64 // ground zero, m
	ex, ey float64 // downwind unit vector
	perKm2 float64 // deposition per unit H+1 dose rate, kt/km² per R/h
	cfg    Config
}

// Stages returns the model stages: plume setup followed by a per-cell
// evaluation of the closed form.
func (c Config) Stages() []fallout.DomainManipulator {
	f := &frame{cfg: c}
	return []fallout.DomainManipulator{
		f.setup,
		fallout.Calculations(f.cell, fallout.IntegrateDose()),
	}
}

func (f *frame) setup(s *fallout.Simulation) error {
	if err := f.cfg.Validate(); err != nil {
		return err
	}
	f.plume, f.ex, f.ey = f.cfg.PlumeFor(s.Params, s.Wind)
	s.Note("wseg: effective wind %.1f km/h below %.1f km", f.plume.WindKph(), f.plume.CloudHeight*metersPerKft/1000)
	f.perKm2 = 1 / (f.cfg.DoseRateFactor * metersPerMile * metersPerMile / 1e6)
	pr, err := s.Grid.Projection()
	if err != nil {
		return err
	}
	f.x0, f.y0, err = pr.ToLocal(s.Params.Location)
	return err
}

// cell evaluates the dose rate, deposition and arrival time at the center
// of one cell.
func (f *frame) cell(s *fallout.Simulation, idx grid.Index) {
	x, y := s.Grid.CellCenter(idx)
	dx, dy := x-f.x0, y-f.y0
	down := (dx*f.ex + dy*f.ey) / metersPerMile
	cross := (-dx*f.ey + dy*f.ex) / metersPerMile
	h1 := f.plume.DoseRate(down, cross)
	if math.IsNaN(h1) || math.IsInf(h1, 0) {
		s.Diverged(fallout.DivergenceError{Stage: "wseg dose rate", Bin: -1, Cell: idx, Value: h1})
		return
	}
	if h1 <= 0 {
		return
	}
	s.Grid.Set(fallout.DoseRateField, idx, h1)
	s.Grid.Set(fallout.DepositionField, idx, h1*f.perKm2)
	s.Grid.Set(fallout.ArrivalField, idx, f.plume.Arrival(down))
}
