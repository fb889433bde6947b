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

package delfic

import (
	"fmt"
	"math"

	"github.com/ctessum/unit"
	"github.com/gonum/floats"
	"github.com/spatialmodel/fallout"
)

// Bin is one particle-size class.
type Bin struct {
	Diameter float64 `units:"µm"`

	// Fraction is the share of the total activity carried by the bin.
	Fraction float64

	// Velocity is the settling velocity at sea level.
	Velocity float64 `units:"m/s"`
}

// Stratify returns c.Bins log-spaced size bins with activity fractions
// normalized to sum to 1. The modes give the number of particles at each
// size; a particle of radius r carries activity in proportion to
// VolumeFraction·r³ + (1-VolumeFraction)·r², since fission products are
// held both through the volume and on the surface.
func Stratify(c Config) ([]Bin, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	bins := make([]Bin, c.Bins)
	weights := make([]float64, c.Bins)
	for k := range bins {
		d := c.MinDiameter
		if c.Bins > 1 {
			d *= math.Pow(c.MaxDiameter/c.MinDiameter, float64(k)/float64(c.Bins-1))
		}
		bins[k].Diameter = d
		var n float64
		for _, m := range c.Modes {
			z := (math.Log(d) - math.Log(m.MedianDiameter)) / m.Spread
			n += m.Weight / (math.Sqrt(2*math.Pi) * m.Spread) * math.Exp(-0.5*z*z)
		}
		r := d / 2
		weights[k] = n * (c.VolumeFraction*r*r*r + (1-c.VolumeFraction)*r*r)
	}
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, fallout.InvalidParameterError{Name: "delfic.Modes", Reason: fmt.Sprintf("size distribution weight over the bins is %g", total)}
	}
	air := StandardAir(0)
	for k := range bins {
		bins[k].Fraction = weights[k] / total
		bins[k].Velocity = TerminalVelocity(bins[k].Diameter, air, c.ParticleDensity).Value()
	}
	return bins, nil
}

const gravity = 9.80665 // m/s²

// TerminalVelocity returns the settling velocity of a particle of the given
// diameter (µm) and density (kg/m³) in air, from the Best number
// correlation for the drag on a sphere.
func TerminalVelocity(diameter float64, air Air, particleDensity float64) *unit.Unit {
	r := diameter / 2 * 1e-6
	mu := air.Viscosity
	rho := air.Density
	// Best (Davies) number, Cd·Re².
	q := 32 * rho * particleDensity * gravity * r * r * r / (3 * mu * mu)
	var re float64
	if q < 140 {
		re = q/24 - 2.3363e-4*q*q + 2.0154e-6*q*q*q - 6.9105e-9*q*q*q*q
	} else {
		l := math.Log10(q)
		re = math.Pow(10, -1.29536+0.986*l-0.046677*l*l+0.0011235*l*l*l)
	}
	return unit.New(re*mu/(2*rho*r), unit.MeterPerSecond)
}

// stratify is the first stage.
func (e *engine) stratify(s *fallout.Simulation) error {
	bins, err := Stratify(e.cfg)
	if err != nil {
		return err
	}
	e.bins = bins
	return nil
}
