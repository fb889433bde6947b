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

// Package delfic is a particle-transport fallout model after the DELFIC
// Department of Defense Land Fallout Interpretive Code. Activity is split
// into particle-size bins, lifted to the stabilized cloud, carried by the
// wind while it settles, and spread onto the ground with a Gaussian kernel.
//
// The calculation runs as five ordered stages:
//
//	Stratify  -> size bins and activity fractions
//	Stabilize -> cloud geometry and release height of each bin
//	Transport -> fall time and landing point of each bin
//	Deposit   -> deposition density and arrival time on the grid
//	DoseRate  -> H+1 dose rate and integrated dose
package delfic

import (
	"fmt"
	"math"

	"github.com/spatialmodel/fallout"
)

// Mode is one lognormal component of the particle size distribution.
type Mode struct {
	MedianDiameter float64 `desc:"Median particle diameter" units:"µm"`
	Spread         float64 `desc:"Standard deviation of ln(diameter)" units:"-"`
	Weight         float64 `desc:"Share of particles in the mode" units:"fraction"`
}

// Config holds the constants of the DELFIC model. It is not modified
// during a run.
type Config struct {
	Bins        int     `desc:"Number of particle-size bins"`
	MinDiameter float64 `desc:"Diameter of the smallest bin" units:"µm"`
	MaxDiameter float64 `desc:"Diameter of the largest bin" units:"µm"`
	Modes       []Mode

	// VolumeFraction is the share of activity distributed through particle
	// volumes; the rest is deposited on particle surfaces.
	VolumeFraction float64 `desc:"Share of activity held in particle volume" units:"fraction"`

	ParticleDensity   float64 `desc:"Density of fallout particles" units:"kg/m3"`
	AltitudeStep      float64 `desc:"Altitude step for fall integration" units:"m"`
	StabilizationTime float64 `desc:"Time for the cloud to stabilize" units:"min"`
	Diffusivity       float64 `desc:"Horizontal eddy diffusivity" units:"m2/s"`
	Truncation        float64 `desc:"Kernel truncation radius in standard deviations"`

	// DoseRateFactor converts deposited fission yield to an H+1 dose rate.
	DoseRateFactor float64 `desc:"H+1 dose rate from one kt of fission yield spread over one square mile" units:"R mi2/h/kt"`
}

// DefaultConfig returns the standard model constants.
func DefaultConfig() Config {
	return Config{
		Bins:        15,
		MinDiameter: 20,
		MaxDiameter: 4000,
		Modes: []Mode{
			{MedianDiameter: 0.2, Spread: math.Ln2, Weight: 0.1},
			{MedianDiameter: 246, Spread: math.Log(4), Weight: 0.9},
		},
		VolumeFraction:    0.68,
		ParticleDensity:   2600,
		AltitudeStep:      100,
		StabilizationTime: 10,
		Diffusivity:       500,
		Truncation:        4,
		DoseRateFactor:    2000,
	}
}

// squareKmPerSquareMile converts areas.
const squareKmPerSquareMile = 2.589988

// doseRatePerDensity returns the H+1 dose rate in R/h produced by one kt
// of fission yield per km².
func (c Config) doseRatePerDensity() float64 { return c.DoseRateFactor * squareKmPerSquareMile }

// stabilizationHours returns the stabilization time in hours.
func (c Config) stabilizationHours() float64 { return c.StabilizationTime / 60 }

// Validate checks that c is usable.
func (c Config) Validate() error {
	bad := func(name string, v interface{}) error {
		return fallout.InvalidParameterError{Name: "delfic." + name, Reason: fmt.Sprintf("%v is out of range", v)}
	}
	switch {
	case c.Bins < 1:
		return bad("Bins", c.Bins)
	case !(c.MinDiameter > 0):
		return bad("MinDiameter", c.MinDiameter)
	case !(c.MaxDiameter >= c.MinDiameter) || (c.Bins > 1 && c.MaxDiameter == c.MinDiameter):
		return bad("MaxDiameter", c.MaxDiameter)
	case len(c.Modes) == 0:
		return bad("Modes", "no modes")
	case !(c.VolumeFraction >= 0 && c.VolumeFraction <= 1):
		return bad("VolumeFraction", c.VolumeFraction)
	case !(c.ParticleDensity > 0):
		return bad("ParticleDensity", c.ParticleDensity)
	case !(c.AltitudeStep > 0):
		return bad("AltitudeStep", c.AltitudeStep)
	case !(c.StabilizationTime >= 0):
		return bad("StabilizationTime", c.StabilizationTime)
	case !(c.Diffusivity >= 0):
		return bad("Diffusivity", c.Diffusivity)
	case !(c.Truncation > 0):
		return bad("Truncation", c.Truncation)
	case !(c.DoseRateFactor > 0):
		return bad("DoseRateFactor", c.DoseRateFactor)
	}
	for i, m := range c.Modes {
		if !(m.MedianDiameter > 0) || !(m.Spread > 0) || !(m.Weight >= 0) {
			return bad(fmt.Sprintf("Modes[%d]", i), m)
		}
	}
	return nil
}

// engine carries the intermediate results of one run from stage to stage.
type engine struct {
	cfg   Config
	bins  []Bin
	cloud Cloud
	paths []Path
}

// Stages returns the five model stages in order. Each call returns a fresh
// set, so the stages of one run share state only with each other.
func (c Config) Stages() []fallout.DomainManipulator {
	e := &engine{cfg: c}
	return []fallout.DomainManipulator{
		e.stratify,
		e.stabilize,
		e.transport,
		e.deposit,
		e.doseRate(),
	}
}
