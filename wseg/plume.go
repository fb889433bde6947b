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

// Package wseg implements the WSEG-10 fallout model of the Weapons Systems
// Evaluation Group (Pugh and Galiano, 1959, as revised by Hanifen, 1980).
// WSEG-10 is an empirical closed form: the H+1 dose rate at a point is the
// product of a downwind distribution fx and a crosswind Gaussian fy in a
// frame whose x axis runs along the hot-line.
//
// Distances inside the model are in statute miles, heights in thousands of
// feet, speeds in miles per hour and times in hours, as in the published
// formulas. Callers work in kilometers.
package wseg

import (
	"fmt"
	"math"

	"github.com/ctessum/unit"
	"github.com/ctessum/unit/badunit"
	"github.com/spatialmodel/fallout"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	metersPerMile = badunit.Mile(1).Value()
	metersPerKft  = badunit.Foot(1000).Value()
)

// mph converts a speed in km/h to miles per hour.
func mph(kph float64) float64 {
	return unit.Div(unit.New(kph/3.6, unit.MeterPerSecond), badunit.MilePerHour(1)).Value()
}

// Config holds the WSEG-10 constants.
type Config struct {
	// Shear is the wind shear that stretches the plume crosswind.
	Shear float64 `desc:"Wind shear" units:"km/h/km"`

	// DoseRateFactor is the H+1 dose rate from one kt of fission yield
	// spread over one square mile.
	DoseRateFactor float64 `desc:"WSEG-10 normalization constant" units:"R mi2/h/kt"`
}

// DefaultConfig returns the standard constants.
func DefaultConfig() Config {
	return Config{Shear: 0.8, DoseRateFactor: 2000}
}

// Validate checks that c is usable.
func (c Config) Validate() error {
	switch {
	case !(c.Shear >= 0) || math.IsInf(c.Shear, 0):
		return fallout.InvalidParameterError{Name: "wseg.Shear", Reason: fmt.Sprintf("shear=%g but should be >= 0", c.Shear)}
	case !(c.DoseRateFactor > 0) || math.IsInf(c.DoseRateFactor, 0):
		return fallout.InvalidParameterError{Name: "wseg.DoseRateFactor", Reason: fmt.Sprintf("factor=%g but should be > 0", c.DoseRateFactor)}
	}
	return nil
}

// Plume holds the WSEG-10 parameters for one detonation and wind.
type Plume struct {
	CloudHeight float64 `desc:"Cloud center height Hc" units:"kft"`
	Sigma0      float64 `desc:"Horizontal standard deviation of the stabilized cloud" units:"mi"`
	SigmaH      float64 `desc:"Vertical standard deviation of the cloud" units:"kft"`
	TimeConst   float64 `desc:"Time constant Tc" units:"h"`
	Wind        float64 `desc:"Effective fallout wind" units:"mph"`
	Shear       float64 `units:"mph/kft"`

	L0     float64 `units:"mi"`
	SigmaX float64 `units:"mi"`
	L      float64 `units:"mi"`
	N      float64 `desc:"Downwind shape exponent"`
	Alpha1 float64

	// Source is the fission yield in Mt times the normalization constant.
	Source float64 `units:"R mi2/h"`

	gamma float64
}

// NewPlume computes the plume for a yield in kt, a fission fraction and an
// effective wind speed in km/h.
func NewPlume(c Config, yield, fission, windKph float64) Plume {
	l := math.Log(yield / 1000)
	d := l + 2.42
	p := Plume{
		CloudHeight: 44 + 6.1*l - 0.205*math.Abs(d)*d,
		Sigma0:      math.Exp(0.7 + l/3 - 3.25/(4+(l+5.4)*(l+5.4))),
		Wind:        mph(windKph),
		Shear:       mph(c.Shear) * metersPerKft / 1000,
		Source:      yield * fission * c.DoseRateFactor,
	}
	p.SigmaH = 0.18 * p.CloudHeight
	h := p.CloudHeight / 60
	p.TimeConst = 1.0573203 * (12*h - 2.5*h*h) * (1 - 0.5*math.Exp(-(p.CloudHeight/25)*(p.CloudHeight/25)))
	p.L0 = p.Wind * p.TimeConst
	s02 := p.Sigma0 * p.Sigma0
	l02 := p.L0 * p.L0
	sx2 := s02 * (l02 + 8*s02) / (l02 + 2*s02)
	p.SigmaX = math.Sqrt(sx2)
	p.L = math.Sqrt(l02 + 2*sx2)
	p.N = (l02 + sx2) / (l02 + 0.5*sx2)
	p.Alpha1 = 1 / (1 + 0.001*p.CloudHeight*p.Wind/p.Sigma0)
	p.gamma = math.Gamma(1 + 1/p.N)
	return p
}

// Calm reports whether the plume uses the zero-wind limit.
func (p Plume) Calm() bool { return p.Wind == 0 }

// WindKph returns the effective wind in km/h.
func (p Plume) WindKph() float64 { return p.Wind * metersPerMile / 1000 }

// shearSpread is the crosswind variance added by wind shear over the
// fall from a cloud of vertical spread SigmaH.
func (p Plume) shearSpread() float64 {
	s := p.TimeConst * p.SigmaH * p.Shear
	return s * s
}

// DoseRate returns the H+1 dose rate in R/h at x miles downwind of ground
// zero and y miles crosswind of the hot-line.
func (p Plume) DoseRate(x, y float64) float64 {
	if p.Calm() {
		// Radially symmetric limit of the downwind form: a Gaussian of
		// variance SigmaX² widened by shear.
		s2 := p.SigmaX*p.SigmaX + p.shearSpread()
		r2 := x*x + y*y
		return p.Source * math.Exp(-0.5*r2/s2) / (2 * math.Pi * s2)
	}
	phi := distuv.UnitNormal.CDF(p.L0 / p.L * x / (p.SigmaX * p.Alpha1))
	fx := p.Source * phi * math.Exp(-math.Pow(math.Abs(x)/p.L, p.N)) / (p.L * p.gamma)
	if fx == 0 {
		return 0
	}
	s02 := p.Sigma0 * p.Sigma0
	xo := x + 2*p.SigmaX
	l2 := p.L * p.L
	sy2 := s02 + 8*math.Abs(xo)*s02/p.L +
		2*p.SigmaX*p.SigmaX*p.shearSpread()/l2 +
		xo*xo*p.L0*p.L0*p.shearSpread()/(l2*l2)
	sy := math.Sqrt(sy2)
	a2 := 1 / (1 + 0.001*p.CloudHeight*p.Wind/p.Sigma0*(1-distuv.UnitNormal.CDF(2*x/p.Wind)))
	fy := math.Exp(-0.5*(y/(a2*sy))*(y/(a2*sy))) / (math.Sqrt(2*math.Pi) * sy)
	return fx * fy
}

// Arrival returns the fallout arrival time in hours at x miles downwind.
func (p Plume) Arrival(x float64) float64 {
	if p.Calm() {
		return 0.5
	}
	xo := x + 2*p.SigmaX
	l02 := p.L0 * p.L0
	return math.Sqrt(0.25 + l02*xo*xo*p.TimeConst*p.TimeConst/(p.L*p.L*(l02+0.5*p.SigmaX*p.SigmaX)))
}
