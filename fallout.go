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

// Package fallout estimates the local radioactive fallout from a surface
// nuclear detonation: where it lands, the dose-rate field it creates and the
// dose people accumulate. The engines live in the delfic and wseg packages;
// the model package selects between them.
package fallout

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/unit"
	"github.com/spatialmodel/fallout/grid"
)

// Version is the version of this software.
const Version = "1.0.0"

// BurstType distinguishes detonations that touch the ground from those
// that do not.
type BurstType int

const (
	// Surface is a detonation at or near ground level.
	Surface BurstType = iota
	// Airburst is a detonation with the fireball clear of the ground.
	Airburst
)

func (b BurstType) String() string {
	switch b {
	case Surface:
		return "surface"
	case Airburst:
		return "airburst"
	default:
		return fmt.Sprintf("BurstType(%d)", int(b))
	}
}

// ParseBurstType parses "surface" or "airburst".
func ParseBurstType(s string) (BurstType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "surface", "ground":
		return Surface, nil
	case "airburst", "air":
		return Airburst, nil
	}
	return 0, InvalidParameterError{Name: "BurstType", Reason: fmt.Sprintf("unknown burst type %q", s)}
}

// DetonationParameters describe a single detonation.
type DetonationParameters struct {
	Yield           float64     `desc:"Explosive yield" units:"kt"`
	Burst           BurstType   `desc:"Burst type"`
	Location        grid.LatLon `desc:"Ground zero" units:"degrees"`
	Height          float64     `desc:"Burst height above ground" units:"m"`
	FissionFraction float64     `desc:"Fraction of yield from fission; 0 means 1" units:"fraction"`
}

// Fission returns the fission fraction, defaulting to 1.
func (p DetonationParameters) Fission() float64 {
	if p.FissionFraction == 0 {
		return 1
	}
	return p.FissionFraction
}

// FissionYield returns the fission yield in kilotons.
func (p DetonationParameters) FissionYield() float64 { return p.Yield * p.Fission() }

// joulesPerKiloton is the energy released by one kiloton of TNT.
const joulesPerKiloton = 4.184e12

// Energy returns the energy released by the detonation.
func (p DetonationParameters) Energy() *unit.Unit {
	return unit.New(p.Yield*joulesPerKiloton, unit.Joule)
}

// FireballRadius returns the maximum fireball radius in meters.
func (p DetonationParameters) FireballRadius() float64 {
	return 55 * math.Pow(p.Yield, 0.4)
}

// LocalFallout reports whether the fireball touches the ground. Airbursts
// above the fireball radius produce no local fallout.
func (p DetonationParameters) LocalFallout() bool {
	return p.Burst == Surface || p.Height < p.FireballRadius()
}

// Yields outside [MinYield, MaxYield] kt are rejected. The cloud
// stabilization fits diverge beyond this range.
const (
	MinYield = 0.1
	MaxYield = 50000
)

// Validate checks that p describes a physical detonation.
func (p DetonationParameters) Validate() error {
	switch {
	case !(p.Yield >= MinYield && p.Yield <= MaxYield):
		return InvalidParameterError{Name: "Yield", Reason: fmt.Sprintf("yield=%g kt but should be between %g and %g", p.Yield, float64(MinYield), float64(MaxYield))}
	case p.FissionFraction < 0 || p.FissionFraction > 1 || math.IsNaN(p.FissionFraction):
		return InvalidParameterError{Name: "FissionFraction", Reason: fmt.Sprintf("fission fraction=%g but should be in (0, 1]", p.FissionFraction)}
	case p.Height < 0 || math.IsNaN(p.Height) || math.IsInf(p.Height, 0):
		return InvalidParameterError{Name: "Height", Reason: fmt.Sprintf("burst height=%g m but should be >= 0", p.Height)}
	case p.Burst == Surface && p.Height != 0:
		return InvalidParameterError{Name: "Height", Reason: fmt.Sprintf("burst height=%g m but a surface burst is at 0 m", p.Height)}
	case p.Burst != Surface && p.Burst != Airburst:
		return InvalidParameterError{Name: "BurstType", Reason: p.Burst.String()}
	case math.Abs(p.Location.Lat) > 90 || math.Abs(p.Location.Lon) > 180 ||
		math.IsNaN(p.Location.Lat) || math.IsNaN(p.Location.Lon):
		return InvalidParameterError{Name: "Location", Reason: fmt.Sprintf("(%g, %g) is not a valid latitude and longitude", p.Location.Lat, p.Location.Lon)}
	}
	return nil
}

// ExposureWindow is the span of time over which dose is accumulated.
type ExposureWindow struct {
	Start    float64 `desc:"Start of exposure after detonation" units:"h"`
	Duration float64 `desc:"Length of exposure" units:"h"`
}

// End returns the time the window closes.
func (w ExposureWindow) End() float64 { return w.Start + w.Duration }

// Validate checks that the window starts at or after the detonation and
// has positive length.
func (w ExposureWindow) Validate() error {
	if !(w.Start >= 0) || math.IsInf(w.Start, 0) {
		return InvalidParameterError{Name: "ExposureWindow.Start", Reason: fmt.Sprintf("start=%g h but should be >= 0", w.Start)}
	}
	if !(w.Duration > 0) || math.IsInf(w.Duration, 0) {
		return InvalidParameterError{Name: "ExposureWindow.Duration", Reason: fmt.Sprintf("duration=%g h but should be > 0", w.Duration)}
	}
	return nil
}

func (w ExposureWindow) String() string {
	return fmt.Sprintf("H+%g to H+%g", w.Start, w.End())
}
