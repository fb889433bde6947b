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
)

// DecayLaw is the Way-Wigner power law for the exposure rate of mixed
// fission products: R(t) = R1 · t^-n with t in hours after detonation and
// R1 the rate at one hour (H+1).
type DecayLaw struct {
	Exponent float64 `desc:"Power-law decay exponent" units:"dimensionless"`

	// MinTime is the earliest time the law is applied from. The law is
	// singular at t = 0.
	MinTime float64 `desc:"Earliest valid time" units:"h"`
}

// DefaultDecay is the t^-1.2 rule of thumb (Glasstone & Dolan, §9.145).
var DefaultDecay = DecayLaw{Exponent: 1.2, MinTime: 0.1}

// Validate checks the law.
func (d DecayLaw) Validate() error {
	if !(d.Exponent > 0) || math.IsInf(d.Exponent, 0) {
		return InvalidParameterError{Name: "DecayLaw.Exponent", Reason: fmt.Sprintf("exponent=%g but should be > 0", d.Exponent)}
	}
	if !(d.MinTime > 0) || math.IsInf(d.MinTime, 0) {
		return InvalidParameterError{Name: "DecayLaw.MinTime", Reason: fmt.Sprintf("minimum time=%g h but should be > 0", d.MinTime)}
	}
	return nil
}

// Rate returns the dose rate at time t hours given the H+1 rate h1.
func (d DecayLaw) Rate(h1, t float64) float64 {
	return h1 * math.Pow(math.Max(t, d.MinTime), -d.Exponent)
}

// Dose returns the dose accumulated between t1 and t2 hours given the H+1
// rate h1. Times before MinTime are raised to MinTime; the result is zero
// when t2 <= t1.
func (d DecayLaw) Dose(h1, t1, t2 float64) float64 {
	t1 = math.Max(t1, d.MinTime)
	if !(t2 > t1) || h1 == 0 {
		return 0
	}
	if d.Exponent == 1 {
		return h1 * math.Log(t2/t1)
	}
	e := 1 - d.Exponent
	return h1 * (math.Pow(t2, e) - math.Pow(t1, e)) / e
}

// WindowDose returns the dose received during w at a place where fallout
// arrives at time arrival hours. Exposure begins at the later of the window
// start and the arrival.
func (d DecayLaw) WindowDose(h1, arrival float64, w ExposureWindow) float64 {
	if math.IsInf(arrival, 1) || math.IsNaN(arrival) {
		return 0
	}
	return d.Dose(h1, math.Max(w.Start, arrival), w.End())
}

// InfiniteDose returns the dose accumulated from t hours onward. It is
// infinite for exponents <= 1.
func (d DecayLaw) InfiniteDose(h1, t float64) float64 {
	if d.Exponent <= 1 {
		return math.Inf(1)
	}
	t = math.Max(t, d.MinTime)
	return h1 * math.Pow(t, 1-d.Exponent) / (d.Exponent - 1)
}
