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
	"math"

	"github.com/spatialmodel/fallout"
)

// Cloud is the stabilized mushroom cloud. Heights are above ground.
type Cloud struct {
	Center float64 `desc:"Height of the activity center" units:"m"`
	Top    float64 `units:"m"`
	Bottom float64 `units:"m"`

	// SizeSlope is how far release height falls per µm of particle radius.
	SizeSlope float64 `units:"m/µm"`

	// Thickness is the depth of the layer holding the smallest particles;
	// SpreadSlope adds to it per µm of radius.
	Thickness   float64 `units:"m"`
	SpreadSlope float64 `units:"m/µm"`

	// Sigma is the horizontal standard deviation of activity in the cloud.
	Sigma float64 `units:"m"`
}

func poly4(x float64, c [5]float64) float64 {
	return c[0] + x*(c[1]+x*(c[2]+x*(c[3]+x*c[4])))
}

// Stabilize returns the stabilized cloud for a yield in kilotons, from the
// DELFIC yield-scaling fits.
func Stabilize(yield float64) Cloud {
	l := math.Log(yield)
	center := math.Exp(poly4(l, [5]float64{7.889, 0.3477, 0.001226, -0.004227, 0.000470}))
	thick := math.Exp(poly4(l, [5]float64{7.03518, 0.158914, 0.0837539, -0.0155464, 0.000862103}))
	lmt := math.Log(yield / 1000)
	sigmaMiles := math.Exp(0.7 + lmt/3 - 3.25/(4+(lmt+5.4)*(lmt+5.4)))
	return Cloud{
		Center:      center,
		Top:         center + thick/2,
		Bottom:      math.Max(center-thick/2, 0),
		SizeSlope:   math.Exp(poly4(l, [5]float64{1.574, -0.01197, 0.03636, -0.00410, 0.0001965})),
		Thickness:   thick,
		SpreadSlope: math.Exp(poly4(l, [5]float64{1.7899, -0.048249, 0.0230248, -0.00225965, 0.000101519})),
		Sigma:       sigmaMiles * 1609.344,
	}
}

// Layer returns the bottom, center and top heights of the layer holding
// particles of the given diameter (µm). Larger particles are released
// lower and spread over a thicker layer; the layer never extends above the
// cloud top or below the ground.
func (c Cloud) Layer(diameter float64) (bottom, center, top float64) {
	r := diameter / 2
	center = math.Min(math.Max(c.Center-c.SizeSlope*r, c.Bottom), c.Top)
	half := (c.Thickness + 2*r*c.SpreadSlope) / 2
	return math.Max(center-half, 0), center, math.Min(center+half, c.Top)
}

// stabilize is the second stage.
func (e *engine) stabilize(s *fallout.Simulation) error {
	e.cloud = Stabilize(s.Params.Yield)
	return nil
}
