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

import "math"

// StandardLevels are the H+1 dose rates, in R/h, conventionally mapped.
var StandardLevels = []float64{1, 3, 10, 30, 100, 300, 1000, 3000}

// Contour gives the size of the area where the H+1 dose rate is at least
// Level. Distances are in km.
type Contour struct {
	Level    float64 `units:"R/h"`
	Downwind float64 `desc:"Farthest downwind reach from ground zero" units:"km"`
	Upwind   float64 `desc:"Farthest upwind reach from ground zero" units:"km"`
	Width    float64 `desc:"Maximum crosswind width" units:"km"`

	// Area is the area enclosed by the contour.
	Area float64 `units:"km²"`
}

// Length returns the total extent of the contour along the hot-line.
func (c Contour) Length() float64 { return c.Downwind + c.Upwind }

const (
	scanPoints = 4000
	widthScan  = 200
	bisections = 60
)

// bisect finds where f crosses level between a, where f >= level, and b,
// where f < level.
func bisect(f func(float64) float64, a, b, level float64) float64 {
	for i := 0; i < bisections; i++ {
		m := (a + b) / 2
		if f(m) >= level {
			a = m
		} else {
			b = m
		}
	}
	return (a + b) / 2
}

// halfWidth returns the crosswind distance in miles at which the dose
// rate at x miles downwind falls to level.
func (p Plume) halfWidth(x, level float64) float64 {
	f := func(y float64) float64 { return p.DoseRate(x, y) }
	if f(0) < level {
		return 0
	}
	hi := math.Max(p.Sigma0, 0.01)
	for f(hi) >= level {
		hi *= 2
	}
	return bisect(f, 0, hi, level)
}

// Contour returns the dimensions of the contour at level. The second
// return value is false if the dose rate never reaches level.
func (p Plume) Contour(level float64) (Contour, bool) {
	along := func(x float64) float64 { return p.DoseRate(x, 0) }
	// Scan points crowd toward ground zero, where the contours of high
	// levels are short.
	reach := 40*p.L + 4*p.SigmaX + 4*p.Sigma0
	at := func(i int) float64 {
		t := -1 + 2*float64(i)/scanPoints
		return reach * t * t * t
	}
	first, last := -1, -1
	for i := 0; i <= scanPoints; i++ {
		if along(at(i)) >= level {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return Contour{}, false
	}
	up := at(0)
	if first > 0 {
		up = bisect(along, at(first), at(first-1), level)
	}
	down := at(scanPoints)
	if last < scanPoints {
		down = bisect(along, at(last), at(last+1), level)
	}
	c := Contour{
		Level:    level,
		Downwind: math.Max(down, 0) * metersPerMile / 1000,
		Upwind:   math.Max(-up, 0) * metersPerMile / 1000,
	}
	// Width and area by slicing across the hot-line.
	step := (down - up) / widthScan
	var area float64
	for i := 0; i < widthScan; i++ {
		w := 2 * p.halfWidth(up+(float64(i)+0.5)*step, level)
		area += w * step
		c.Width = math.Max(c.Width, w)
	}
	c.Width *= metersPerMile / 1000
	c.Area = area * metersPerMile * metersPerMile / 1e6
	return c, true
}

// Contours returns the dimensions of each contour in levels that the
// plume reaches, in order.
func (p Plume) Contours(levels []float64) []Contour {
	var out []Contour
	for _, l := range levels {
		if c, ok := p.Contour(l); ok {
			out = append(out, c)
		}
	}
	return out
}
