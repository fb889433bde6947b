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
	"sort"
	"strconv"
	"strings"
)

// WindSample is the wind at one altitude.
type WindSample struct {
	Altitude float64 `desc:"Height above ground" units:"m"`
	Speed    float64 `desc:"Wind speed" units:"km/h"`

	// Direction is the compass bearing the wind blows from, so a wind from
	// 90° carries fallout toward the west.
	Direction float64 `desc:"Direction the wind blows from" units:"degrees"`
}

// WindProfile is an ordered set of wind samples. A profile with one sample
// describes a wind that is uniform with height.
type WindProfile []WindSample

// UniformWind returns a single-level profile.
func UniformWind(speed, direction float64) WindProfile {
	return WindProfile{{Speed: speed, Direction: direction}}
}

// Validate checks that the profile is non-empty, that altitudes strictly
// increase, and that speeds and directions are finite with speeds >= 0.
func (w WindProfile) Validate() error {
	if len(w) == 0 {
		return InvalidParameterError{Name: "WindProfile", Reason: "no wind samples"}
	}
	for i, s := range w {
		if !(s.Speed >= 0) || math.IsInf(s.Speed, 0) {
			return InvalidParameterError{Name: "WindProfile", Reason: fmt.Sprintf("sample %d: speed=%g km/h but should be >= 0", i, s.Speed)}
		}
		if math.IsNaN(s.Direction) || math.IsInf(s.Direction, 0) {
			return InvalidParameterError{Name: "WindProfile", Reason: fmt.Sprintf("sample %d: direction %g is not finite", i, s.Direction)}
		}
		if math.IsNaN(s.Altitude) || math.IsInf(s.Altitude, 0) {
			return InvalidParameterError{Name: "WindProfile", Reason: fmt.Sprintf("sample %d: altitude %g is not finite", i, s.Altitude)}
		}
		if i > 0 && !(s.Altitude > w[i-1].Altitude) {
			return InvalidParameterError{Name: "WindProfile", Reason: fmt.Sprintf("sample %d: altitude %g m does not increase", i, s.Altitude)}
		}
	}
	return nil
}

// Components returns the east (u) and north (v) velocity in m/s of the air
// at sample s.
func (s WindSample) Components() (u, v float64) {
	speed := s.Speed / 3.6
	rad := s.Direction * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}

// At returns the east and north wind velocity (m/s) at altitude z meters.
// Components are interpolated linearly between samples and held constant
// beyond the ends of the profile.
func (w WindProfile) At(z float64) (u, v float64) {
	if len(w) == 0 {
		return 0, 0
	}
	if len(w) == 1 || z <= w[0].Altitude {
		return w[0].Components()
	}
	last := len(w) - 1
	if z >= w[last].Altitude {
		return w[last].Components()
	}
	i := sort.Search(len(w), func(i int) bool { return w[i].Altitude >= z })
	lo, hi := w[i-1], w[i]
	f := (z - lo.Altitude) / (hi.Altitude - lo.Altitude)
	u0, v0 := lo.Components()
	u1, v1 := hi.Components()
	return u0 + f*(u1-u0), v0 + f*(v1-v0)
}

// Surface returns the lowest sample.
func (w WindProfile) Surface() WindSample { return w[0] }

// MeanSpeed returns the mean of the sample speeds in km/h.
func (w WindProfile) MeanSpeed() float64 {
	var s float64
	for _, ws := range w {
		s += ws.Speed
	}
	return s / float64(len(w))
}

// Calm reports whether every sample has zero speed.
func (w WindProfile) Calm() bool {
	for _, s := range w {
		if s.Speed != 0 {
			return false
		}
	}
	return true
}

var compassPoints = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// ParseDirection parses a wind direction given either in degrees or as a
// compass point such as "NE" or "WSW".
func ParseDirection(s string) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, p := range compassPoints {
		if s == p {
			return float64(i) * 22.5, nil
		}
	}
	d, err := strconv.ParseFloat(strings.TrimSuffix(s, "°"), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, InvalidParameterError{Name: "Direction", Reason: fmt.Sprintf("%q is not a compass point or angle", s)}
	}
	return math.Mod(math.Mod(d, 360)+360, 360), nil
}

// CompassPoint returns the nearest of the 16 compass points to direction
// d degrees.
func CompassPoint(d float64) string {
	d = math.Mod(math.Mod(d, 360)+360, 360)
	return compassPoints[int(math.Floor(d/22.5+0.5))%len(compassPoints)]
}
