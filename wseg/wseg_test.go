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
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/grid"
)

func different(a, b, tolerance float64) bool {
	if a == b {
		return false
	}
	return 2*math.Abs(a-b)/math.Abs(a+b) > tolerance
}

var delhi = grid.LatLon{Lat: 28.6139, Lon: 77.2090}

func simulate(t *testing.T, yield float64, wind fallout.WindProfile, e grid.Extent) *fallout.Simulation {
	t.Helper()
	s := &fallout.Simulation{
		Params: fallout.DetonationParameters{Yield: yield, Location: delhi},
		Wind:   wind,
		Window: fallout.ExposureWindow{Start: 0, Duration: 24},
		Decay:  fallout.DefaultDecay,
		InitFuncs: []fallout.DomainManipulator{
			fallout.CreateGrid(e),
			fallout.AddOutputFields(),
		},
		RunFuncs: DefaultConfig().Stages(),
	}
	if err := s.Simulate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPlumeParameters(t *testing.T) {
	p := NewPlume(DefaultConfig(), 20, 1, 20)
	tests := []struct {
		name       string
		have, want float64
	}{
		{"Hc", p.CloudHeight, 20.593017},
		{"sigma0", p.Sigma0, 0.3239993},
		{"Tc", p.TimeConst, 3.0175822},
		{"wind", p.Wind, 12.427424},
		{"L0", p.L0, 37.500773},
		{"sigmaH", p.SigmaH, 0.18 * 20.593017},
		{"shear", p.Shear, 0.8 * 0.6213712 * 0.3048},
	}
	for _, test := range tests {
		if different(test.have, test.want, 1e-6) {
			t.Errorf("%s: have %g, want %g", test.name, test.have, test.want)
		}
	}
	if !(p.N > 1 && p.N < 2) || !(p.Alpha1 > 0 && p.Alpha1 < 1) || !(p.L > p.L0) {
		t.Errorf("n=%g alpha1=%g L=%g L0=%g", p.N, p.Alpha1, p.L, p.L0)
	}
}

func TestDoseRateShape(t *testing.T) {
	p := NewPlume(DefaultConfig(), 20, 1, 20)
	for _, x := range []float64{0.5, 2, 10, 40} {
		on := p.DoseRate(x, 0)
		left, right := p.DoseRate(x, -1), p.DoseRate(x, 1)
		if !(on > left) || left != right {
			t.Errorf("x=%g: hot-line %g, crosswind %g and %g", x, on, left, right)
		}
		if up := p.DoseRate(-x, 0); !(up < on) {
			t.Errorf("x=%g: upwind %g not below downwind %g", x, up, on)
		}
	}
	prev := math.Inf(1)
	for _, x := range []float64{20, 50, 100, 200, 400} {
		v := p.DoseRate(x, 0)
		if !(v < prev) {
			t.Errorf("x=%g mi: %g not below %g", x, v, prev)
		}
		prev = v
	}
	for _, x := range []float64{0, 5, 50} {
		if a, b := p.Arrival(x), p.Arrival(x+1); !(a >= 0.5 && b > a) {
			t.Errorf("arrival %g then %g", a, b)
		}
	}
	// Half the yield, half the dose rate.
	if h := NewPlume(DefaultConfig(), 20, 0.5, 20).DoseRate(5, 0.2); different(h, p.DoseRate(5, 0.2)/2, 1e-12) {
		t.Errorf("fission fraction 0.5: %g", h)
	}
}

func TestCalmPlume(t *testing.T) {
	p := NewPlume(DefaultConfig(), 20, 1, 0)
	if !p.Calm() {
		t.Fatal("not calm")
	}
	for _, pt := range [][2]float64{{0.3, 1.1}, {2, 0}, {4, 3}} {
		x, y := pt[0], pt[1]
		v := p.DoseRate(x, y)
		for _, w := range []float64{p.DoseRate(y, x), p.DoseRate(-x, y), p.DoseRate(x, -y), p.DoseRate(-y, -x)} {
			if different(v, w, 1e-12) {
				t.Errorf("(%g, %g): %g vs %g", x, y, v, w)
			}
		}
	}
	if a := p.Arrival(3); a != 0.5 {
		t.Errorf("arrival %g", a)
	}
}

func TestConservation(t *testing.T) {
	tests := []struct {
		name      string
		wind      fallout.WindProfile
		extent    grid.Extent
		tolerance float64
	}{
		{"calm", fallout.UniformWind(0, 0), grid.Centered(delhi, 500, 50000), 1e-3},
		{"20 km/h", fallout.UniformWind(20, 90), grid.Centered(delhi, 1000, 250000), 0.15},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := simulate(t, 20, test.wind, test.extent)
			dep, err := s.Grid.Field(fallout.DepositionField)
			if err != nil {
				t.Fatal(err)
			}
			total := dep.Sum() * s.Grid.CellArea() / 1e6
			if math.Abs(total-20)/20 > test.tolerance {
				t.Errorf("deposited %g kt of 20", total)
			}
		})
	}
}

func TestEngineDownwind(t *testing.T) {
	s := simulate(t, 20, fallout.UniformWind(20, 90), grid.Centered(delhi, 500, 30000))
	rate, err := s.Grid.Field(fallout.DoseRateField)
	if err != nil {
		t.Fatal(err)
	}
	top, peak := rate.Max()
	x, y := s.Grid.CellCenter(peak)
	if !(x < 0) || math.Hypot(x, y) > 5000 {
		t.Errorf("peak %g R/h at (%g, %g) m", top, x, y)
	}
	// Symmetric about the east-west hot-line.
	c := s.Grid.Ny / 2
	for j := 1; j < c; j++ {
		for i := 0; i < s.Grid.Nx; i++ {
			a, b := rate.Data.Get(c+j, i), rate.Data.Get(c-j, i)
			if a > 1e-6*top && different(a, b, 1e-9) {
				t.Fatalf("cell %d: %g north, %g south", i, a, b)
			}
		}
	}
	if len(s.Notes()) == 0 {
		t.Error("no effective wind note")
	}
}

func TestEffectiveWind(t *testing.T) {
	speed, ex, ey := EffectiveWind(fallout.UniformWind(20, 90), 5000)
	if different(speed, 20, 1e-9) || different(ex, -1, 1e-9) || math.Abs(ey) > 1e-9 {
		t.Errorf("%g km/h toward (%g, %g)", speed, ex, ey)
	}
	speed, ex, ey = EffectiveWind(fallout.UniformWind(0, 0), 5000)
	if speed != 0 || ex != 1 || ey != 0 {
		t.Errorf("calm: %g km/h toward (%g, %g)", speed, ex, ey)
	}
	// Opposing winds at different heights partly cancel.
	w := fallout.WindProfile{{Altitude: 0, Speed: 10, Direction: 0}, {Altitude: 10000, Speed: 10, Direction: 180}}
	if speed, _, _ := EffectiveWind(w, 10000); !(speed < 1) {
		t.Errorf("opposing winds: %g km/h", speed)
	}
}

func TestContours(t *testing.T) {
	p := NewPlume(DefaultConfig(), 20, 1, 20)
	cs := p.Contours(StandardLevels)
	if len(cs) < 5 {
		t.Fatalf("only %d contours", len(cs))
	}
	for i := 1; i < len(cs); i++ {
		a, b := cs[i-1], cs[i]
		if !(b.Level > a.Level && b.Downwind < a.Downwind && b.Width <= a.Width && b.Area < a.Area) {
			t.Errorf("%g R/h %+v vs %g R/h %+v", a.Level, a, b.Level, b)
		}
	}
	for _, c := range cs {
		if !(c.Downwind > c.Upwind) || !(c.Width > 0) {
			t.Errorf("%+v", c)
		}
		// Edges lie on the level.
		d := c.Downwind * 1000 / metersPerMile
		if v := p.DoseRate(d, 0); different(v, c.Level, 1e-6) {
			t.Errorf("%g R/h contour: dose rate at the downwind edge %g", c.Level, v)
		}
	}
	if _, ok := p.Contour(1e12); ok {
		t.Error("found a contour above the peak")
	}

	calm := NewPlume(DefaultConfig(), 20, 1, 0)
	c, ok := calm.Contour(100)
	if !ok {
		t.Fatal("no calm contour")
	}
	r := c.Downwind
	if different(c.Upwind, r, 1e-6) || different(c.Width, 2*r, 0.01) || different(c.Area, math.Pi*r*r, 0.01) {
		t.Errorf("calm contour %+v", c)
	}
}

func ExampleNewPlume() {
	p := NewPlume(DefaultConfig(), 20, 1, 20)
	fmt.Printf("Hc %.1f kft, sigma0 %.3f mi, Tc %.2f h, L0 %.1f mi\n", p.CloudHeight, p.Sigma0, p.TimeConst, p.L0)
	// Output: Hc 20.6 kft, sigma0 0.324 mi, Tc 3.02 h, L0 37.5 mi
}
