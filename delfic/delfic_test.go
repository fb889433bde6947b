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
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/gonum/floats"
	"github.com/kr/pretty"
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

func TestStratifySumsToOne(t *testing.T) {
	configs := map[string]func(*Config){
		"default":  func(*Config) {},
		"5 bins":   func(c *Config) { c.Bins = 5 },
		"40 bins":  func(c *Config) { c.Bins = 40 },
		"one bin":  func(c *Config) { c.Bins = 1; c.MaxDiameter = c.MinDiameter },
		"one mode": func(c *Config) { c.Modes = c.Modes[1:] },
		"narrow":   func(c *Config) { c.MinDiameter, c.MaxDiameter = 100, 300 },
	}
	for name, modify := range configs {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			modify(&c)
			bins, err := Stratify(c)
			if err != nil {
				t.Fatal(err)
			}
			if len(bins) != c.Bins {
				t.Fatalf("%d bins, want %d", len(bins), c.Bins)
			}
			sum := 0.
			for i, b := range bins {
				if !(b.Fraction >= 0) {
					t.Errorf("bin %d fraction %g", i, b.Fraction)
				}
				if i > 0 && !(b.Diameter > bins[i-1].Diameter) {
					t.Errorf("bin %d diameter %g not above %g", i, b.Diameter, bins[i-1].Diameter)
				}
				sum += b.Fraction
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Errorf("fractions sum to %.9f", sum)
			}
		})
	}
}

// TestStratifyActivityWeighting checks that activity follows particle
// volume and surface rather than particle count.
func TestStratifyActivityWeighting(t *testing.T) {
	top := func(volumeFraction float64) float64 {
		c := DefaultConfig()
		c.VolumeFraction = volumeFraction
		bins, err := Stratify(c)
		if err != nil {
			t.Fatal(err)
		}
		last := bins[len(bins)-1]
		for i, b := range bins[:len(bins)-1] {
			if !(b.Fraction < last.Fraction) {
				t.Errorf("f_v=%g: bin %d holds %g, more than the largest bin's %g", volumeFraction, i, b.Fraction, last.Fraction)
			}
		}
		return last.Fraction
	}
	if f := top(DefaultConfig().VolumeFraction); different(f, 0.49707, 1e-4) {
		t.Errorf("largest bin holds %g of the activity, want 0.49707", f)
	}
	if surface, volume := top(0), top(1); different(surface, 0.30706, 1e-4) || !(volume > surface) {
		t.Errorf("largest bin share: surface %g, volume %g", surface, volume)
	}
}

func TestStratifyRejectsBadConfig(t *testing.T) {
	c := DefaultConfig()
	c.Modes = []Mode{{MedianDiameter: 1e-9, Spread: 0.01, Weight: 1}}
	if _, err := Stratify(c); !errors.Is(err, fallout.ErrInvalidParameters) {
		t.Errorf("distribution with no weight on the bins: %v", err)
	}
	c = DefaultConfig()
	c.Bins = 0
	if _, err := Stratify(c); !errors.Is(err, fallout.ErrInvalidParameters) {
		t.Errorf("no bins: %v", err)
	}
	c = DefaultConfig()
	c.VolumeFraction = 1.5
	if _, err := Stratify(c); !errors.Is(err, fallout.ErrInvalidParameters) {
		t.Errorf("volume fraction 1.5: %v", err)
	}
}

func TestTerminalVelocity(t *testing.T) {
	air := StandardAir(0)
	// Stokes' law holds for small particles.
	r := 1e-6
	stokes := 2. / 9 * 2600 * gravity * r * r / air.Viscosity
	if v := TerminalVelocity(2, air, 2600).Value(); different(v, stokes, 1e-3) {
		t.Errorf("2 µm: have %g, want %g", v, stokes)
	}
	prev := 0.
	for d := 1.; d < 10000; d *= 1.2 {
		v := TerminalVelocity(d, air, 2600).Value()
		if !(v > prev) {
			t.Fatalf("%g µm: velocity %g not above %g", d, v, prev)
		}
		prev = v
	}
	// Thinner air aloft lets particles fall faster.
	if lo, hi := TerminalVelocity(200, air, 2600).Value(), TerminalVelocity(200, StandardAir(10000), 2600).Value(); !(hi > lo) {
		t.Errorf("200 µm: velocity at 10 km %g not above sea level %g", hi, lo)
	}
}

func TestStandardAir(t *testing.T) {
	if a := StandardAir(-5); a != standardAtmosphere[0] {
		t.Errorf("below ground: %+v", a)
	}
	if a := StandardAir(50000); a != standardAtmosphere[20] {
		t.Errorf("above table: %+v", a)
	}
	a := StandardAir(1500)
	if different(a.Density, (1.1116+1.0065)/2, 1e-12) {
		t.Errorf("1.5 km density %g", a.Density)
	}
}

func TestCloud(t *testing.T) {
	prev := 0.
	for _, y := range []float64{0.1, 1, 20, 300, 1000, 10000} {
		c := Stabilize(y)
		if !(c.Top > c.Center && c.Center > c.Bottom && c.Bottom >= 0) {
			t.Errorf("%g kt: top %g center %g bottom %g", y, c.Top, c.Center, c.Bottom)
		}
		if !(c.Center > prev) {
			t.Errorf("%g kt: cloud center %g not above %g", y, c.Center, prev)
		}
		prev = c.Center
		lastCenter := math.Inf(1)
		for _, d := range []float64{1, 20, 200, 1000, 4000, 20000} {
			b, m, tp := c.Layer(d)
			if !(b >= 0 && b <= m && m <= tp && tp <= c.Top) {
				t.Errorf("%g kt, %g µm: layer %g %g %g", y, d, b, m, tp)
			}
			if m > lastCenter {
				t.Errorf("%g kt, %g µm: larger particles released higher", y, d)
			}
			lastCenter = m
		}
	}
}

func TestFall(t *testing.T) {
	c := DefaultConfig()
	tc, dx, dy := Fall(c, fallout.UniformWind(0, 0), 100, 5000)
	if !(tc > 0) || dx != 0 || dy != 0 {
		t.Errorf("calm: t=%g dx=%g dy=%g", tc, dx, dy)
	}
	// 36 km/h from the west carries particles 10 m east each second.
	tw, dx, dy := Fall(c, fallout.UniformWind(36, 270), 100, 5000)
	if tw != tc {
		t.Errorf("wind changed fall time: %g vs %g", tw, tc)
	}
	if different(dx, 10*tw, 1e-9) || math.Abs(dy) > 1e-6*tw {
		t.Errorf("dx=%g dy=%g after %g s", dx, dy, tw)
	}
	if t0, _, _ := Fall(c, nil, 100, 0); t0 != 0 {
		t.Errorf("fall from the ground took %g s", t0)
	}
}

// TestFallFromGreatHeight checks that the step count stays bounded for
// clouds far above the atmosphere table.
func TestFallFromGreatHeight(t *testing.T) {
	c := DefaultConfig()
	low, _, _ := Fall(c, fallout.UniformWind(20, 270), 100, 5000)
	for _, z0 := range []float64{Stabilize(fallout.MaxYield).Top, 1e8} {
		tf, dx, dy := Fall(c, fallout.UniformWind(20, 270), 100, z0)
		if math.IsNaN(tf) || math.IsInf(tf, 0) || !(tf > low) {
			t.Errorf("fall from %g m took %g s", z0, tf)
		}
		if !(dx > 0) || math.Abs(dy) > 1e-6*dx {
			t.Errorf("fall from %g m: dx=%g dy=%g", z0, dx, dy)
		}
	}
	if tf, _, _ := Fall(c, nil, 100, math.Inf(1)); !math.IsNaN(tf) {
		t.Errorf("fall from infinity took %g s", tf)
	}
}

// TestShearedWind releases small particles into a westerly wind aloft and
// large ones into a southerly wind below it, so the bins must land in
// different directions.
func TestShearedWind(t *testing.T) {
	wind := fallout.WindProfile{
		{Altitude: 0, Speed: 20, Direction: 180},
		{Altitude: 5000, Speed: 20, Direction: 180},
		{Altitude: 6000, Speed: 40, Direction: 270},
		{Altitude: 12000, Speed: 40, Direction: 270},
	}
	if err := wind.Validate(); err != nil {
		t.Fatal(err)
	}
	cloud := Cloud{Center: 8000, Top: 10000, Bottom: 2000, SizeSlope: 2, Thickness: 1000}
	c := DefaultConfig()
	bearing := func(d float64) float64 {
		p, _ := Trace(c, cloud, wind, Bin{Diameter: d})
		if p.Skip {
			t.Fatalf("%g µm bin skipped", d)
		}
		return math.Atan2(p.X, p.Y) * 180 / math.Pi
	}
	small, large := bearing(20), bearing(4000)
	if math.Abs(large) > 1e-6 {
		t.Errorf("large particles released below the shear drift %g° from north", large)
	}
	if !(small > 20 && small < 90) {
		t.Errorf("small particles drift %g° from north", small)
	}

	if mid := bearing(400); !(mid > large && mid < small) {
		t.Errorf("400 µm particles drift %g°, between %g° and %g° expected", mid, large, small)
	}
}

func TestTransportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{cfg: DefaultConfig()}
	s := &fallout.Simulation{
		Params: fallout.DetonationParameters{Yield: 20, Location: delhi},
		Wind:   fallout.UniformWind(20, 270),
		RunFuncs: []fallout.DomainManipulator{
			e.stratify,
			e.stabilize,
			func(s *fallout.Simulation) error {
				cancel()
				return e.transport(s)
			},
		},
	}
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestZeroWindConservation(t *testing.T) {
	s := simulate(t, 20, fallout.UniformWind(0, 0), grid.Centered(delhi, 1000, 75000))
	dep, err := s.Grid.Field(fallout.DepositionField)
	if err != nil {
		t.Fatal(err)
	}
	total := dep.Sum() * s.Grid.CellArea() / 1e6
	if math.Abs(total-20)/20 > 1e-6 {
		t.Errorf("deposited %.9f kt, want 20", total)
	}
	if n := len(s.Divergences()); n != 0 {
		t.Errorf("%d divergences", n)
	}
}

func TestZeroWindSymmetry(t *testing.T) {
	s := simulate(t, 20, fallout.UniformWind(0, 0), grid.Centered(delhi, 1000, 40000))
	dep, err := s.Grid.Field(fallout.DepositionField)
	if err != nil {
		t.Fatal(err)
	}
	top, peak := dep.Max()
	if want := (grid.Index{I: s.Grid.Nx / 2, J: s.Grid.Ny / 2}); peak != want {
		t.Errorf("peak at %v, want ground zero %v", peak, want)
	}
	n := s.Grid.Nx
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v := dep.Data.Get(j, i)
			if v < 1e-12*top {
				continue
			}
			for _, m := range [][2]int{{j, n - 1 - i}, {n - 1 - j, i}, {i, j}} {
				if w := dep.Data.Get(m[0], m[1]); different(v, w, 1e-9) {
					t.Fatalf("(%d, %d) = %g but (%d, %d) = %g", i, j, v, m[1], m[0], w)
				}
			}
		}
	}
}

func TestDownwind(t *testing.T) {
	// Wind from the east carries fallout west.
	s := simulate(t, 20, fallout.UniformWind(20, 90), grid.Centered(delhi, 500, 30000))
	rate, err := s.Grid.Field(fallout.DoseRateField)
	if err != nil {
		t.Fatal(err)
	}
	_, peak := rate.Max()
	x, y := s.Grid.CellCenter(peak)
	if !(x < 0) || math.Hypot(x, y) > 5000 {
		t.Errorf("peak dose rate at (%g, %g) m", x, y)
	}
	var west, east float64
	for j := 0; j < s.Grid.Ny; j++ {
		for i := 0; i < s.Grid.Nx; i++ {
			v := rate.Data.Get(j, i)
			if i < s.Grid.Nx/2 {
				west += v
			} else if i > s.Grid.Nx/2 {
				east += v
			}
		}
	}
	if !(west > east) {
		t.Errorf("west %g, east %g", west, east)
	}
	arr, err := s.Grid.Field(fallout.ArrivalField)
	if err != nil {
		t.Fatal(err)
	}
	if a := arr.Data.Get(peak.J, peak.I); !(a >= DefaultConfig().StabilizationTime/60 && a < 3) {
		t.Errorf("arrival at the peak %g h", a)
	}
	dose, err := s.Grid.Field(fallout.IntegratedDoseField)
	if err != nil {
		t.Fatal(err)
	}
	if floats.Min(dose.Data.Elements) < 0 {
		t.Error("negative dose")
	}
}

func TestDeterministic(t *testing.T) {
	e := grid.Centered(delhi, 500, 20000)
	a := simulate(t, 20, fallout.UniformWind(20, 90), e)
	b := simulate(t, 20, fallout.UniformWind(20, 90), e)
	for _, name := range a.Grid.FieldNames() {
		fa, _ := a.Grid.Field(name)
		fb, err := b.Grid.Field(name)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(fa.Data.Elements, fb.Data.Elements) {
			t.Errorf("%s differs between runs", name)
		}
	}
	if diff := pretty.Diff(a.Divergences(), b.Divergences()); len(diff) > 0 {
		t.Error(diff)
	}
}

func TestDivergentBinsAreSkipped(t *testing.T) {
	bins, err := Stratify(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	// A cloud on the ground gives every bin a zero fall time.
	e := &engine{cfg: DefaultConfig(), bins: bins}
	s := &fallout.Simulation{Wind: fallout.UniformWind(10, 0)}
	if err := e.transport(s); err != nil {
		t.Fatal(err)
	}
	d := s.Divergences()
	if len(d) != len(bins) {
		t.Fatalf("%d divergences, want %d", len(d), len(bins))
	}
	for k, err := range d {
		if !errors.Is(err, fallout.ErrNumericDivergence) || err.Bin != k {
			t.Errorf("divergence %d: %v", k, err)
		}
	}
}

func TestKernelFootprint(t *testing.T) {
	e := grid.Centered(delhi, 100, 5000)
	k := Kernel{AxisX: 0.6, AxisY: 0.8, Along: 800, Across: 300, Truncation: 4}
	w := k.Footprint(e)
	if sum := floats.Sum(w); different(sum, 1, 1e-12) {
		t.Errorf("weights sum to %g", sum)
	}
	// Stretched along the axis.
	c := e.Nx / 2
	along := w[(c+4)*e.Nx+c+3]
	across := w[(c+3)*e.Nx+c-4]
	if !(along > across) {
		t.Errorf("along %g, across %g", along, across)
	}
	// A point-like kernel lands in one cell.
	k = Kernel{X: 1234, Y: -567, AxisX: 1, Along: 1, Across: 1, Truncation: 4}
	w = k.Footprint(e)
	idx := int(math.Floor((k.Y-e.Y0)/e.CellSize))*e.Nx + int(math.Floor((k.X-e.X0)/e.CellSize))
	if w[idx] != 1 || floats.Sum(w) != 1 {
		t.Errorf("point kernel: cell weight %g, total %g", w[idx], floats.Sum(w))
	}
}

func ExampleStabilize() {
	c := Stabilize(20)
	fmt.Printf("center %.1f km, top %.1f km, bottom %.1f km\n", c.Center/1000, c.Top/1000, c.Bottom/1000)
	// Output: center 7.1 km, top 8.5 km, bottom 5.7 km
}
