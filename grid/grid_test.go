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

package grid

import (
	"errors"
	"math"
	"testing"
)

func TestNewValidates(t *testing.T) {
	for _, e := range []Extent{
		{CellSize: 0, Nx: 1, Ny: 1},
		{CellSize: -1, Nx: 1, Ny: 1},
		{CellSize: 1, Nx: 0, Ny: 1},
		{CellSize: 1, Nx: 1, Ny: 1, X0: math.NaN()},
		{CellSize: 1, Nx: 1, Ny: 1, Anchor: LatLon{Lat: 91}},
	} {
		if _, err := New(e); !errors.Is(err, ErrInvalidExtent) {
			t.Errorf("%+v: want ErrInvalidExtent, got %v", e, err)
		}
	}
}

func TestCentered(t *testing.T) {
	e := Centered(LatLon{Lat: 40, Lon: -90}, 500, 2000)
	if e.Nx != 9 || e.Ny != 9 {
		t.Fatalf("cells: %dx%d", e.Nx, e.Ny)
	}
	g, err := New(e)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := g.PointToIndex(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if idx != (Index{4, 4}) {
		t.Errorf("anchor cell = %v", idx)
	}
	x, y := g.CellCenter(idx)
	if x != 0 || y != 0 {
		t.Errorf("anchor cell center = (%g, %g)", x, y)
	}
}

func TestPointToIndex(t *testing.T) {
	g, err := New(Extent{CellSize: 10, Nx: 3, Ny: 2})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x, y float64
		want Index
		err  error
	}{
		{x: 0, y: 0, want: Index{0, 0}},
		{x: 5, y: 5, want: Index{0, 0}},
		{x: 10, y: 5, want: Index{0, 0}}, // tie goes to the lower index
		{x: 10.001, y: 10, want: Index{1, 0}},
		{x: 30, y: 20, want: Index{2, 1}},
		{x: 29.9, y: 19.9, want: Index{2, 1}},
		{x: -0.1, y: 5, err: ErrOutOfRange},
		{x: 30.1, y: 5, err: ErrOutOfRange},
		{x: 5, y: 20.1, err: ErrOutOfRange},
		{x: math.NaN(), y: 5, err: ErrOutOfRange},
	}
	for _, test := range tests {
		idx, err := g.PointToIndex(test.x, test.y)
		if !errors.Is(err, test.err) {
			t.Errorf("(%g, %g): error %v, want %v", test.x, test.y, err, test.err)
			continue
		}
		if err == nil && idx != test.want {
			t.Errorf("(%g, %g) = %v, want %v", test.x, test.y, idx, test.want)
		}
	}
}

func TestFields(t *testing.T) {
	g, err := New(Extent{CellSize: 1, Nx: 4, Ny: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SetField("dose", Index{3, 2}, 7); err != nil {
		t.Fatal(err)
	}
	v, err := g.GetField("dose", Index{3, 2})
	if err != nil {
		t.Fatal(err)
	}
	if v != 7 {
		t.Errorf("value = %g", v)
	}
	if v, _ := g.GetField("dose", Index{0, 0}); v != 0 {
		t.Errorf("unset cell = %g", v)
	}
	for _, idx := range []Index{{4, 0}, {0, 3}, {-1, 0}} {
		if _, err := g.GetField("dose", idx); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("get %v: %v", idx, err)
		}
		if err := g.SetField("dose", idx, 1); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("set %v: %v", idx, err)
		}
	}
	if _, err := g.GetField("missing", Index{0, 0}); err == nil {
		t.Error("expected error for missing field")
	}
	f, _ := g.Field("dose")
	if max, idx := f.Max(); max != 7 || idx != (Index{3, 2}) {
		t.Errorf("max = %g at %v", max, idx)
	}
}

func TestCoordinateToIndex(t *testing.T) {
	center := LatLon{Lat: 28.6, Lon: 77.2}
	g, err := New(Centered(center, 1000, 10000))
	if err != nil {
		t.Fatal(err)
	}
	idx, err := g.CoordinateToIndex(center.Lat, center.Lon)
	if err != nil {
		t.Fatal(err)
	}
	if idx != (Index{10, 10}) {
		t.Errorf("center = %v", idx)
	}
	// About 5 km north: five cells up.
	idx, err = g.CoordinateToIndex(center.Lat+0.045, center.Lon)
	if err != nil {
		t.Fatal(err)
	}
	if idx != (Index{10, 15}) {
		t.Errorf("north = %v", idx)
	}
	if _, err := g.CoordinateToIndex(center.Lat+1, center.Lon); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("far north: %v", err)
	}
}

func TestOverlaps(t *testing.T) {
	a := Centered(LatLon{Lat: 40, Lon: -100}, 1000, 20000)
	tests := []struct {
		b    Extent
		want bool
	}{
		{b: Centered(LatLon{Lat: 40, Lon: -100}, 500, 1000), want: true},
		{b: Centered(LatLon{Lat: 40.1, Lon: -100.1}, 1000, 5000), want: true},
		{b: Centered(LatLon{Lat: 42, Lon: -100}, 1000, 5000), want: false},
		{b: Create(LatLon{Lat: 40.19, Lon: -100}, 1000, 5, 5), want: false},
	}
	for i, test := range tests {
		got, err := a.Overlaps(test.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("%d: overlaps = %v, want %v", i, got, test.want)
		}
	}
}

func TestProjectionCacheBounded(t *testing.T) {
	first, err := Centered(LatLon{Lat: 10, Lon: 10}, 1000, 5000).Projection()
	if err != nil {
		t.Fatal(err)
	}
	again, err := Centered(LatLon{Lat: 10, Lon: 10}, 500, 2000).Projection()
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Error("same anchor gave a new projection")
	}
	for i := 0; i < 4*projCacheSize; i++ {
		if _, err := Centered(LatLon{Lat: -60 + float64(i)*0.1, Lon: 20}, 1000, 5000).Projection(); err != nil {
			t.Fatal(err)
		}
	}
	projMu.Lock()
	n := projCache.Len()
	projMu.Unlock()
	if n > projCacheSize {
		t.Errorf("%d cached projections, limit %d", n, projCacheSize)
	}
	x, y, err := first.ToLocal(LatLon{Lat: 10, Lon: 10})
	if err != nil || math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("evicted projection: anchor at (%g, %g), %v", x, y, err)
	}
}
