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
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

func TestWriteNetCDF(t *testing.T) {
	r := testResult(t)
	file := filepath.Join(t.TempDir(), "out.nc")
	if err := r.WriteNetCDF(file); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	have := make(map[string]bool)
	for _, v := range nc.Header.Variables() {
		have[v] = true
	}
	for _, v := range append([]string{"x", "y", "lat", "lon"}, r.Grid.FieldNames()...) {
		if !have[v] {
			t.Errorf("missing variable %s", v)
		}
	}
	read := func(v string) []float64 {
		rd := nc.Reader(v, nil, nil)
		buf := rd.Zero(-1)
		if _, err := rd.Read(buf); err != nil {
			t.Fatal(err)
		}
		return buf.([]float64)
	}
	dose, _ := r.Field(IntegratedDoseField)
	for i, v := range read(IntegratedDoseField) {
		if v != dose.Data.Elements[i] {
			t.Fatalf("cell %d: %g, want %g", i, v, dose.Data.Elements[i])
		}
	}
	arrival, _ := r.Field(ArrivalField)
	for i, v := range read(ArrivalField) {
		if a := arrival.Data.Elements[i]; math.IsInf(a, 1) && v != NoData || !math.IsInf(a, 1) && v != a {
			t.Fatalf("arrival %d: %g, want %g", i, v, a)
		}
	}
	// The middle cell is ground zero.
	lat, lon := read("lat"), read("lon")
	mid := r.Grid.Ny/2*r.Grid.Nx + r.Grid.Nx/2
	if math.Abs(lat[mid]-delhi.Lat) > 1e-6 || math.Abs(lon[mid]-delhi.Lon) > 1e-6 {
		t.Errorf("middle cell at (%g, %g)", lat[mid], lon[mid])
	}
	if u, ok := nc.Header.GetAttribute(IntegratedDoseField, "units").(string); !ok || u != "R" {
		t.Errorf("dose units %v", nc.Header.GetAttribute(IntegratedDoseField, "units"))
	}
}
