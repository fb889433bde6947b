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
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/fallout/grid"
)

// WriteNetCDF writes every field of r, together with cell-center
// coordinates, to a NetCDF (version 3) file. Fields are stored as [y, x]
// arrays starting from the south-west corner. Non-finite values are
// written as NoData and flagged with a _FillValue attribute.
func (r *Result) WriteNetCDF(filename string) error {
	g := r.Grid
	names := g.FieldNames()

	h := cdf.NewHeader([]string{"y", "x"}, []int{g.Ny, g.Nx})
	h.AddAttribute("", "title", "Fallout "+r.Model+" simulation")
	h.AddAttribute("", "detonation", r.Params.String())
	h.AddAttribute("", "window", r.Window.String())
	h.AddAttribute("", "proj4", g.Proj4())
	h.AddAttribute("", "cell_size", []float64{g.CellSize})

	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "units", "m")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "units", "m")
	h.AddVariable("lat", []string{"y", "x"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"y", "x"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	for _, n := range names {
		f, err := g.Field(n)
		if err != nil {
			return err
		}
		h.AddVariable(n, []string{"y", "x"}, []float64{0})
		h.AddAttribute(n, "units", f.Units)
		h.AddAttribute(n, "description", f.Description)
		h.AddAttribute(n, "_FillValue", []float64{NoData})
	}
	h.Define()

	ff, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("fallout: creating NetCDF file: %w", err)
	}
	defer ff.Close()
	nc, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("fallout: writing NetCDF header: %w", err)
	}

	xs := make([]float64, g.Nx)
	for i := range xs {
		xs[i], _ = g.CellCenter(grid.Index{I: i})
	}
	ys := make([]float64, g.Ny)
	for j := range ys {
		_, ys[j] = g.CellCenter(grid.Index{J: j})
	}
	pr, err := g.Projection()
	if err != nil {
		return err
	}
	lat := make([]float64, g.Nx*g.Ny)
	lon := make([]float64, g.Nx*g.Ny)
	for j, y := range ys {
		for i, x := range xs {
			ll, err := pr.ToGeographic(x, y)
			if err != nil {
				return err
			}
			lat[j*g.Nx+i], lon[j*g.Nx+i] = ll.Lat, ll.Lon
		}
	}
	vars := map[string][]float64{"x": xs, "y": ys, "lat": lat, "lon": lon}
	for _, n := range names {
		f, _ := g.Field(n)
		data := make([]float64, len(f.Data.Elements))
		for i, v := range f.Data.Elements {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = NoData
			}
			data[i] = v
		}
		vars[n] = data
	}
	for _, n := range append([]string{"x", "y", "lat", "lon"}, names...) {
		if err := writeNCF(nc, n, vars[n]); err != nil {
			return err
		}
	}
	return ff.Close()
}

func writeNCF(f *cdf.File, v string, data []float64) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	w := f.Writer(v, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("fallout: writing NetCDF variable %s: %w", v, err)
	}
	return nil
}
