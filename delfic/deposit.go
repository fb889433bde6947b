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
	"runtime"
	"sync"

	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/grid"
)

// Kernel is the ground footprint of one bin: a Gaussian stretched along
// the transport axis and truncated at Truncation standard deviations.
type Kernel struct {
	X, Y         float64 // center, local grid coordinates, m
	AxisX, AxisY float64
	Along        float64 // σ along the axis, m
	Across       float64 // σ across the axis, m
	Truncation   float64
}

// Kernel returns the footprint of path p for a bin landing at (x0, y0)
// plus the path offset.
func (c Config) Kernel(cloud Cloud, p Path, x0, y0 float64) Kernel {
	across := math.Sqrt(cloud.Sigma*cloud.Sigma + 2*c.Diffusivity*p.FallTime)
	return Kernel{
		X:          x0 + p.X,
		Y:          y0 + p.Y,
		AxisX:      p.AxisX,
		AxisY:      p.AxisY,
		Along:      math.Sqrt(across*across + p.LayerSpread*p.LayerSpread),
		Across:     across,
		Truncation: c.Truncation,
	}
}

// patch is the part of a bin's deposition that falls on the grid.
type patch struct {
	i0, j0, nx, ny int
	w              []float64 // weight per cell, row-major
}

// rasterize evaluates the kernel at the cell centers of every lattice
// cell inside its truncation ellipse, including cells beyond the edge of
// e, and returns the on-grid weights normalized by the total so that the
// whole lattice footprint sums to one.
func (k Kernel) rasterize(e grid.Extent) patch {
	r := k.Truncation
	ax, ay := k.AxisX, k.AxisY
	hx := r * math.Sqrt(k.Along*k.Along*ax*ax+k.Across*k.Across*ay*ay)
	hy := r * math.Sqrt(k.Along*k.Along*ay*ay+k.Across*k.Across*ax*ax)
	cs := e.CellSize
	li0 := int(math.Floor((k.X - hx - e.X0) / cs))
	li1 := int(math.Ceil((k.X + hx - e.X0) / cs))
	lj0 := int(math.Floor((k.Y - hy - e.Y0) / cs))
	lj1 := int(math.Ceil((k.Y + hy - e.Y0) / cs))

	p := patch{i0: max(li0, 0), j0: max(lj0, 0)}
	p.nx = min(li1, e.Nx-1) - p.i0 + 1
	p.ny = min(lj1, e.Ny-1) - p.j0 + 1
	if p.nx > 0 && p.ny > 0 {
		p.w = make([]float64, p.nx*p.ny)
	}
	ia, ic := 1/(k.Along*k.Along), 1/(k.Across*k.Across)
	var sum float64
	for j := lj0; j <= lj1; j++ {
		dy := e.Y0 + (float64(j)+0.5)*cs - k.Y
		for i := li0; i <= li1; i++ {
			dx := e.X0 + (float64(i)+0.5)*cs - k.X
			a := dx*ax + dy*ay
			b := -dx*ay + dy*ax
			q := a*a*ia + b*b*ic
			if q > r*r {
				continue
			}
			w := math.Exp(-0.5 * q)
			sum += w
			if i >= p.i0 && i < p.i0+p.nx && j >= p.j0 && j < p.j0+p.ny {
				p.w[(j-p.j0)*p.nx+(i-p.i0)] = w
			}
		}
	}
	if sum == 0 {
		// Footprint narrower than a cell: everything lands in the cell
		// holding the center.
		p.w = nil
		i := int(math.Floor((k.X - e.X0) / cs))
		j := int(math.Floor((k.Y - e.Y0) / cs))
		if i < 0 || j < 0 || i >= e.Nx || j >= e.Ny {
			p.nx, p.ny = 0, 0
			return p
		}
		p.i0, p.j0, p.nx, p.ny = i, j, 1, 1
		p.w = []float64{1}
		return p
	}
	for n := range p.w {
		p.w[n] /= sum
	}
	return p
}

// Footprint returns the share of the kernel falling in each cell of e,
// as a row-major slice. Shares sum to 1 when the whole footprint lies on
// the grid.
func (k Kernel) Footprint(e grid.Extent) []float64 {
	out := make([]float64, e.Nx*e.Ny)
	p := k.rasterize(e)
	for j := 0; j < p.ny; j++ {
		for i := 0; i < p.nx; i++ {
			out[(p.j0+j)*e.Nx+p.i0+i] = p.w[j*p.nx+i]
		}
	}
	return out
}

// deposit is the fourth stage. Footprints are rasterized concurrently and
// then added to the Deposition field in bin order.
func (e *engine) deposit(s *fallout.Simulation) error {
	pr, err := s.Grid.Projection()
	if err != nil {
		return err
	}
	x0, y0, err := pr.ToLocal(s.Params.Location)
	if err != nil {
		return err
	}
	patches := make([]patch, len(e.bins))
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for k := pp; k < len(e.bins); k += nprocs {
				if e.paths[k].Skip {
					continue
				}
				patches[k] = e.cfg.Kernel(e.cloud, e.paths[k], x0, y0).rasterize(s.Grid.Extent)
			}
		}(pp)
	}
	wg.Wait()

	dep, err := s.Grid.Field(fallout.DepositionField)
	if err != nil {
		return err
	}
	arr, err := s.Grid.Field(fallout.ArrivalField)
	if err != nil {
		return err
	}
	density := s.Params.FissionYield() / (s.Grid.CellArea() / 1e6) // kt/km² for a weight of one
	nx := s.Grid.Nx
	for k, p := range patches {
		if p.w == nil {
			continue
		}
		a := e.bins[k].Fraction * density
		t := e.paths[k].Arrival
		for j := 0; j < p.ny; j++ {
			for i := 0; i < p.nx; i++ {
				w := p.w[j*p.nx+i]
				if w == 0 {
					continue
				}
				n := (p.j0+j)*nx + p.i0 + i
				dep.Data.Elements[n] += a * w
				if t < arr.Data.Elements[n] {
					arr.Data.Elements[n] = t
				}
			}
		}
	}
	return nil
}
