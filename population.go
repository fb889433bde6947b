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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/fallout/grid"
)

// Population is a source of population counts that can be resampled onto a
// simulation grid.
type Population interface {
	// Overlaps reports whether any of the population lies within e.
	Overlaps(e grid.Extent) (bool, error)

	// Regrid returns the number of people in each cell of g, row-major
	// starting from the south-west corner.
	Regrid(g *grid.Grid) ([]float64, error)
}

// UniformDensity is a population spread evenly everywhere.
type UniformDensity float64 // people per km²

// Validate checks that the density is a finite non-negative number.
func (u UniformDensity) Validate() error {
	if u < 0 || math.IsNaN(float64(u)) || math.IsInf(float64(u), 0) {
		return InvalidParameterError{Name: "Population", Reason: fmt.Sprintf("density %g per km² should be >= 0", float64(u))}
	}
	return nil
}

// Overlaps returns true for any valid density and the Validate error
// otherwise.
func (u UniformDensity) Overlaps(grid.Extent) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}
	return true, nil
}

// Regrid implements Population.
func (u UniformDensity) Regrid(g *grid.Grid) ([]float64, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, g.Nx*g.Ny)
	c := float64(u) * g.CellArea() / 1e6
	for i := range out {
		out[i] = c
	}
	return out, nil
}

// DensityPresets are representative population densities in people per
// km².
var DensityPresets = map[string]UniformDensity{
	"rural":      1000,
	"suburban":   5000,
	"urban":      15000,
	"dense":      35000,
	"very-dense": 60000,
	"central":    80000,
}

// LookupDensity returns the named preset or parses a number of people per
// km².
func LookupDensity(s string) (UniformDensity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := DensityPresets[s]; ok {
		return d, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		names := make([]string, 0, len(DensityPresets))
		for n := range DensityPresets {
			names = append(names, n)
		}
		sort.Strings(names)
		return 0, InvalidParameterError{Name: "Population", Reason: fmt.Sprintf("%q is not a density or one of %s", s, strings.Join(names, ", "))}
	}
	return UniformDensity(v), nil
}

// populationShape is a polygon holding Count people, in geographic
// coordinates.
type populationShape struct {
	geom.Polygonal
	Count float64
	order int
}

// PolygonPopulation holds population counts attached to polygons, such as
// census tracts or the cells of another grid.
type PolygonPopulation struct {
	tree   *rtree.Rtree
	shapes int
	total  float64
}

// NewPolygonPopulation indexes polygons in longitude/latitude coordinates
// holding the given numbers of people.
func NewPolygonPopulation(shapes []geom.Polygonal, counts []float64) (*PolygonPopulation, error) {
	if len(shapes) != len(counts) {
		return nil, fmt.Errorf("fallout: %d population shapes but %d counts", len(shapes), len(counts))
	}
	p := &PolygonPopulation{tree: rtree.NewTree(25, 50)}
	for i, s := range shapes {
		if err := p.add(s, counts[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PolygonPopulation) add(s geom.Polygonal, count float64) error {
	if count < 0 || math.IsNaN(count) || math.IsInf(count, 0) {
		return InvalidParameterError{Name: "Population", Reason: fmt.Sprintf("shape %d has %g people", p.shapes, count)}
	}
	if count == 0 {
		return nil
	}
	p.tree.Insert(&populationShape{Polygonal: s, Count: count, order: p.shapes})
	p.shapes++
	p.total += count
	return nil
}

// Total returns the number of people held.
func (p *PolygonPopulation) Total() float64 { return p.total }

// ReadPopulationShapefile reads polygons and the population column from a
// shapefile in any projection that has a .prj file.
func ReadPopulationShapefile(filename, column string) (*PolygonPopulation, error) {
	dec, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("fallout: opening population shapefile: %w", err)
	}
	defer dec.Close()
	sr, err := dec.SR()
	if err != nil {
		return nil, fmt.Errorf("fallout: population shapefile projection: %w", err)
	}
	geo, err := proj.Parse("+proj=longlat +datum=WGS84")
	if err != nil {
		return nil, err
	}
	trans, err := sr.NewTransform(geo)
	if err != nil {
		return nil, fmt.Errorf("fallout: population shapefile projection: %w", err)
	}
	p := &PolygonPopulation{tree: rtree.NewTree(25, 50)}
	for {
		g, fields, more := dec.DecodeRowFields(column)
		if !more {
			break
		}
		s, ok := fields[column]
		if !ok {
			return nil, fmt.Errorf("fallout: population shapefile: missing attribute column %s", column)
		}
		count, err := s2f(s)
		if err != nil {
			return nil, fmt.Errorf("fallout: population shapefile: %w", err)
		}
		gg, err := g.Transform(trans)
		if err != nil {
			return nil, err
		}
		poly, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("fallout: population shapes need to be polygons, not %T", gg)
		}
		if err := p.add(poly, count); err != nil {
			return nil, err
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("fallout: reading population shapefile: %w", err)
	}
	return p, nil
}

func s2f(s string) (float64, error) {
	s = strings.Trim(s, "\x00* ")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// GriddedPopulation converts the named field of g, holding people per cell,
// into a population source.
func GriddedPopulation(g *grid.Grid, field string) (*PolygonPopulation, error) {
	f, err := g.Field(field)
	if err != nil {
		return nil, err
	}
	p := &PolygonPopulation{tree: rtree.NewTree(25, 50)}
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			v := f.Data.Get(j, i)
			if v == 0 {
				continue
			}
			poly, err := g.CellGeographic(grid.Index{I: i, J: j})
			if err != nil {
				return nil, err
			}
			if err := p.add(poly, v); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// geographicBounds returns the longitude/latitude bounds of e.
func geographicBounds(e grid.Extent) (*geom.Bounds, *grid.Projection, error) {
	pr, err := e.Projection()
	if err != nil {
		return nil, nil, err
	}
	g, err := e.Outline().Transform(pr.Inverse)
	if err != nil {
		return nil, nil, fmt.Errorf("fallout: grid outline: %w", err)
	}
	return g.Bounds(), pr, nil
}

// candidates returns the shapes that may intersect e, in the order they
// were added.
func (p *PolygonPopulation) candidates(e grid.Extent) ([]*populationShape, *grid.Projection, error) {
	b, pr, err := geographicBounds(e)
	if err != nil {
		return nil, nil, err
	}
	found := p.tree.SearchIntersect(b)
	out := make([]*populationShape, len(found))
	for i, f := range found {
		out[i] = f.(*populationShape)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out, pr, nil
}

// Overlaps implements Population.
func (p *PolygonPopulation) Overlaps(e grid.Extent) (bool, error) {
	c, pr, err := p.candidates(e)
	if err != nil {
		return false, err
	}
	eb := e.Bounds()
	for _, s := range c {
		local, err := s.Transform(pr.Forward)
		if err != nil {
			return false, err
		}
		if local.Bounds().Overlaps(eb) {
			return true, nil
		}
	}
	return false, nil
}

// Regrid allocates each shape's people to the cells of g in proportion to
// the area of overlap. People in parts of shapes outside g are dropped.
func (p *PolygonPopulation) Regrid(g *grid.Grid) ([]float64, error) {
	c, pr, err := p.candidates(g.Extent)
	if err != nil {
		return nil, err
	}
	out := make([]float64, g.Nx*g.Ny)
	for _, s := range c {
		lg, err := s.Transform(pr.Forward)
		if err != nil {
			return nil, fmt.Errorf("fallout: regridding population: %w", err)
		}
		local := lg.(geom.Polygonal)
		area := local.Area()
		if area <= 0 {
			continue
		}
		b := local.Bounds()
		i0, i1 := cellRange(b.Min.X, b.Max.X, g.X0, g.CellSize, g.Nx)
		j0, j1 := cellRange(b.Min.Y, b.Max.Y, g.Y0, g.CellSize, g.Ny)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				cell := g.CellPolygon(grid.Index{I: i, J: j})
				overlap := cell.Intersection(local).Area()
				if overlap > 0 {
					out[j*g.Nx+i] += s.Count * overlap / area
				}
			}
		}
	}
	return out, nil
}

// cellRange returns the range of cells along one axis touched by
// [lo, hi], clipped to the grid. The range is empty (first > last) when
// there is no overlap.
func cellRange(lo, hi, v0, size float64, n int) (first, last int) {
	first = int(math.Floor((lo - v0) / size))
	last = int(math.Floor((hi - v0) / size))
	if first < 0 {
		first = 0
	}
	if last > n-1 {
		last = n - 1
	}
	return first, last
}

// SetPopulation returns a function that resamples pop onto the simulation
// grid, storing it in the Population field.
func SetPopulation(pop Population) DomainManipulator {
	return func(s *Simulation) error {
		counts, err := pop.Regrid(s.Grid)
		if err != nil {
			return err
		}
		f := s.Grid.AddField(PopulationField, "people", "Number of people in each cell")
		copy(f.Data.Elements, counts)
		return nil
	}
}
