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

// Package grid holds the georeferenced rectangular grid that fallout
// simulations write their fields to. The grid lives in a local transverse
// Mercator frame (meters) anchored at a geographic point, so cell geometry
// is metric while queries can be made in latitude and longitude.
package grid

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/gonum/floats"
)

var (
	// ErrOutOfBounds is returned when a cell index lies outside the grid.
	ErrOutOfBounds = errors.New("grid: index out of bounds")

	// ErrOutOfRange is returned when a coordinate lies outside the grid extent.
	ErrOutOfRange = errors.New("grid: coordinate out of range")

	// ErrInvalidExtent is returned for a grid with non-positive size or
	// non-finite placement.
	ErrInvalidExtent = errors.New("grid: invalid extent")
)

// LatLon is a geographic location in decimal degrees (WGS84).
type LatLon struct {
	Lat, Lon float64
}

// Index identifies a grid cell by column (I, west to east) and row
// (J, south to north).
type Index struct {
	I, J int
}

func (i Index) String() string { return fmt.Sprintf("(%d, %d)", i.I, i.J) }

// Extent describes the placement and size of a grid.
type Extent struct {
	// Anchor is the origin of the local metric frame.
	Anchor LatLon

	// X0 and Y0 are the local coordinates of the lower-left grid corner.
	X0, Y0 float64 `units:"m"`

	// CellSize is the edge length of the square cells.
	CellSize float64 `units:"m"`

	// Nx and Ny are the numbers of columns and rows.
	Nx, Ny int
}

// Create returns the extent of a grid whose lower-left corner is at origin,
// with nx by ny cells of edge cellSize meters.
func Create(origin LatLon, cellSize float64, nx, ny int) Extent {
	return Extent{Anchor: origin, CellSize: cellSize, Nx: nx, Ny: ny}
}

// Centered returns an extent anchored at center that covers at least
// halfWidth meters in each direction. The number of cells along each axis is
// odd so that the anchor sits at the center of a cell.
func Centered(center LatLon, cellSize, halfWidth float64) Extent {
	m := int(math.Ceil(halfWidth / cellSize))
	n := 2*m + 1
	off := -(float64(m) + 0.5) * cellSize
	return Extent{Anchor: center, X0: off, Y0: off, CellSize: cellSize, Nx: n, Ny: n}
}

// Validate checks that e describes a usable grid.
func (e Extent) Validate() error {
	switch {
	case !(e.CellSize > 0) || math.IsInf(e.CellSize, 0):
		return fmt.Errorf("%w: cell size %g should be > 0", ErrInvalidExtent, e.CellSize)
	case e.Nx <= 0 || e.Ny <= 0:
		return fmt.Errorf("%w: %dx%d cells", ErrInvalidExtent, e.Nx, e.Ny)
	case math.IsNaN(e.X0) || math.IsNaN(e.Y0) || math.IsInf(e.X0, 0) || math.IsInf(e.Y0, 0):
		return fmt.Errorf("%w: corner (%g, %g)", ErrInvalidExtent, e.X0, e.Y0)
	case math.Abs(e.Anchor.Lat) > 90 || math.Abs(e.Anchor.Lon) > 180 ||
		math.IsNaN(e.Anchor.Lat) || math.IsNaN(e.Anchor.Lon):
		return fmt.Errorf("%w: anchor (%g, %g)", ErrInvalidExtent, e.Anchor.Lat, e.Anchor.Lon)
	}
	return nil
}

// Bounds returns the grid bounds in the local frame.
func (e Extent) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: e.X0, Y: e.Y0},
		Max: geom.Point{X: e.X0 + float64(e.Nx)*e.CellSize, Y: e.Y0 + float64(e.Ny)*e.CellSize},
	}
}

// CellArea returns the area of one cell in m².
func (e Extent) CellArea() float64 { return e.CellSize * e.CellSize }

// Proj4 returns the definition of the local frame of e.
func (e Extent) Proj4() string {
	return fmt.Sprintf("+proj=tmerc +lat_0=%g +lon_0=%g +k=1 +x_0=0 +y_0=0 +ellps=WGS84 +datum=WGS84 +units=m",
		e.Anchor.Lat, e.Anchor.Lon)
}

// Projection holds the transforms between a local frame and geographic
// coordinates.
type Projection struct {
	SR *proj.SR

	// Forward converts longitude and latitude to the local frame and
	// Inverse converts back.
	Forward, Inverse proj.Transformer
}

const geographicProj = "+proj=longlat +datum=WGS84"

// projCacheSize is the number of recently used local frames kept.
const projCacheSize = 64

var (
	projMu    sync.Mutex
	projCache = lru.New(projCacheSize) // LatLon -> *Projection
)

// Projection returns the transforms for the local frame of e.
func (e Extent) Projection() (*Projection, error) {
	projMu.Lock()
	defer projMu.Unlock()
	if p, ok := projCache.Get(e.Anchor); ok {
		return p.(*Projection), nil
	}
	local, err := proj.Parse(e.Proj4())
	if err != nil {
		return nil, fmt.Errorf("grid: parsing local projection: %w", err)
	}
	geo, err := proj.Parse(geographicProj)
	if err != nil {
		return nil, fmt.Errorf("grid: parsing geographic projection: %w", err)
	}
	toLocal, err := geo.NewTransform(local)
	if err != nil {
		return nil, fmt.Errorf("grid: creating projection: %w", err)
	}
	toGeo, err := local.NewTransform(geo)
	if err != nil {
		return nil, fmt.Errorf("grid: creating projection: %w", err)
	}
	p := &Projection{SR: local, Forward: toLocal, Inverse: toGeo}
	projCache.Add(e.Anchor, p)
	return p, nil
}

// ToLocal converts a geographic location to local frame coordinates.
func (p *Projection) ToLocal(ll LatLon) (x, y float64, err error) {
	return p.Forward(ll.Lon, ll.Lat)
}

// ToGeographic converts local frame coordinates to a geographic location.
func (p *Projection) ToGeographic(x, y float64) (LatLon, error) {
	lon, lat, err := p.Inverse(x, y)
	return LatLon{Lat: lat, Lon: lon}, err
}

// Overlaps reports whether the area covered by e intersects the area
// covered by o. The extents may have different anchors.
func (e Extent) Overlaps(o Extent) (bool, error) {
	if e.Anchor == o.Anchor {
		return e.Bounds().Overlaps(o.Bounds()), nil
	}
	ep, err := e.Projection()
	if err != nil {
		return false, err
	}
	op, err := o.Projection()
	if err != nil {
		return false, err
	}
	// Trace o's boundary through geographic coordinates so that the
	// curvature between the two frames is respected.
	g, err := densePolygonFromBounds(o.Bounds()).Transform(op.Inverse)
	if err != nil {
		return false, fmt.Errorf("grid: comparing extents: %w", err)
	}
	g, err = g.Transform(ep.Forward)
	if err != nil {
		return false, fmt.Errorf("grid: comparing extents: %w", err)
	}
	return e.Bounds().Overlaps(g.Bounds()), nil
}

// Outline returns the boundary of e in the local frame, with extra
// vertices along each edge so it keeps its shape when reprojected.
func (e Extent) Outline() geom.Polygon { return densePolygonFromBounds(e.Bounds()) }

func densePolygonFromBounds(b *geom.Bounds) geom.Polygon {
	const n = 8
	dx := (b.Max.X - b.Min.X) / n
	dy := (b.Max.Y - b.Min.Y) / n
	ring := make([]geom.Point, 0, 4*n+1)
	for i := 0; i < n; i++ {
		ring = append(ring, geom.Point{X: b.Min.X + float64(i)*dx, Y: b.Min.Y})
	}
	for i := 0; i < n; i++ {
		ring = append(ring, geom.Point{X: b.Max.X, Y: b.Min.Y + float64(i)*dy})
	}
	for i := 0; i < n; i++ {
		ring = append(ring, geom.Point{X: b.Max.X - float64(i)*dx, Y: b.Max.Y})
	}
	for i := 0; i < n; i++ {
		ring = append(ring, geom.Point{X: b.Min.X, Y: b.Max.Y - float64(i)*dy})
	}
	ring = append(ring, b.Min)
	return geom.Polygon{ring}
}

// Field is a named scalar field on a grid.
type Field struct {
	Name        string
	Units       string
	Description string

	// Attributes holds free-form metadata such as the reference time of a
	// dose-rate field or the exposure window of an integrated dose.
	Attributes map[string]string

	// Data has shape [Ny, Nx].
	Data *sparse.DenseArray
}

// Sum returns the sum over all cells.
func (f *Field) Sum() float64 { return floats.Sum(f.Data.Elements) }

// Max returns the largest cell value and its index.
func (f *Field) Max() (float64, Index) {
	i := floats.MaxIdx(f.Data.Elements)
	nx := f.Data.Shape[1]
	return f.Data.Elements[i], Index{I: i % nx, J: i / nx}
}

// Grid is a set of fields sharing one extent.
type Grid struct {
	Extent
	fields map[string]*Field
}

// New returns an empty grid covering e.
func New(e Extent) (*Grid, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &Grid{Extent: e, fields: make(map[string]*Field)}, nil
}

// AddField adds a zero-initialized field to the grid, returning the
// existing field if one with the same name is already present.
func (g *Grid) AddField(name, units, description string) *Field {
	if f, ok := g.fields[name]; ok {
		return f
	}
	f := &Field{
		Name:        name,
		Units:       units,
		Description: description,
		Attributes:  make(map[string]string),
		Data:        sparse.ZerosDense(g.Ny, g.Nx),
	}
	g.fields[name] = f
	return f
}

// Field returns the named field.
func (g *Grid) Field(name string) (*Field, error) {
	f, ok := g.fields[name]
	if !ok {
		return nil, fmt.Errorf("grid: no field named %q", name)
	}
	return f, nil
}

// FieldNames returns the names of the fields on the grid in sorted order.
func (g *Grid) FieldNames() []string {
	names := make([]string, 0, len(g.fields))
	for n := range g.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InBounds reports whether idx is a cell of the grid.
func (g *Grid) InBounds(idx Index) bool {
	return idx.I >= 0 && idx.I < g.Nx && idx.J >= 0 && idx.J < g.Ny
}

// SetField sets the value of the named field in cell idx. The field is
// created if it does not exist.
func (g *Grid) SetField(name string, idx Index, value float64) error {
	if !g.InBounds(idx) {
		return fmt.Errorf("%w: %v in %dx%d grid", ErrOutOfBounds, idx, g.Nx, g.Ny)
	}
	g.AddField(name, "", "").Data.Set(value, idx.J, idx.I)
	return nil
}

// GetField returns the value of the named field in cell idx.
func (g *Grid) GetField(name string, idx Index) (float64, error) {
	if !g.InBounds(idx) {
		return 0, fmt.Errorf("%w: %v in %dx%d grid", ErrOutOfBounds, idx, g.Nx, g.Ny)
	}
	f, err := g.Field(name)
	if err != nil {
		return 0, err
	}
	return f.Data.Get(idx.J, idx.I), nil
}

// Value returns the named field's value at idx, or zero if there is no
// such field or cell. It is safe for concurrent use with Set.
func (g *Grid) Value(name string, idx Index) float64 {
	f, ok := g.fields[name]
	if !ok || !g.InBounds(idx) {
		return 0
	}
	return f.Data.Elements[idx.J*g.Nx+idx.I]
}

// Set sets the named field at idx if the field and cell exist. Unlike
// SetField it never adds a field, so concurrent calls for different cells
// are safe.
func (g *Grid) Set(name string, idx Index, v float64) {
	f, ok := g.fields[name]
	if !ok || !g.InBounds(idx) {
		return
	}
	f.Data.Elements[idx.J*g.Nx+idx.I] = v
}

// axisIndex returns the cell along one axis holding coordinate v, or false
// if v is outside [v0, v0+n*size]. Points on a shared edge belong to the
// lower cell.
func axisIndex(v, v0, size float64, n int) (int, bool) {
	u := (v - v0) / size
	if math.IsNaN(u) || u < 0 || u > float64(n) {
		return 0, false
	}
	if u == 0 {
		return 0, true
	}
	return int(math.Ceil(u)) - 1, true
}

// PointToIndex returns the cell with the nearest center to the local frame
// point (x, y). Ties are broken toward the lower index.
func (g *Grid) PointToIndex(x, y float64) (Index, error) {
	i, okx := axisIndex(x, g.X0, g.CellSize, g.Nx)
	j, oky := axisIndex(y, g.Y0, g.CellSize, g.Ny)
	if !okx || !oky {
		return Index{}, fmt.Errorf("%w: (%g, %g) m", ErrOutOfRange, x, y)
	}
	return Index{I: i, J: j}, nil
}

// CoordinateToIndex returns the cell with the nearest center to the
// geographic location (lat, lon).
func (g *Grid) CoordinateToIndex(lat, lon float64) (Index, error) {
	p, err := g.Projection()
	if err != nil {
		return Index{}, err
	}
	x, y, err := p.ToLocal(LatLon{Lat: lat, Lon: lon})
	if err != nil {
		return Index{}, fmt.Errorf("%w: (%g, %g): %v", ErrOutOfRange, lat, lon, err)
	}
	idx, err := g.PointToIndex(x, y)
	if err != nil {
		return Index{}, fmt.Errorf("%w: (%g°, %g°)", ErrOutOfRange, lat, lon)
	}
	return idx, nil
}

// CellCenter returns the local frame coordinates of the center of idx.
func (e Extent) CellCenter(idx Index) (x, y float64) {
	return e.X0 + (float64(idx.I)+0.5)*e.CellSize, e.Y0 + (float64(idx.J)+0.5)*e.CellSize
}

// CellPolygon returns the outline of idx in the local frame.
func (e Extent) CellPolygon(idx Index) geom.Polygon {
	x := e.X0 + float64(idx.I)*e.CellSize
	y := e.Y0 + float64(idx.J)*e.CellSize
	return geom.Polygon{{
		{X: x, Y: y},
		{X: x + e.CellSize, Y: y},
		{X: x + e.CellSize, Y: y + e.CellSize},
		{X: x, Y: y + e.CellSize},
		{X: x, Y: y},
	}}
}

// CellGeographic returns the outline of idx in geographic coordinates
// (x = longitude, y = latitude).
func (g *Grid) CellGeographic(idx Index) (geom.Polygonal, error) {
	p, err := g.Projection()
	if err != nil {
		return nil, err
	}
	gg, err := g.CellPolygon(idx).Transform(p.Inverse)
	if err != nil {
		return nil, fmt.Errorf("grid: cell %v: %w", idx, err)
	}
	return gg.(geom.Polygonal), nil
}

type gobField struct {
	Name, Units, Description string
	Attributes               map[string]string
	Values                   []float64
}

type gobGrid struct {
	Extent Extent
	Fields []gobField
}

// GobEncode implements gob.GobEncoder.
func (g *Grid) GobEncode() ([]byte, error) {
	gg := gobGrid{Extent: g.Extent}
	for _, name := range g.FieldNames() {
		f := g.fields[name]
		gg.Fields = append(gg.Fields, gobField{
			Name:        f.Name,
			Units:       f.Units,
			Description: f.Description,
			Attributes:  f.Attributes,
			Values:      f.Data.Elements,
		})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gg); err != nil {
		return nil, fmt.Errorf("grid: encoding: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (g *Grid) GobDecode(b []byte) error {
	var gg gobGrid
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&gg); err != nil {
		return fmt.Errorf("grid: decoding: %w", err)
	}
	ng, err := New(gg.Extent)
	if err != nil {
		return err
	}
	for _, gf := range gg.Fields {
		if len(gf.Values) != ng.Nx*ng.Ny {
			return fmt.Errorf("grid: decoding field %s: %d values for %dx%d grid", gf.Name, len(gf.Values), ng.Nx, ng.Ny)
		}
		f := ng.AddField(gf.Name, gf.Units, gf.Description)
		for k, v := range gf.Attributes {
			f.Attributes[k] = v
		}
		copy(f.Data.Elements, gf.Values)
	}
	*g = *ng
	return nil
}
