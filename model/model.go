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

// Package model runs a fallout simulation with either the DELFIC or the
// WSEG-10 engine. Inputs are validated before any grid is allocated.
package model

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/delfic"
	"github.com/spatialmodel/fallout/grid"
	"github.com/spatialmodel/fallout/wseg"
)

// Kind identifies a fallout engine.
type Kind int

const (
	// DELFIC is the particle-transport model.
	DELFIC Kind = iota
	// WSEG10 is the empirical closed-form model.
	WSEG10
)

func (k Kind) String() string {
	switch k {
	case DELFIC:
		return "DELFIC"
	case WSEG10:
		return "WSEG-10"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a model name such as "delfic" or "wseg10".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)) {
	case "delfic":
		return DELFIC, nil
	case "wseg", "wseg10":
		return WSEG10, nil
	}
	return 0, fallout.InvalidParameterError{Name: "Model", Reason: fmt.Sprintf("unknown model %q; use DELFIC or WSEG-10", s)}
}

// Model is an engine choice together with its configuration. Only the
// configuration matching Kind is used.
type Model struct {
	Kind   Kind
	DELFIC delfic.Config
	WSEG   wseg.Config
}

// New returns the model of kind k with its default configuration.
func New(k Kind) Model {
	switch k {
	case DELFIC:
		return Model{Kind: k, DELFIC: delfic.DefaultConfig()}
	case WSEG10:
		return Model{Kind: k, WSEG: wseg.DefaultConfig()}
	}
	return Model{Kind: k}
}

// stages returns the engine stages for the model.
func (m Model) stages() ([]fallout.DomainManipulator, error) {
	switch m.Kind {
	case DELFIC:
		if err := m.DELFIC.Validate(); err != nil {
			return nil, err
		}
		return m.DELFIC.Stages(), nil
	case WSEG10:
		if err := m.WSEG.Validate(); err != nil {
			return nil, err
		}
		return m.WSEG.Stages(), nil
	}
	return nil, fallout.InvalidParameterError{Name: "Model", Reason: m.Kind.String()}
}

const (
	// DefaultCellSize is the grid spacing used when none is given.
	DefaultCellSize = 500.0 // m

	// maxCells limits the number of cells along one side of the grid.
	maxCells = 5001
)

// DefaultHalfWidth returns the distance from ground zero to the edge of
// the simulation grid for a yield in kt: 50 km plus 4 km per kt, at most
// 250 km.
func DefaultHalfWidth(yield float64) float64 {
	return math.Min(250, 50+4*yield) * 1000
}

// Options are the optional inputs to Run. Zero values select defaults.
type Options struct {
	// Window is the exposure window. The default is the first 24 hours.
	Window fallout.ExposureWindow

	CellSize  float64 `desc:"Grid spacing" units:"m"`
	HalfWidth float64 `desc:"Distance from ground zero to the grid edge" units:"m"`

	// Shelter is the fraction of the outdoor dose received by the
	// population, in (0, 1]. Zero selects the default of 1.
	Shelter float64

	Decay fallout.DecayLaw
	Bands casualty.Bands

	// Log receives a progress message after each stage if not nil.
	Log io.Writer
}

// withDefaults fills in the zero fields of o.
func (o Options) withDefaults(p fallout.DetonationParameters) Options {
	if o.Window == (fallout.ExposureWindow{}) {
		o.Window = fallout.ExposureWindow{Start: 0, Duration: 24}
	}
	if o.CellSize == 0 {
		o.CellSize = DefaultCellSize
	}
	if o.HalfWidth == 0 {
		o.HalfWidth = DefaultHalfWidth(p.Yield)
	}
	if o.Shelter == 0 {
		o.Shelter = casualty.Outdoors
	}
	if o.Decay == (fallout.DecayLaw{}) {
		o.Decay = fallout.DefaultDecay
	}
	if o.Bands == nil {
		o.Bands = casualty.Default
	}
	return o
}

func (o Options) validate() error {
	if err := o.Window.Validate(); err != nil {
		return err
	}
	if err := o.Decay.Validate(); err != nil {
		return err
	}
	if err := o.Bands.Validate(); err != nil {
		return fallout.InvalidParameterError{Name: "Bands", Reason: err.Error()}
	}
	switch {
	case !(o.CellSize > 0) || math.IsInf(o.CellSize, 0):
		return fallout.InvalidParameterError{Name: "CellSize", Reason: fmt.Sprintf("cell size=%g m but should be > 0", o.CellSize)}
	case !(o.HalfWidth >= o.CellSize) || math.IsInf(o.HalfWidth, 0):
		return fallout.InvalidParameterError{Name: "HalfWidth", Reason: fmt.Sprintf("half width=%g m but should be at least the cell size", o.HalfWidth)}
	case 2*math.Ceil(o.HalfWidth/o.CellSize)+1 > maxCells:
		return fallout.InvalidParameterError{Name: "CellSize", Reason: fmt.Sprintf("%g m cells over %g m give more than %d cells per side", o.CellSize, o.HalfWidth, maxCells)}
	case !(o.Shelter > 0 && o.Shelter <= 1):
		return fallout.InvalidParameterError{Name: "Shelter", Reason: fmt.Sprintf("transmission=%g but should be in (0, 1]", o.Shelter)}
	}
	return nil
}

// Extent returns the simulation grid for a detonation, centered on ground
// zero.
func (o Options) Extent(p fallout.DetonationParameters) grid.Extent {
	o = o.withDefaults(p)
	return grid.Centered(p.Location, o.CellSize, o.HalfWidth)
}

// Run simulates the fallout from a detonation with the given wind and
// population using model m. It returns an error matching
// fallout.ErrInvalidParameters, without allocating a grid, if the
// detonation parameters are out of range, the wind profile is malformed,
// an option is out of range, or the population is invalid or does not
// overlap the simulation grid.
func Run(ctx context.Context, p fallout.DetonationParameters, wind fallout.WindProfile, pop fallout.Population, m Model, opts Options) (*fallout.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := wind.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults(p)
	if err := opts.validate(); err != nil {
		return nil, err
	}
	stages, err := m.stages()
	if err != nil {
		return nil, err
	}
	if pop == nil {
		return nil, fallout.InvalidParameterError{Name: "Population", Reason: "no population given"}
	}
	e := opts.Extent(p)
	ok, err := pop.Overlaps(e)
	if err != nil {
		return nil, fmt.Errorf("model: checking population extent: %w", err)
	}
	if !ok {
		return nil, fallout.InvalidParameterError{Name: "Population", Reason: "population does not overlap the simulation grid"}
	}

	s := &fallout.Simulation{
		Params:  p,
		Wind:    wind,
		Window:  opts.Window,
		Decay:   opts.Decay,
		Shelter: opts.Shelter,
		InitFuncs: []fallout.DomainManipulator{
			fallout.CreateGrid(e),
			fallout.AddOutputFields(),
			fallout.SetPopulation(pop),
		},
	}
	if p.LocalFallout() {
		s.RunFuncs = append(s.RunFuncs, stages...)
	} else {
		s.RunFuncs = append(s.RunFuncs, func(s *fallout.Simulation) error {
			s.Note("airburst at %g m is above the %.0f m fireball radius; no local fallout", p.Height, p.FireballRadius())
			return nil
		})
	}
	s.RunFuncs = append(s.RunFuncs, fallout.Casualties(opts.Bands))
	if opts.Log != nil {
		s.RunFuncs = append(s.RunFuncs, fallout.Log(opts.Log, m.Kind.String()))
	}
	if err := s.Simulate(ctx); err != nil {
		return nil, err
	}
	return fallout.NewResult(m.Kind.String(), s), nil
}
