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
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/grid"
)

// Simulation holds the state of one fallout calculation.
type Simulation struct {
	Params DetonationParameters
	Wind   WindProfile
	Window ExposureWindow
	Decay  DecayLaw

	// Shelter is the fraction of the outdoor dose received by the
	// population, from 0 (fully shielded) to 1 (outdoors).
	Shelter float64

	// Grid holds the output fields. It is created by an InitFunc.
	Grid *grid.Grid

	// Casualties is filled in by the casualty stage.
	Casualties casualty.Breakdown

	// InitFuncs are run once before the simulation starts; RunFuncs are
	// run in order to carry it out, and CleanupFuncs run afterward.
	InitFuncs, RunFuncs, CleanupFuncs []DomainManipulator

	ctx         context.Context
	mu          sync.Mutex
	divergences []DivergenceError
	notes       []string
}

// DomainManipulator is a function that operates on the whole simulation.
type DomainManipulator func(s *Simulation) error

// CellManipulator is a function that operates on one grid cell. Calls for
// different cells may run concurrently.
type CellManipulator func(s *Simulation, idx grid.Index)

// Init runs the InitFuncs.
func (s *Simulation) Init() error {
	for _, f := range s.InitFuncs {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Run carries out the simulation, checking ctx between stages. Stages
// that loop for long may also check it through Context.
func (s *Simulation) Run(ctx context.Context) error {
	s.ctx = ctx
	defer func() { s.ctx = nil }()
	for _, f := range s.RunFuncs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fallout: simulation stopped: %w", err)
		}
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Context returns the context of the current Run, or a background
// context outside of one.
func (s *Simulation) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Cleanup runs the CleanupFuncs.
func (s *Simulation) Cleanup() error {
	for _, f := range s.CleanupFuncs {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Simulate runs Init, Run and Cleanup.
func (s *Simulation) Simulate(ctx context.Context) error {
	if err := s.Init(); err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return err
	}
	return s.Cleanup()
}

// CreateGrid returns a function that allocates the simulation grid.
func CreateGrid(e grid.Extent) DomainManipulator {
	return func(s *Simulation) error {
		g, err := grid.New(e)
		if err != nil {
			return fmt.Errorf("fallout: creating grid: %w", err)
		}
		s.Grid = g
		return nil
	}
}

// Calculations returns a function that concurrently runs a series of
// calculations on every cell of the grid. Each cell is visited by exactly
// one goroutine, so manipulators may write to their own cell without
// locking.
func Calculations(calculators ...CellManipulator) DomainManipulator {
	nprocs := runtime.GOMAXPROCS(0)
	return func(s *Simulation) error {
		if s.Grid == nil {
			return errors.New("fallout: calculations run before the grid was created")
		}
		ctx := s.Context()
		n := s.Grid.Nx * s.Grid.Ny
		var wg sync.WaitGroup
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				defer wg.Done()
				for ii := pp; ii < n; ii += nprocs {
					if ii%s.Grid.Nx < nprocs && ctx.Err() != nil {
						return
					}
					idx := grid.Index{I: ii % s.Grid.Nx, J: ii / s.Grid.Nx}
					for _, f := range calculators {
						f(s, idx)
					}
				}
			}(pp)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fallout: calculations stopped: %w", err)
		}
		return nil
	}
}

// Diverged records a recovered numeric divergence.
func (s *Simulation) Diverged(err DivergenceError) {
	s.mu.Lock()
	s.divergences = append(s.divergences, err)
	s.mu.Unlock()
	log.Println(err)
}

// Divergences returns the recovered numeric divergences.
func (s *Simulation) Divergences() []DivergenceError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DivergenceError(nil), s.divergences...)
}

// Note records an informational message about the run.
func (s *Simulation) Note(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.mu.Lock()
	s.notes = append(s.notes, msg)
	s.mu.Unlock()
	log.Println("fallout:", msg)
}

// Notes returns the informational messages recorded during the run.
func (s *Simulation) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

// Log returns a function that writes a status message to w each time it
// is run, with the time since the previous message.
func Log(w io.Writer, stage string) DomainManipulator {
	start := time.Now()
	return func(s *Simulation) error {
		_, err := fmt.Fprintf(w, "%s: %s complete (%v since start)\n", s.Params, stage, time.Since(start).Round(time.Millisecond))
		return err
	}
}

func (p DetonationParameters) String() string {
	return fmt.Sprintf("%g kt %s burst at (%.4f°, %.4f°)", p.Yield, p.Burst, p.Location.Lat, p.Location.Lon)
}
