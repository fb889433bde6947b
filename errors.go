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
	"errors"
	"fmt"

	"github.com/spatialmodel/fallout/grid"
)

var (
	// ErrInvalidParameters is matched by every input validation failure.
	ErrInvalidParameters = errors.New("fallout: invalid parameters")

	// ErrNumericDivergence is matched by every non-finite intermediate
	// result. Divergences are recovered locally and reported in the result.
	ErrNumericDivergence = errors.New("fallout: numeric divergence")

	// ErrOutOfBounds and ErrOutOfRange are the grid index and coordinate
	// errors.
	ErrOutOfBounds = grid.ErrOutOfBounds
	ErrOutOfRange  = grid.ErrOutOfRange
)

// InvalidParameterError names the input that failed validation.
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e InvalidParameterError) Error() string {
	return fmt.Sprintf("fallout: invalid %s: %s", e.Name, e.Reason)
}

// Is makes InvalidParameterError match ErrInvalidParameters.
func (e InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameters }

// DivergenceError records a non-finite value in one particle-size bin or
// one grid cell.
type DivergenceError struct {
	Stage string

	// Bin is the particle-size bin, or -1.
	Bin int

	// Cell is the grid cell; only meaningful when Bin < 0.
	Cell grid.Index

	Value float64
}

func (e DivergenceError) Error() string {
	if e.Bin >= 0 {
		return fmt.Sprintf("fallout: %s: numeric divergence in bin %d (value %g)", e.Stage, e.Bin, e.Value)
	}
	return fmt.Sprintf("fallout: %s: numeric divergence in cell %v (value %g)", e.Stage, e.Cell, e.Value)
}

// Is makes DivergenceError match ErrNumericDivergence.
func (e DivergenceError) Is(target error) bool { return target == ErrNumericDivergence }
