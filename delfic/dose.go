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
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/grid"
)

// doseRate is the fifth stage: the H+1 dose rate follows from the
// deposition density, then the dose is integrated over the exposure
// window from each cell's arrival time.
func (e *engine) doseRate() fallout.DomainManipulator {
	k := e.cfg.doseRatePerDensity()
	return fallout.Calculations(
		func(s *fallout.Simulation, idx grid.Index) {
			if d := s.Grid.Value(fallout.DepositionField, idx); d != 0 {
				s.Grid.Set(fallout.DoseRateField, idx, d*k)
			}
		},
		fallout.IntegrateDose(),
	)
}
