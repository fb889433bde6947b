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

package casualty

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Shelter is a place people shelter in and the fraction of the outdoor
// dose it lets through (the inverse of its protection factor).
type Shelter struct {
	Name         string
	Transmission float64
}

// Shelters are typical shelter transmission factors from FEMA (2010)
// Planning Guidance for Response to a Nuclear Detonation, figure 3.2.
var Shelters = []Shelter{
	{Name: "outdoors", Transmission: 1},
	{Name: "vehicle", Transmission: 0.5},
	{Name: "office-upper", Transmission: 0.2},
	{Name: "basement-wood", Transmission: 0.1},
	{Name: "office-lower", Transmission: 0.05},
	{Name: "basement-brick", Transmission: 0.04},
	{Name: "concrete-middle", Transmission: 0.01},
	{Name: "basement-concrete", Transmission: 0.005},
}

// Outdoors is the transmission of an unsheltered location.
const Outdoors = 1.0

// LookupShelter returns the transmission factor of the named shelter.
func LookupShelter(name string) (float64, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Outdoors, nil
	}
	for _, s := range Shelters {
		if s.Name == name {
			return s.Transmission, nil
		}
	}
	names := make([]string, len(Shelters))
	for i, s := range Shelters {
		names[i] = s.Name
	}
	sort.Strings(names)
	return 0, fmt.Errorf("casualty: unknown shelter %q; valid shelters are %s", name, strings.Join(names, ", "))
}

// Effect is the expected health outcome for an individual dose.
type Effect int

// Health effects in increasing order of severity.
const (
	NoEffect Effect = iota
	MildSickness
	ModerateSickness
	SevereSickness
	Lethal
)

// Individual dose limits in rem for each health effect.
const (
	limitNone     = 50.0
	limitMild     = 200.0
	limitModerate = 400.0
	limitSevere   = 600.0
)

// HealthEffect returns the expected health effect for a person receiving
// dose rem.
func HealthEffect(dose float64) Effect {
	switch {
	case dose < limitNone, math.IsNaN(dose):
		return NoEffect
	case dose < limitMild:
		return MildSickness
	case dose < limitModerate:
		return ModerateSickness
	case dose < limitSevere:
		return SevereSickness
	}
	return Lethal
}

func (e Effect) String() string {
	switch e {
	case NoEffect:
		return "no acute effects"
	case MildSickness:
		return "mild radiation sickness"
	case ModerateSickness:
		return "moderate radiation sickness"
	case SevereSickness:
		return "severe radiation sickness"
	case Lethal:
		return "likely lethal"
	}
	return fmt.Sprintf("Effect(%d)", int(e))
}
