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

// Package casualty converts accumulated whole-body radiation dose into
// expected numbers of people in each severity class of acute radiation
// syndrome.
package casualty

import (
	"fmt"
	"math"
	"sort"
)

// Dose thresholds in rem. Exposure in roentgen is taken as equal to dose
// in rem for gamma radiation.
const (
	ThresholdMild     = 100.0
	ThresholdModerate = 150.0
	ThresholdSickness = 250.0
	ThresholdSevere   = 350.0
	ThresholdLD       = 500.0
	ThresholdHighLD   = 700.0
	ThresholdLethal   = 900.0
)

// Class is a casualty severity class.
type Class int

// Classes in decreasing order of severity.
const (
	Fatal Class = iota
	Severe
	Moderate
	Mild
	numClasses
)

func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case Severe:
		return "severe"
	case Moderate:
		return "moderate"
	case Mild:
		return "mild"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Split holds the fraction of an exposed population that falls in each
// class, indexed by Class. The remainder is unaffected.
type Split [numClasses]float64

// Band applies Split to doses at or above Threshold.
type Band struct {
	Threshold float64 `units:"rem"`
	Split     Split
}

// Bands is a dose-response table.
type Bands []Band

// Default is the casualty table used unless another is given. The splits
// follow the acute radiation syndrome ranges of Glasstone & Dolan (1977)
// Table 12.108.
var Default = Bands{
	{Threshold: ThresholdLethal, Split: Split{Fatal: 0.85, Severe: 0.15}},
	{Threshold: ThresholdHighLD, Split: Split{Fatal: 0.45, Severe: 0.55}},
	{Threshold: ThresholdLD, Split: Split{Fatal: 0.15, Severe: 0.75, Moderate: 0.10}},
	{Threshold: ThresholdSevere, Split: Split{Severe: 0.30, Moderate: 0.70}},
	{Threshold: ThresholdSickness, Split: Split{Severe: 0.10, Moderate: 0.90}},
	{Threshold: ThresholdModerate, Split: Split{Moderate: 0.30, Mild: 0.70}},
	{Threshold: ThresholdMild, Split: Split{Moderate: 0.05, Mild: 0.95}},
}

// Validate checks that each split sums to at most one and that the
// cumulative fraction at or above every class does not fall as dose rises.
func (b Bands) Validate() error {
	if !sort.SliceIsSorted(b, func(i, j int) bool { return b[i].Threshold > b[j].Threshold }) {
		return fmt.Errorf("casualty: bands must be in decreasing threshold order")
	}
	var prev *Split
	for i := len(b) - 1; i >= 0; i-- {
		s := b[i].Split
		var sum float64
		for _, f := range s {
			if f < 0 {
				return fmt.Errorf("casualty: band %g rem has a negative fraction", b[i].Threshold)
			}
			sum += f
		}
		if sum > 1+1e-12 {
			return fmt.Errorf("casualty: band %g rem fractions sum to %g", b[i].Threshold, sum)
		}
		if prev != nil {
			c, p := s.cumulative(), prev.cumulative()
			for k := range c {
				if c[k] < p[k]-1e-12 {
					return fmt.Errorf("casualty: band %g rem is less severe than the band below it", b[i].Threshold)
				}
			}
		}
		prev = &b[i].Split
	}
	return nil
}

// cumulative returns the fraction at or above each class.
func (s Split) cumulative() Split {
	var c Split
	var sum float64
	for k, f := range s {
		sum += f
		c[k] = sum
	}
	return c
}

// Fractions returns the split for a dose.
func (b Bands) Fractions(dose float64) Split {
	for _, band := range b {
		if dose >= band.Threshold {
			return band.Split
		}
	}
	return Split{}
}

// Breakdown is the number of people in each casualty class.
type Breakdown struct {
	Fatal, Severe, Moderate, Mild float64
	Unaffected                    float64

	// AffectedArea is the area over which anybody is a casualty.
	AffectedArea float64 `units:"km²"`
}

// Classify applies the default table to population people receiving dose
// rem.
func Classify(dose, population float64) Breakdown {
	return Default.Classify(dose, population)
}

// Classify splits population people receiving dose rem into casualty
// classes. A non-finite dose leaves the whole population unaffected.
func (b Bands) Classify(dose, population float64) Breakdown {
	if !(population > 0) || math.IsInf(population, 0) {
		return Breakdown{}
	}
	if math.IsNaN(dose) {
		return Breakdown{Unaffected: population}
	}
	s := b.Fractions(dose)
	out := Breakdown{
		Fatal:    s[Fatal] * population,
		Severe:   s[Severe] * population,
		Moderate: s[Moderate] * population,
		Mild:     s[Mild] * population,
	}
	out.Unaffected = math.Max(0, population-out.Casualties())
	return out
}

// Casualties returns the number of people in any casualty class.
func (b Breakdown) Casualties() float64 {
	return b.Fatal + b.Severe + b.Moderate + b.Mild
}

// Population returns the total number of people accounted for.
func (b Breakdown) Population() float64 { return b.Casualties() + b.Unaffected }

// Add adds o to b.
func (b *Breakdown) Add(o Breakdown) {
	b.Fatal += o.Fatal
	b.Severe += o.Severe
	b.Moderate += o.Moderate
	b.Mild += o.Mild
	b.Unaffected += o.Unaffected
	b.AffectedArea += o.AffectedArea
}

// Count returns the number of people in class c.
func (b Breakdown) Count(c Class) float64 {
	switch c {
	case Fatal:
		return b.Fatal
	case Severe:
		return b.Severe
	case Moderate:
		return b.Moderate
	case Mild:
		return b.Mild
	}
	return 0
}

// Tally classifies each cell of a dose field and adds up the results.
// dose and population hold one value per cell; cellArea is in km². Cells
// are summed in order.
func (b Bands) Tally(dose, population []float64, cellArea float64) Breakdown {
	var out Breakdown
	for i, d := range dose {
		c := b.Classify(d, population[i])
		if d >= b.minThreshold() {
			c.AffectedArea = cellArea
		}
		out.Add(c)
	}
	return out
}

func (b Bands) minThreshold() float64 {
	if len(b) == 0 {
		return math.Inf(1)
	}
	return b[len(b)-1].Threshold
}
