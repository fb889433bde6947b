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
	"io"
	"math"

	"github.com/spatialmodel/fallout/casualty"
	"github.com/tealeg/xlsx"
)

// Names of the report worksheets.
const (
	SummarySheet    = "Summary"
	CasualtySheet   = "Casualties"
	PlaceSheet      = "Places"
	DivergenceSheet = "Divergences"
)

type sheetWriter struct {
	sheet *xlsx.Sheet
}

func (s sheetWriter) row(values ...interface{}) {
	r := s.sheet.AddRow()
	for _, v := range values {
		c := r.AddCell()
		switch v := v.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				c.SetString(fmt.Sprint(v))
			} else {
				c.SetFloat(v)
			}
		case int:
			c.SetInt(v)
		case string:
			c.SetString(v)
		default:
			c.SetString(fmt.Sprint(v))
		}
	}
}

// WriteReport writes a spreadsheet describing r to w. The report has a
// summary sheet, a casualty sheet, and a sheet with the exposure at each
// of places. Places outside the grid are listed without values.
func (r *Result) WriteReport(w io.Writer, places []Place) error {
	s, err := r.Summary()
	if err != nil {
		return err
	}
	f := xlsx.NewFile()
	add := func(name string) (sheetWriter, error) {
		sh, err := f.AddSheet(name)
		if err != nil {
			return sheetWriter{}, fmt.Errorf("fallout: report: %w", err)
		}
		return sheetWriter{sheet: sh}, nil
	}

	sum, err := add(SummarySheet)
	if err != nil {
		return err
	}
	sum.row("Quantity", "Value", "Units")
	sum.row("Model", r.Model, "")
	sum.row("Yield", r.Params.Yield, "kt")
	sum.row("Fission fraction", r.Params.Fission(), "")
	sum.row("Burst", r.Params.Burst.String(), "")
	sum.row("Latitude", r.Params.Location.Lat, "degrees")
	sum.row("Longitude", r.Params.Location.Lon, "degrees")
	if len(r.Wind) > 0 {
		sum.row("Surface wind speed", r.Wind[0].Speed, "km/h")
		sum.row("Surface wind direction", r.Wind[0].Direction, "degrees")
	}
	sum.row("Exposure window", r.Window.String(), "")
	sum.row("Shelter transmission", r.Shelter, "")
	sum.row("Peak H+1 dose rate", s.PeakDoseRate, "R/h")
	sum.row("Peak dose", s.PeakDose, "R")
	sum.row("Peak latitude", s.PeakLocation.Lat, "degrees")
	sum.row("Peak longitude", s.PeakLocation.Lon, "degrees")
	sum.row("Deposited activity", s.DepositedTotal, "kt")
	sum.row("Area with casualties", r.Casualties.AffectedArea, "km²")
	for _, n := range r.Notes {
		sum.row("Note", n, "")
	}

	cas, err := add(CasualtySheet)
	if err != nil {
		return err
	}
	cas.row("Class", "People")
	for _, c := range []casualty.Class{casualty.Fatal, casualty.Severe, casualty.Moderate, casualty.Mild} {
		cas.row(c.String(), r.Casualties.Count(c))
	}
	cas.row("unaffected", r.Casualties.Unaffected)
	cas.row("total casualties", r.Casualties.Casualties())

	pl, err := add(PlaceSheet)
	if err != nil {
		return err
	}
	pl.row("Place", "Latitude", "Longitude", "Arrival (h)", "H+1 dose rate (R/h)", "Dose (R)", "Effect")
	for _, p := range places {
		d, err := r.StayDose(p.Lat, p.Lon, r.Window.Start, r.Window.Duration, r.Shelter)
		if err != nil {
			pl.row(p.Name, p.Lat, p.Lon, "outside grid")
			continue
		}
		pl.row(p.Name, p.Lat, p.Lon, d.Arrival, d.DoseRateH1, d.Dose, d.Effect.String())
	}

	if len(r.Divergences) > 0 {
		div, err := add(DivergenceSheet)
		if err != nil {
			return err
		}
		div.row("Stage", "Bin", "Cell", "Value")
		for _, d := range r.Divergences {
			div.row(d.Stage, d.Bin, d.Cell.String(), d.Value)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("fallout: writing report: %w", err)
	}
	return nil
}
