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

// Package falloututil contains the command-line interface and web
// service for the fallout models.
package falloututil

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/model"
)

// Outputs names the files a simulation writes. Empty names are skipped.
// Any name may be a blob storage URL.
type Outputs struct {
	LogFile string

	// OutputFile is a shapefile holding OutputVariables.
	OutputFile      string
	OutputVariables map[string]string

	NetCDFFile string

	// ReportFile is a spreadsheet summarizing the result, with doses at
	// every place in Places.
	ReportFile string
	Places     []fallout.Place

	// SaveFile holds the complete result for later queries.
	SaveFile string

	// MapFile is a PNG map of MapField, which defaults to the dose.
	MapFile  string
	MapField string
}

func (o *Outputs) check() error {
	var err error
	for _, f := range []*string{&o.OutputFile, &o.NetCDFFile, &o.ReportFile, &o.SaveFile, &o.MapFile} {
		if IsBlob(*f) {
			continue
		}
		if *f, err = checkOutputFile(*f); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the scenario, logging to w and to the log file, and writes the
// requested outputs.
func Run(ctx context.Context, w io.Writer, s *Scenario, out Outputs) (*fallout.Result, error) {
	startTime := time.Now()
	if err := out.check(); err != nil {
		return nil, err
	}
	st := new(storage)
	defer st.cleanup()

	lw := w
	if f := checkLogFile(out.LogFile, out.OutputFile); f != "" && !IsBlob(f) {
		logfile, err := os.Create(f)
		if err != nil {
			return nil, fmt.Errorf("falloututil: problem creating log file: %w", err)
		}
		defer logfile.Close()
		lw = io.MultiWriter(w, logfile)
	}
	logger := log.New(lw, "", log.LstdFlags)
	logger.Printf("Running %s for %s", s.Model.Kind, s.Params)

	opts := s.Options
	opts.Log = lw
	r, err := model.Run(ctx, s.Params, s.Wind, s.Population, s.Model, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range r.Divergences {
		logger.Printf("skipped: %v", d)
	}
	for _, n := range r.Notes {
		logger.Println(n)
	}

	if out.OutputFile != "" {
		f, err := st.maybeUpload(out.OutputFile)
		if err != nil {
			return nil, err
		}
		o, err := fallout.NewOutputter(f, checkOutputVars(out.OutputVariables), nil)
		if err != nil {
			return nil, err
		}
		if err := o.Output(r); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", out.OutputFile)
	}
	if out.NetCDFFile != "" {
		f, err := st.maybeUpload(out.NetCDFFile)
		if err != nil {
			return nil, err
		}
		if err := r.WriteNetCDF(f); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", out.NetCDFFile)
	}
	if out.ReportFile != "" {
		if err := writeFile(st, out.ReportFile, func(w io.Writer) error { return r.WriteReport(w, out.Places) }); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", out.ReportFile)
	}
	if out.SaveFile != "" {
		if err := writeFile(st, out.SaveFile, r.Save); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", out.SaveFile)
	}
	if out.MapFile != "" {
		field := out.MapField
		if field == "" {
			field = fallout.IntegratedDoseField
		}
		if err := writeFile(st, out.MapFile, func(w io.Writer) error { return WriteMap(w, r, field) }); err != nil {
			return nil, err
		}
		logger.Printf("Wrote %s", out.MapFile)
	}
	if err := st.upload(ctx); err != nil {
		return nil, err
	}

	sum, err := r.Summary()
	if err != nil {
		return nil, err
	}
	logger.Printf("Peak dose %.4g R at (%.4f°, %.4f°); %.0f casualties of %.0f people",
		sum.PeakDose, sum.PeakLocation.Lat, sum.PeakLocation.Lon, sum.Casualties.Casualties(), sum.Casualties.Population())
	logger.Printf("%s completed successfully in %v.", s.Model.Kind, time.Since(startTime))
	return r, nil
}

func writeFile(st *storage, name string, write func(io.Writer) error) error {
	name, err := st.maybeUpload(name)
	if err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("falloututil: creating %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadResult reads a result saved by Run from a local file or URL.
func LoadResult(ctx context.Context, name string) (*fallout.Result, error) {
	st := new(storage)
	defer st.cleanup()
	name, err := st.maybeDownload(ctx, os.ExpandEnv(name))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("falloututil: opening saved result: %w", err)
	}
	defer f.Close()
	return fallout.Load(f)
}
