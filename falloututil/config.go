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

package falloututil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/casualty"
	"github.com/spatialmodel/fallout/grid"
	"github.com/spatialmodel/fallout/model"
	"github.com/spf13/cast"
)

// Scenario holds everything needed to run one simulation.
type Scenario struct {
	Params     fallout.DetonationParameters
	Wind       fallout.WindProfile
	Population fallout.Population
	Model      model.Model
	Options    model.Options
}

// Request returns the cache request for s.
func (s Scenario) Request() model.Request {
	return model.Request{Params: s.Params, Wind: s.Wind, Population: s.Population, Model: s.Model, Options: s.Options}
}

// Gazetteer returns the default places together with any in the file
// named by the Places configuration variable, which may be a URL.
func Gazetteer(ctx context.Context, cfg *viper.Viper) (*fallout.Gazetteer, error) {
	g := fallout.DefaultGazetteer()
	st := new(storage)
	defer st.cleanup()
	file, err := st.maybeDownload(ctx, os.ExpandEnv(cfg.GetString("Places")))
	if err != nil || file == "" {
		return g, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("falloututil: opening places file: %w", err)
	}
	defer f.Close()
	extra, err := fallout.ReadGazetteer(f)
	if err != nil {
		return nil, err
	}
	g.Merge(extra)
	return g, nil
}

// location returns the named place if one is given in the variable
// placeVar, and otherwise the coordinates in latVar and lonVar.
func location(ctx context.Context, cfg *viper.Viper, placeVar, latVar, lonVar string) (grid.LatLon, error) {
	if name := cfg.GetString(placeVar); name != "" {
		g, err := Gazetteer(ctx, cfg)
		if err != nil {
			return grid.LatLon{}, err
		}
		p, err := g.Lookup(name)
		if err != nil {
			return grid.LatLon{}, err
		}
		return p.Location(), nil
	}
	return grid.LatLon{Lat: cfg.GetFloat64(latVar), Lon: cfg.GetFloat64(lonVar)}, nil
}

// Detonation unmarshals the detonation parameters.
func Detonation(ctx context.Context, cfg *viper.Viper) (fallout.DetonationParameters, error) {
	burst, err := fallout.ParseBurstType(cfg.GetString("Burst"))
	if err != nil {
		return fallout.DetonationParameters{}, err
	}
	loc, err := location(ctx, cfg, "Place", "Lat", "Lon")
	if err != nil {
		return fallout.DetonationParameters{}, err
	}
	p := fallout.DetonationParameters{
		Yield:           cfg.GetFloat64("Yield"),
		FissionFraction: cfg.GetFloat64("FissionFraction"),
		Burst:           burst,
		Height:          cfg.GetFloat64("Height"),
		Location:        loc,
	}
	return p, p.Validate()
}

// Wind unmarshals the wind profile. WindProfile, a JSON list of samples,
// takes precedence over the uniform WindSpeed and WindDirection.
func Wind(cfg *viper.Viper) (fallout.WindProfile, error) {
	var w fallout.WindProfile
	switch v := cfg.Get("WindProfile").(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&w); err != nil {
				return nil, fmt.Errorf("falloututil: parsing WindProfile: %w", err)
			}
		}
	case []interface{}:
		for i, s := range v {
			m, err := cast.ToStringMapE(s)
			if err != nil {
				return nil, fmt.Errorf("falloututil: WindProfile sample %d: %w", i, err)
			}
			var ws fallout.WindSample
			if ws.Altitude, err = cast.ToFloat64E(lookupFold(m, "Altitude")); err != nil {
				return nil, fmt.Errorf("falloututil: WindProfile sample %d altitude: %w", i, err)
			}
			if ws.Speed, err = cast.ToFloat64E(lookupFold(m, "Speed")); err != nil {
				return nil, fmt.Errorf("falloututil: WindProfile sample %d speed: %w", i, err)
			}
			if ws.Direction, err = fallout.ParseDirection(cast.ToString(lookupFold(m, "Direction"))); err != nil {
				return nil, err
			}
			w = append(w, ws)
		}
	case nil:
	default:
		return nil, fmt.Errorf("falloututil: invalid type for WindProfile: %T", v)
	}
	if len(w) == 0 {
		dir, err := fallout.ParseDirection(cfg.GetString("WindDirection"))
		if err != nil {
			return nil, err
		}
		w = fallout.UniformWind(cfg.GetFloat64("WindSpeed"), dir)
	}
	return w, w.Validate()
}

// lookupFold returns the value of the key in m that matches k ignoring
// case, as configuration files may change key case.
func lookupFold(m map[string]interface{}, k string) interface{} {
	for kk, v := range m {
		if strings.EqualFold(kk, k) {
			return v
		}
	}
	return 0
}

// Population unmarshals the population: the polygons in
// PopulationShapefile, a local path or URL, if given, and otherwise a
// uniform density, either a number of people per km² or a preset name.
func Population(ctx context.Context, cfg *viper.Viper) (fallout.Population, error) {
	st := new(storage)
	defer st.cleanup()
	f, err := st.maybeDownload(ctx, os.ExpandEnv(cfg.GetString("PopulationShapefile")))
	if err != nil {
		return nil, err
	}
	if f != "" {
		return fallout.ReadPopulationShapefile(f, cfg.GetString("PopulationColumn"))
	}
	return fallout.LookupDensity(cfg.GetString("Population"))
}

// shelter parses a shelter name or transmission factor.
func shelter(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return casualty.Outdoors, nil
	}
	if v, err := cast.ToFloat64E(s); err == nil {
		return v, nil
	}
	return casualty.LookupShelter(s)
}

// Options unmarshals the run options.
func Options(cfg *viper.Viper) (model.Options, error) {
	sh, err := shelter(cfg.GetString("Shelter"))
	if err != nil {
		return model.Options{}, err
	}
	// A zero transmission in model.Options selects the outdoor default.
	if !(sh > 0 && sh <= 1) {
		return model.Options{}, fallout.InvalidParameterError{Name: "Shelter", Reason: fmt.Sprintf("transmission=%g but should be in (0, 1]", sh)}
	}
	o := model.Options{
		Window: fallout.ExposureWindow{
			Start:    cfg.GetFloat64("Start"),
			Duration: cfg.GetFloat64("Duration"),
		},
		CellSize:  cfg.GetFloat64("CellSize"),
		HalfWidth: cfg.GetFloat64("HalfWidth"),
		Shelter:   sh,
		Decay: fallout.DecayLaw{
			Exponent: cfg.GetFloat64("DecayExponent"),
			MinTime:  fallout.DefaultDecay.MinTime,
		},
	}
	return o, nil
}

// LoadScenario unmarshals a complete scenario from a viper configuration.
func LoadScenario(ctx context.Context, cfg *viper.Viper) (*Scenario, error) {
	p, err := Detonation(ctx, cfg)
	if err != nil {
		return nil, err
	}
	w, err := Wind(cfg)
	if err != nil {
		return nil, err
	}
	pop, err := Population(ctx, cfg)
	if err != nil {
		return nil, err
	}
	k, err := model.ParseKind(cfg.GetString("Model"))
	if err != nil {
		return nil, err
	}
	o, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	return &Scenario{Params: p, Wind: w, Population: pop, Model: model.New(k), Options: o}, nil
}

// checkOutputFile makes sure that the directory of an output file exists,
// and expands any environment variables. Empty names are allowed and mean
// the output is not written.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", nil
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("falloututil: the directory of output file %s doesn't exist: %w", f, err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" && outputFile != "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return os.ExpandEnv(logFile)
}

// checkOutputVars removes end lines and expands environment variables in
// the output variables.
func checkOutputVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		out[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return out
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	switch v := cfg.Get(varName).(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("falloututil: parsing %s: %w", varName, err)
		}
		return o, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("falloututil: invalid type for %s: %T", varName, v)
	}
}

// levels parses a list of dose-rate levels.
func levels(cfg *viper.Viper) ([]float64, error) {
	ss := cfg.GetStringSlice("Levels")
	out := make([]float64, 0, len(ss))
	for _, s := range ss {
		v, err := cast.ToFloat64E(strings.TrimSpace(s))
		if err != nil || !(v > 0) {
			return nil, fallout.InvalidParameterError{Name: "Levels", Reason: fmt.Sprintf("%q is not a positive dose rate", s)}
		}
		out = append(out, v)
	}
	return out, nil
}
