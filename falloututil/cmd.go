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
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"text/tabwriter"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/fallout"
	"github.com/spatialmodel/fallout/wseg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	scenario := func(extra ...*pflag.FlagSet) []*pflag.FlagSet {
		return append([]*pflag.FlagSet{runCmd.Flags()}, extra...)
	}

	// Options are the configuration options available to fallout.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Yield",
			usage: `
              Yield is the explosive yield of the weapon in kilotons of TNT.`,
			shorthand:  "y",
			defaultVal: 20.0,
			flagsets:   scenario(contoursCmd.Flags()),
		},
		{
			name: "FissionFraction",
			usage: `
              FissionFraction is the fraction of the yield that comes from
              fission, between 0 and 1.`,
			defaultVal: 1.0,
			flagsets:   scenario(contoursCmd.Flags()),
		},
		{
			name: "Burst",
			usage: `
              Burst is the burst type: "surface" or "airburst".`,
			defaultVal: "surface",
			flagsets:   scenario(),
		},
		{
			name: "Height",
			usage: `
              Height is the height of burst above the ground in meters.
              Bursts above the fireball radius produce no local fallout.`,
			defaultVal: 0.0,
			flagsets:   scenario(),
		},
		{
			name: "Lat",
			usage: `
              Lat is the latitude of ground zero in degrees.`,
			defaultVal: 28.6139,
			flagsets:   scenario(),
		},
		{
			name: "Lon",
			usage: `
              Lon is the longitude of ground zero in degrees.`,
			defaultVal: 77.2090,
			flagsets:   scenario(),
		},
		{
			name: "Place",
			usage: `
              Place is the name of a place to use as ground zero instead of
              Lat and Lon. Use the 'places' command to list known places.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "Places",
			usage: `
              Places is a TOML file of additional named places, with one
              [[place]] table, holding name, lat and lon, per place. It may
              be a URL.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "WindSpeed",
			usage: `
              WindSpeed is the speed of a uniform wind in km/h.`,
			shorthand:  "w",
			defaultVal: 20.0,
			flagsets:   scenario(contoursCmd.Flags()),
		},
		{
			name: "WindDirection",
			usage: `
              WindDirection is the direction a uniform wind blows from, in
              degrees clockwise from north or as a compass point such as
              "E" or "SSW".`,
			defaultVal: "90",
			flagsets:   scenario(contoursCmd.Flags()),
		},
		{
			name: "WindProfile",
			usage: `
              WindProfile is a list of wind samples, each with Altitude in m,
              Speed in km/h and Direction in degrees, ordered by altitude.
              If given, it replaces WindSpeed and WindDirection. On the
              command line it is a JSON array such as
              [{"Altitude":0,"Speed":10,"Direction":270}].`,
			defaultVal: "",
			flagsets:   scenario(contoursCmd.Flags()),
		},
		{
			name: "Model",
			usage: `
              Model selects the fallout model: "DELFIC" or "WSEG-10".`,
			shorthand:  "m",
			defaultVal: "DELFIC",
			flagsets:   scenario(),
		},
		{
			name: "Start",
			usage: `
              Start is the start of the exposure window in hours after the
              detonation.`,
			defaultVal: 0.0,
			flagsets:   scenario(),
		},
		{
			name: "Duration",
			usage: `
              Duration is the length of the exposure window in hours.`,
			defaultVal: 24.0,
			flagsets:   scenario(),
		},
		{
			name: "Shelter",
			usage: `
              Shelter is where the population shelters: a transmission factor
              between 0 and 1 or one of outdoors, vehicle, office-upper,
              basement-wood, office-lower, basement-brick, concrete-middle and
              basement-concrete.`,
			defaultVal: "outdoors",
			flagsets:   scenario(queryCmd.Flags()),
		},
		{
			name: "DecayExponent",
			usage: `
              DecayExponent is the exponent of the power-law decay of the
              fallout dose rate.`,
			defaultVal: fallout.DefaultDecay.Exponent,
			flagsets:   scenario(),
		},
		{
			name: "Population",
			usage: `
              Population is a uniform population density in people per km² or
              one of rural, suburban, urban, dense, very-dense and central.
              It is ignored if PopulationShapefile is given.`,
			defaultVal: "suburban",
			flagsets:   scenario(),
		},
		{
			name: "PopulationShapefile",
			usage: `
              PopulationShapefile is a shapefile, or URL of one, with polygons
              holding population counts.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "PopulationColumn",
			usage: `
              PopulationColumn is the attribute of PopulationShapefile holding
              the number of people in each polygon.`,
			defaultVal: "TotalPop",
			flagsets:   scenario(),
		},
		{
			name: "CellSize",
			usage: `
              CellSize is the grid spacing in meters.`,
			defaultVal: 500.0,
			flagsets:   scenario(),
		},
		{
			name: "HalfWidth",
			usage: `
              HalfWidth is the distance in meters from ground zero to the edge
              of the grid. Zero chooses a width from the yield.`,
			defaultVal: 0.0,
			flagsets:   scenario(),
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the desired output shapefile location.
              It can include environment variables. It may be a blob storage
              URL such as s3://bucket/fallout.shp.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which model variables should be
              included in the output file. It can include environment
              variables. Expressions may combine the fields Deposition,
              DoseRateH1, Dose, Arrival and Population with the functions exp,
              log10, shield and sum.`,
			defaultVal: fallout.DefaultOutputVariables(),
			flagsets:   scenario(),
		},
		{
			name: "NetCDFFile",
			usage: `
              NetCDFFile is the path to an optional NetCDF file holding every
              output field on the simulation grid.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "ReportFile",
			usage: `
              ReportFile is the path to an optional spreadsheet (.xlsx)
              summarizing the casualties and the dose at every known place.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "SaveFile",
			usage: `
              SaveFile is the path to an optional file holding the complete
              result, for use with the 'query' command.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "MapFile",
			usage: `
              MapFile is the path to an optional PNG map of MapField.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "MapField",
			usage: `
              MapField is the output field drawn in MapFile: Dose, DoseRateH1,
              Deposition, Arrival or Population.`,
			defaultVal: "Dose",
			flagsets:   scenario(),
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can
              include environment variables. If LogFile is left blank, the
              logfile will be saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   scenario(),
		},
		{
			name: "LoadFile",
			usage: `
              LoadFile is a result saved by 'run' with SaveFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "Target",
			usage: `
              Target is the name of the place to query. If empty, TargetLat and
              TargetLon are used.`,
			shorthand:  "t",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "TargetLat",
			usage: `
              TargetLat is the latitude of the location to query.`,
			defaultVal: 28.6139,
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "TargetLon",
			usage: `
              TargetLon is the longitude of the location to query.`,
			defaultVal: 77.2090,
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "Entry",
			usage: `
              Entry is the time, in hours after the detonation, at which
              someone arrives at the queried location.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "Stay",
			usage: `
              Stay is how many hours someone stays at the queried location.`,
			defaultVal: 24.0,
			flagsets:   []*pflag.FlagSet{queryCmd.Flags()},
		},
		{
			name: "Levels",
			usage: `
              Levels are the H+1 dose rates, in R/h, of the contours to
              describe.`,
			defaultVal: []string{"1", "3", "10", "30", "100", "300", "1000", "3000"},
			flagsets:   []*pflag.FlagSet{contoursCmd.Flags()},
		},
		{
			name: "Address",
			usage: `
              Address is the network address the web service listens on.`,
			defaultVal: ":8080",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "CacheSize",
			usage: `
              CacheSize is the number of simulation results the web service
              keeps in memory.`,
			defaultVal: 20,
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "CacheDir",
			usage: `
              CacheDir is an optional directory where the web service stores
              every simulation result.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("FALLOUT")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(queryCmd)
	Root.AddCommand(contoursCmd)
	Root.AddCommand(placesCmd)
	Root.AddCommand(serveCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fallout: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "fallout",
	Short: "A nuclear fallout model.",
	Long: `fallout estimates the local radioactive fallout, radiation dose and
casualties from a nuclear detonation with either the DELFIC or the WSEG-10
model. Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'FALLOUT_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of fallout.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("fallout v%s\n", fallout.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that runs a simulation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a fallout simulation.",
	Long: `run simulates the fallout from one detonation and writes the
requested outputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := LoadScenario(ctx, Cfg)
		if err != nil {
			return err
		}
		vars, err := GetStringMapString("OutputVariables", Cfg)
		if err != nil {
			return err
		}
		g, err := Gazetteer(ctx, Cfg)
		if err != nil {
			return err
		}
		_, err = Run(ctx, cmd.OutOrStdout(), s, Outputs{
			LogFile:         Cfg.GetString("LogFile"),
			OutputFile:      Cfg.GetString("OutputFile"),
			OutputVariables: vars,
			NetCDFFile:      Cfg.GetString("NetCDFFile"),
			ReportFile:      Cfg.GetString("ReportFile"),
			Places:          g.Places(),
			SaveFile:        Cfg.GetString("SaveFile"),
			MapFile:         Cfg.GetString("MapFile"),
			MapField:        Cfg.GetString("MapField"),
		})
		return err
	},
	DisableAutoGenTag: true,
}

// queryCmd reports the dose at one location from a saved result.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the dose at a location.",
	Long: `query reports the dose received by someone who arrives at a location
at the Entry time and stays there for Stay hours, using a result saved by
'run' with SaveFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := LoadResult(ctx, Cfg.GetString("LoadFile"))
		if err != nil {
			return err
		}
		loc, err := location(ctx, Cfg, "Target", "TargetLat", "TargetLon")
		if err != nil {
			return err
		}
		sh, err := shelter(Cfg.GetString("Shelter"))
		if err != nil {
			return err
		}
		p, err := r.StayDose(loc.Lat, loc.Lon, Cfg.GetFloat64("Entry"), Cfg.GetFloat64("Stay"), sh)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Location\t%.4f°N %.4f°E\n", loc.Lat, loc.Lon)
		fmt.Fprintf(w, "H+1 dose rate\t%.4g R/h\n", p.DoseRateH1)
		if math.IsInf(p.Arrival, 1) {
			fmt.Fprintf(w, "Arrival\tnone\n")
		} else {
			fmt.Fprintf(w, "Arrival\t%.2f h\n", p.Arrival)
		}
		fmt.Fprintf(w, "Dose\t%.4g R\n", p.Dose)
		fmt.Fprintf(w, "Effect\t%s\n", p.Effect)
		return w.Flush()
	},
	DisableAutoGenTag: true,
}

// contoursCmd describes the WSEG-10 dose-rate contours.
var contoursCmd = &cobra.Command{
	Use:   "contours",
	Short: "Describe the WSEG-10 dose-rate contours.",
	Long: `contours prints the downwind and upwind reach, the maximum width and
the area of the WSEG-10 H+1 dose-rate contours for a yield and wind,
without running a gridded simulation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := fallout.DetonationParameters{
			Yield:           Cfg.GetFloat64("Yield"),
			FissionFraction: Cfg.GetFloat64("FissionFraction"),
		}
		if err := p.Validate(); err != nil {
			return err
		}
		wind, err := Wind(Cfg)
		if err != nil {
			return err
		}
		lv, err := levels(Cfg)
		if err != nil {
			return err
		}
		plume, ex, ey := wseg.DefaultConfig().PlumeFor(p, wind)
		heading := math.Mod(math.Atan2(ex, ey)*180/math.Pi+360, 360)
		cmd.Printf("Effective wind %.1f km/h toward %.0f° (%s)\n", plume.WindKph(), heading, fallout.CompassPoint(heading))
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "R/h\tdownwind km\tupwind km\twidth km\tarea km²\t")
		for _, c := range plume.Contours(lv) {
			fmt.Fprintf(w, "%g\t%.1f\t%.1f\t%.1f\t%.1f\t\n", c.Level, c.Downwind, c.Upwind, c.Width, c.Area)
		}
		return w.Flush()
	},
	DisableAutoGenTag: true,
}

// placesCmd lists the known places.
var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "List the known places.",
	Long: `places lists the places that can be used as ground zero or as query
targets, including any in the Places file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := Gazetteer(cmd.Context(), Cfg)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, p := range g.Places() {
			fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", p.Name, p.Lat, p.Lon)
		}
		return w.Flush()
	},
	DisableAutoGenTag: true,
}

// serveCmd starts the web service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web service.",
	Long: `serve starts an HTTP service that runs simulations and answers dose
queries. See the Server documentation for the endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := Gazetteer(cmd.Context(), Cfg)
		if err != nil {
			return err
		}
		s := NewServer(ServerConfig{
			CacheSize: Cfg.GetInt("CacheSize"),
			CacheDir:  Cfg.GetString("CacheDir"),
			Places:    g,
		}, NewMetrics())
		addr := Cfg.GetString("Address")
		s.Log.WithFields(logrus.Fields{"addr": addr, "version": fallout.Version}).Info("starting fallout web service")
		return http.ListenAndServe(addr, s)
	},
	DisableAutoGenTag: true,
}
