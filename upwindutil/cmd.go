/*
Copyright © 2026 the Upwind authors.
This file is part of Upwind.

Upwind is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Upwind is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Upwind.  If not, see <http://www.gnu.org/licenses/>.*/

// Package upwindutil provides the command-line interface for the
// upwind emission aggregation and trajectory analysis tools.
package upwindutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/upwind/edgar"
	"github.com/spatialmodel/upwind/traj"
	"github.com/spatialmodel/upwind/zonal"
)

// Version is the version of this release of Upwind.
const Version = "0.1.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log receives progress messages.
var Log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to Upwind.
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
			name: "Regions.Shapefile",
			usage: `
              Regions.Shapefile is the path to the shapefile holding the
              administrative region polygons that emissions are aggregated
              onto.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{emissionsCmd.Flags()},
		},
		{
			name: "Regions.NameField",
			usage: `
              Regions.NameField is the shapefile attribute holding each
              region's unique name.`,
			defaultVal: "NAME_1",
			flagsets:   []*pflag.FlagSet{emissionsCmd.Flags()},
		},
		{
			name: "Emissions.GridDir",
			usage: `
              Emissions.GridDir is the directory holding gridded emission
              inventory files. Every file in the directory whose name
              matches the inventory naming convention is aggregated.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{emissionsCmd.Flags()},
		},
		{
			name: "Emissions.OutputFile",
			usage: `
              Emissions.OutputFile is the path of the long-format CSV
              table of aggregated emissions to be created.`,
			defaultVal: "emissions.csv",
			flagsets:   []*pflag.FlagSet{emissionsCmd.Flags()},
		},
		{
			name: "Emissions.OutputShapefileDir",
			usage: `
              Emissions.OutputShapefileDir, if not empty, is a directory
              where per-grid shapefiles of regional totals are written
              for mapping.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{emissionsCmd.Flags()},
		},
		{
			name: "Traj.Command",
			usage: `
              Traj.Command is the path to the external backward-trajectory
              engine executable.`,
			defaultVal: "hyts_std",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.WorkDir",
			usage: `
              Traj.WorkDir is the staging directory for trajectory engine
              control and output files. Each run gets its own
              subdirectory.`,
			defaultVal: "${HOME}/.upwind/work",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Lat",
			usage: `
              Traj.Lat is the receptor latitude [degrees].`,
			defaultVal: 50.062,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Lon",
			usage: `
              Traj.Lon is the receptor longitude [degrees].`,
			defaultVal: 19.938,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Height",
			usage: `
              Traj.Height is the receptor height above ground [m].`,
			defaultVal: 200.0,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Hours",
			usage: `
              Traj.Hours is how far backward each trajectory is traced
              [hours].`,
			defaultVal: 96,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.StartHours",
			usage: `
              Traj.StartHours are the arrival hours computed for each
              day.`,
			defaultVal: []int{0, 6, 12, 18},
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Weather",
			usage: `
              Traj.Weather selects the meteorological dataset, for
              example 'gdas1'.`,
			defaultVal: "gdas1",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.WeatherDir",
			usage: `
              Traj.WeatherDir is the directory holding meteorological
              files. It is read-only shared input for all workers.`,
			defaultVal: "${HOME}/.upwind/met",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.StartDate",
			usage: `
              Traj.StartDate is the first day of the batch, in the
              format YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.EndDate",
			usage: `
              Traj.EndDate is the last day of the batch (inclusive), in
              the format YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.ChunkSize",
			usage: `
              Traj.ChunkSize is the number of consecutive days submitted
              to the engine as one unit of work.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.Workers",
			usage: `
              Traj.Workers is the number of chunks computed concurrently.
              Zero means one fewer than the number of processors.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.ChunkTimeoutMinutes",
			usage: `
              Traj.ChunkTimeoutMinutes bounds how long one chunk may run,
              including retries [minutes].`,
			defaultVal: 30,
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.CacheDir",
			usage: `
              Traj.CacheDir, if not empty, is a directory where chunk
              results persist across runs so reruns skip the engine.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Traj.OutputFile",
			usage: `
              Traj.OutputFile is the path of the long-format
              trajectory+measurement CSV table to be created.`,
			defaultVal: "trajectories.csv",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Measurements.File",
			usage: `
              Measurements.File, if not empty, is the daily measurement
              series to join onto the trajectory table. CSV and xlsx
              files and sqlite databases are supported, chosen by file
              extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Measurements.Sheet",
			usage: `
              Measurements.Sheet is the sheet name to read when
              Measurements.File is a spreadsheet.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
		{
			name: "Measurements.Query",
			usage: `
              Measurements.Query is the SQL query selecting (date, value)
              rows when Measurements.File is a sqlite database.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{trajCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("UPWIND")

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
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
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
	Root.AddCommand(emissionsCmd)
	Root.AddCommand(trajCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("upwind: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "upwind",
	Short: "Aggregate emission inventories and analyze upwind source regions.",
	Long: `Upwind aggregates gridded air-pollutant emission inventories onto
administrative regions and computes batches of backward trajectories to
estimate where the air arriving at a receptor city came from.

Refer to the subcommand documentation for configuration options and default
settings. Configuration can be changed by using a configuration file (and
providing the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'UPWIND_var'
where 'var' is the name of the variable to be set. Many configuration
variables are additionally allowed to contain environment variables within
them. Refer to https://github.com/spf13/viper for additional configuration
information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of Upwind.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("Upwind v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

var emissionsCmd = &cobra.Command{
	Use:   "emissions",
	Short: "Aggregate gridded emissions onto administrative regions.",
	Long: `emissions reads every gridded emission inventory file in a directory,
computes an area-weighted sum of each grid's values inside each administrative
region polygon, and writes a long-format table of annual emissions per
(region, pollutant, sector).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunEmissions(
			os.ExpandEnv(Cfg.GetString("Regions.Shapefile")),
			Cfg.GetString("Regions.NameField"),
			os.ExpandEnv(Cfg.GetString("Emissions.GridDir")),
			os.ExpandEnv(Cfg.GetString("Emissions.OutputFile")),
			os.ExpandEnv(Cfg.GetString("Emissions.OutputShapefileDir")),
		)
	},
	DisableAutoGenTag: true,
}

var trajCmd = &cobra.Command{
	Use:   "traj",
	Short: "Compute backward trajectories for a date range.",
	Long: `traj runs the external trajectory engine backward from the receptor
for every arrival hour of every day in the requested range, joins the result
with daily pollutant measurements when a measurement series is configured,
and writes a long-format point table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := dateRange(
			Cfg.GetString("Traj.StartDate"), Cfg.GetString("Traj.EndDate"))
		if err != nil {
			return err
		}
		hours, err := toIntSliceE(Cfg.Get("Traj.StartHours"))
		if err != nil {
			return fmt.Errorf("upwind: reading 'Traj.StartHours': %v", err)
		}
		b := &traj.Batcher{
			Engine: &traj.ExecEngine{
				Command: os.ExpandEnv(Cfg.GetString("Traj.Command")),
				WorkDir: os.ExpandEnv(Cfg.GetString("Traj.WorkDir")),
			},
			Receptor: traj.Receptor{
				Lat:    Cfg.GetFloat64("Traj.Lat"),
				Lon:    Cfg.GetFloat64("Traj.Lon"),
				Height: Cfg.GetFloat64("Traj.Height"),
			},
			Duration:      time.Duration(Cfg.GetInt("Traj.Hours")) * time.Hour,
			Hours:         hours,
			Weather:       Cfg.GetString("Traj.Weather"),
			WeatherDir:    os.ExpandEnv(Cfg.GetString("Traj.WeatherDir")),
			ChunkSize:     Cfg.GetInt("Traj.ChunkSize"),
			Workers:       Cfg.GetInt("Traj.Workers"),
			ChunkTimeout:  time.Duration(Cfg.GetInt("Traj.ChunkTimeoutMinutes")) * time.Minute,
			DiskCachePath: os.ExpandEnv(Cfg.GetString("Traj.CacheDir")),
			Logger:        Log,
		}
		return RunTraj(context.Background(), b, start, end,
			os.ExpandEnv(Cfg.GetString("Measurements.File")),
			Cfg.GetString("Measurements.Sheet"),
			Cfg.GetString("Measurements.Query"),
			os.ExpandEnv(Cfg.GetString("Traj.OutputFile")),
		)
	},
	DisableAutoGenTag: true,
}

// toIntSliceE converts a configuration value to a slice of integers,
// accounting for the fact that it might be a JSON array if it was set
// from a command line argument.
func toIntSliceE(s interface{}) ([]int, error) {
	if str, ok := s.(string); ok {
		var o []int
		if err := json.Unmarshal([]byte(str), &o); err != nil {
			return nil, err
		}
		return o, nil
	}
	return cast.ToIntSliceE(s)
}

// dateRange parses the batch start and end days.
func dateRange(startStr, endStr string) (start, end time.Time, err error) {
	if startStr == "" || endStr == "" {
		return start, end, fmt.Errorf("upwind: Traj.StartDate and Traj.EndDate must both be set")
	}
	start, err = time.Parse("2006-01-02", startStr)
	if err != nil {
		return start, end, fmt.Errorf("upwind: parsing Traj.StartDate: %v", err)
	}
	end, err = time.Parse("2006-01-02", endStr)
	if err != nil {
		return start, end, fmt.Errorf("upwind: parsing Traj.EndDate: %v", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("upwind: Traj.EndDate %v is before Traj.StartDate %v",
			endStr, startStr)
	}
	return start, end, nil
}

// RunEmissions aggregates every grid file in gridDir over the regions
// in shapefile and writes the results.
func RunEmissions(shapefile, nameField, gridDir, outputFile, outputShpDir string) error {
	if shapefile == "" {
		return fmt.Errorf("upwind: Regions.Shapefile must be set")
	}
	if gridDir == "" {
		return fmt.Errorf("upwind: Emissions.GridDir must be set")
	}
	regions, err := zonal.LoadRegions(shapefile, nameField)
	if err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"regions": regions.Len(),
		"dir":     gridDir,
	}).Info("aggregating emission grids")

	grids, errs := edgar.ReadDir(gridDir)
	for _, err := range errs {
		Log.WithField("error", err).Warn("skipping emission grid")
	}
	if len(grids) == 0 {
		return fmt.Errorf("upwind: no emission grids could be read in %s", gridDir)
	}
	if outputShpDir != "" {
		if err := os.MkdirAll(outputShpDir, os.ModePerm); err != nil {
			return fmt.Errorf("upwind: creating shapefile directory: %v", err)
		}
	}

	var records []zonal.Record
	for _, g := range grids {
		t := zonal.Aggregate(g, regions)
		records = append(records, t.Records()...)
		if outputShpDir != "" {
			if err := t.WriteShp(outputShpDir, regions); err != nil {
				return err
			}
		}
	}
	w, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("upwind: creating output file: %v", err)
	}
	defer w.Close()
	if err := zonal.WriteCSV(w, records); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"grids":   len(grids),
		"records": len(records),
		"file":    outputFile,
	}).Info("wrote aggregated emissions")
	return nil
}

// RunTraj computes the trajectory batch for [start, end], joins
// measurements if a series is configured, and writes the point table.
func RunTraj(ctx context.Context, b *traj.Batcher, start, end time.Time, measFile, measSheet, measQuery, outputFile string) error {
	batch, err := b.Run(ctx, start, end)
	if err != nil {
		return err
	}
	for _, m := range batch.Missing {
		Log.WithFields(logrus.Fields{
			"from":  m.Dates[0].Format("2006-01-02"),
			"to":    m.Dates[len(m.Dates)-1].Format("2006-01-02"),
			"error": m.Err,
		}).Warn("trajectory days missing from batch")
	}
	points := traj.Harmonize(batch)

	if measFile != "" {
		series, err := readMeasurements(measFile, measSheet, measQuery)
		if err != nil {
			return err
		}
		traj.JoinMeasurements(points, series)
	}

	w, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("upwind: creating output file: %v", err)
	}
	defer w.Close()
	if err := traj.WriteCSV(w, points); err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{
		"trajectories": len(batch.Trajectories),
		"points":       len(points),
		"file":         outputFile,
	}).Info("wrote trajectory table")
	return nil
}

// readMeasurements loads a daily measurement series, choosing the
// provider by file extension.
func readMeasurements(file, sheet, query string) (traj.MeasurementSeries, error) {
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".csv":
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("upwind: opening measurement file: %v", err)
		}
		defer f.Close()
		return traj.ReadMeasurementsCSV(f)
	case ".xlsx":
		if sheet == "" {
			return nil, fmt.Errorf("upwind: Measurements.Sheet must be set for spreadsheet input")
		}
		return traj.ReadMeasurementsXLSX(file, sheet)
	case ".db", ".sqlite", ".sqlite3":
		if query == "" {
			return nil, fmt.Errorf("upwind: Measurements.Query must be set for database input")
		}
		return traj.ReadMeasurementsSQL(file, query)
	default:
		return nil, fmt.Errorf("upwind: unsupported measurement file type %q", ext)
	}
}
