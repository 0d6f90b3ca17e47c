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

// Package traj computes batches of atmospheric backward trajectories
// for a receptor location by driving an external trajectory-modeling
// engine, and joins the results with measured pollutant
// concentrations.
package traj

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// A Receptor is the fixed point for which backward trajectories are
// computed.
type Receptor struct {
	// Lat and Lon are in degrees; Height is meters above ground.
	Lat, Lon, Height float64
}

// A Request describes a single backward trajectory run.
type Request struct {
	Receptor Receptor

	// Start is the trajectory arrival time at the receptor.
	Start time.Time

	// Duration is how far backward in time to trace, e.g. 96 hours.
	Duration time.Duration

	// Weather selects the meteorological dataset, e.g. "gdas1".
	Weather string

	// WeatherDir is the directory holding the meteorological files.
	// It is shared read-only input; the engine never writes to it.
	WeatherDir string
}

// A Point is one step along a trajectory.
type Point struct {
	// Age is the hour offset along the backward path, 0 at the
	// receptor and negative going back in time.
	Age int

	// Time is the absolute time of this point.
	Time time.Time

	// Lat and Lon are in degrees; Height is meters above ground.
	Lat, Lon, Height float64
}

// A Trajectory is the modeled backward path of the air mass arriving
// at a receptor at one start time.
type Trajectory struct {
	Receptor Receptor
	Start    time.Time
	Points   []Point
}

// Engine computes a single backward trajectory. Implementations must
// be safe for concurrent use.
type Engine interface {
	Run(ctx context.Context, req Request) (*Trajectory, error)
}

// ExecEngine runs an external HYSPLIT-style trajectory binary. Each
// invocation is staged in its own subdirectory of WorkDir so that
// concurrent runs never collide.
type ExecEngine struct {
	// Command is the path to the engine executable.
	Command string

	// WorkDir is the staging directory for engine control and
	// output files. It is created if it does not exist.
	WorkDir string
}

// Run stages and executes one trajectory computation, returning the
// parsed endpoint table.
func (e *ExecEngine) Run(ctx context.Context, req Request) (*Trajectory, error) {
	if err := os.MkdirAll(e.WorkDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("traj: creating staging directory: %v", err)
	}
	dir, err := os.MkdirTemp(e.WorkDir, "run")
	if err != nil {
		return nil, fmt.Errorf("traj: creating run directory: %v", err)
	}
	defer os.RemoveAll(dir)

	if err := writeControl(filepath.Join(dir, "CONTROL"), req); err != nil {
		return nil, err
	}

	logFile, err := os.Create(filepath.Join(dir, "engine.log"))
	if err != nil {
		return nil, fmt.Errorf("traj: creating engine log: %v", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, e.Command)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("traj: engine run for %v: %v", req.Start.Format("2006-01-02 15:04"), err)
	}

	f, err := os.Open(filepath.Join(dir, "tdump"))
	if err != nil {
		return nil, fmt.Errorf("traj: engine run for %v produced no endpoint file: %v", req.Start.Format("2006-01-02 15:04"), err)
	}
	defer f.Close()
	points, err := parseEndpoints(f)
	if err != nil {
		return nil, fmt.Errorf("traj: engine run for %v: %v", req.Start.Format("2006-01-02 15:04"), err)
	}
	return &Trajectory{
		Receptor: req.Receptor,
		Start:    req.Start,
		Points:   points,
	}, nil
}

// writeControl writes the engine control file: start time, receptor,
// backward duration, and the meteorological files covering the
// traced period.
func writeControl(file string, req Request) error {
	mets := metFiles(req.Weather, req.Start, req.Duration)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", req.Start.Format("06 01 02 15"))
	fmt.Fprintf(&b, "1\n")
	fmt.Fprintf(&b, "%.3f %.3f %.1f\n", req.Receptor.Lat, req.Receptor.Lon, req.Receptor.Height)
	fmt.Fprintf(&b, "%d\n", -int(req.Duration.Hours()))
	fmt.Fprintf(&b, "0\n")       // vertical motion from input data
	fmt.Fprintf(&b, "10000.0\n") // model top [m]
	fmt.Fprintf(&b, "%d\n", len(mets))
	for _, m := range mets {
		fmt.Fprintf(&b, "%s/\n", strings.TrimRight(req.WeatherDir, "/"))
		fmt.Fprintf(&b, "%s\n", m)
	}
	fmt.Fprintf(&b, "./\n")
	fmt.Fprintf(&b, "tdump\n")
	if err := os.WriteFile(file, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("traj: writing control file: %v", err)
	}
	return nil
}

// metFiles returns the names of the weekly meteorological files
// covering [start-duration, start], most recent first, in the
// conventional naming scheme <dataset>.<mmmYY>.w<week>. Weeks
// restart with each month, so the last week of a month can be as
// short as a day; stepping day-by-day avoids skipping it.
func metFiles(dataset string, start time.Time, duration time.Duration) []string {
	var files []string
	seen := make(map[string]struct{})
	limit := start.Add(-duration)
	for t := start; ; t = t.Add(-24 * time.Hour) {
		week := (t.Day()-1)/7 + 1
		name := fmt.Sprintf("%s.%s.w%d", dataset, strings.ToLower(t.Format("Jan06")), week)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			files = append(files, name)
		}
		if !t.After(limit) {
			break
		}
	}
	return files
}

// parseEndpoints reads an engine endpoint table ("tdump" format).
// The header ends with the diagnostic-variable line (e.g.
// "1 PRESSURE"); every following line is one trajectory point.
func parseEndpoints(r io.Reader) ([]Point, error) {
	scanner := bufio.NewScanner(r)
	var points []Point
	inData := false
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if !inData {
			if len(fields) >= 2 && fields[1] == "PRESSURE" {
				inData = true
			}
			continue
		}
		if len(fields) < 12 {
			return nil, fmt.Errorf("endpoint row has %d fields but needs at least 12: %q", len(fields), scanner.Text())
		}
		vals := make([]float64, 12)
		for i := range vals {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing endpoint field %d: %v", i, err)
			}
			vals[i] = v
		}
		year := int(vals[2])
		if year < 70 { // the endpoint table carries 2-digit years
			year += 2000
		} else {
			year += 1900
		}
		points = append(points, Point{
			Age: int(vals[8]),
			Time: time.Date(year, time.Month(vals[3]), int(vals[4]),
				int(vals[5]), int(vals[6]), 0, 0, time.UTC),
			Lat:    vals[9],
			Lon:    vals[10],
			Height: vals[11],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("endpoint table contains no data rows")
	}
	return points, nil
}
