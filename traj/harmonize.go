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

package traj

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// A HarmonizedPoint is one trajectory point in the canonical output
// schema, ready for joining against daily measurements.
type HarmonizedPoint struct {
	// Step is the hour offset along the backward path; 0 at the
	// receptor, negative going back in time.
	Step int

	// Origin is the trajectory arrival time at the receptor.
	Origin time.Time

	// Time is the absolute time of this point, and Year, Month and
	// Day are its calendar components, which serve as join keys.
	Time  time.Time
	Year  int
	Month int
	Day   int

	Lat, Lon, Height float64

	// Measurement is the measured concentration for this point's
	// calendar day. It is NaN until a join fills it, and stays NaN
	// for days absent from the measurement series.
	Measurement float64
}

// Harmonize flattens a batch into the canonical point schema. It is a
// pure reshaping: every point of every trajectory appears exactly
// once, in batch order.
func Harmonize(batch *Batch) []*HarmonizedPoint {
	var points []*HarmonizedPoint
	for _, t := range batch.Trajectories {
		for _, p := range t.Points {
			points = append(points, &HarmonizedPoint{
				Step:        p.Age,
				Origin:      t.Start,
				Time:        p.Time,
				Year:        p.Time.Year(),
				Month:       int(p.Time.Month()),
				Day:         p.Time.Day(),
				Lat:         p.Lat,
				Lon:         p.Lon,
				Height:      p.Height,
				Measurement: math.NaN(),
			})
		}
	}
	return points
}

// JoinMeasurements fills each point's Measurement from the series,
// keyed by the point's calendar day. Points whose day is absent from
// the series keep a NaN measurement; no point is ever dropped.
func JoinMeasurements(points []*HarmonizedPoint, series MeasurementSeries) {
	for _, p := range points {
		if v, ok := series.Value(p.Time); ok {
			p.Measurement = v
		} else {
			p.Measurement = math.NaN()
		}
	}
}

// WriteCSV writes harmonized points as a long-format table. NaN
// measurements are written as empty fields.
func WriteCSV(w io.Writer, points []*HarmonizedPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "origin", "time", "year", "month",
		"day", "lat", "lon", "height", "measurement"}); err != nil {
		return fmt.Errorf("traj: writing csv header: %v", err)
	}
	for _, p := range points {
		meas := ""
		if !math.IsNaN(p.Measurement) {
			meas = strconv.FormatFloat(p.Measurement, 'g', -1, 64)
		}
		row := []string{
			strconv.Itoa(p.Step),
			p.Origin.Format(time.RFC3339),
			p.Time.Format(time.RFC3339),
			strconv.Itoa(p.Year),
			strconv.Itoa(p.Month),
			strconv.Itoa(p.Day),
			strconv.FormatFloat(p.Lat, 'g', -1, 64),
			strconv.FormatFloat(p.Lon, 'g', -1, 64),
			strconv.FormatFloat(p.Height, 'g', -1, 64),
			meas,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("traj: writing csv row: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
