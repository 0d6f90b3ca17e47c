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
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/tealeg/xlsx"

	_ "github.com/mattn/go-sqlite3" // sqlite measurement databases
)

// A MeasurementSeries is a daily time series of measured pollutant
// concentrations for one city, keyed by calendar day.
type MeasurementSeries map[time.Time]float64

// dayKey truncates t to its calendar day in UTC.
func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Value returns the measurement for t's calendar day. The second
// return is false when the series has no reading for that day.
func (s MeasurementSeries) Value(t time.Time) (float64, bool) {
	v, ok := s[dayKey(t)]
	return v, ok
}

// measurementDateFormats are the date layouts accepted in
// measurement inputs.
var measurementDateFormats = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

func parseMeasurementDate(s string) (time.Time, error) {
	for _, f := range measurementDateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return dayKey(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ReadMeasurementsCSV reads a (date, value) series. The first row is
// treated as a header and skipped. Rows with an empty value field
// are omitted from the series, yielding NaN on join rather than zero.
func ReadMeasurementsCSV(r io.Reader) (MeasurementSeries, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("traj: reading measurement csv: %v", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("traj: measurement csv has no data rows")
	}
	series := make(MeasurementSeries)
	for i, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("traj: measurement csv row %d has %d fields but needs 2", i+2, len(row))
		}
		d, err := parseMeasurementDate(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("traj: measurement csv row %d: %v", i+2, err)
		}
		valStr := strings.TrimSpace(row[1])
		if valStr == "" {
			continue
		}
		v, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return nil, fmt.Errorf("traj: measurement csv row %d: %v", i+2, err)
		}
		series[d] = v
	}
	return series, nil
}

// xlsxCache holds previously opened spreadsheet files to avoid
// reading the same file multiple times.
var xlsxCache *requestcache.Cache

var loadXLSXCacheOnce sync.Once

func loadXLSXFile(fileName string) (*xlsx.File, error) {
	loadXLSXCacheOnce.Do(func() {
		xlsxCache = requestcache.NewCache(func(ctx context.Context, req interface{}) (interface{}, error) {
			f, err := xlsx.OpenFile(req.(string))
			if err != nil {
				return nil, fmt.Errorf("traj: opening xlsx file: %v", err)
			}
			return f, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(100))
	})
	r := xlsxCache.NewRequest(context.Background(), fileName, fileName)
	fI, err := r.Result()
	if err != nil {
		return nil, err
	}
	return fI.(*xlsx.File), nil
}

// ReadMeasurementsXLSX reads a (date, value) series from the given
// sheet of a spreadsheet file. The first row is treated as a header.
// Rows with an empty value cell are omitted from the series.
func ReadMeasurementsXLSX(fileName, sheet string) (MeasurementSeries, error) {
	f, err := loadXLSXFile(fileName)
	if err != nil {
		return nil, err
	}
	s, ok := f.Sheet[sheet]
	if !ok {
		return nil, fmt.Errorf("traj: measurement file %s has no sheet %s", fileName, sheet)
	}
	series := make(MeasurementSeries)
	for j := 1; j < s.MaxRow; j++ {
		dateCell := s.Cell(j, 0)
		if strings.TrimSpace(dateCell.Value) == "" {
			continue
		}
		var d time.Time
		if dateCell.Type() == xlsx.CellTypeDate {
			t, err := dateCell.GetTime(false)
			if err != nil {
				return nil, fmt.Errorf("traj: measurement sheet %s row %d: %v", sheet, j+1, err)
			}
			d = dayKey(t)
		} else {
			var err error
			d, err = parseMeasurementDate(strings.TrimSpace(dateCell.Value))
			if err != nil {
				return nil, fmt.Errorf("traj: measurement sheet %s row %d: %v", sheet, j+1, err)
			}
		}
		valCell := s.Cell(j, 1)
		if strings.TrimSpace(valCell.Value) == "" {
			continue
		}
		v, err := valCell.Float()
		if err != nil {
			return nil, fmt.Errorf("traj: measurement sheet %s row %d: %v", sheet, j+1, err)
		}
		series[d] = v
	}
	return series, nil
}

// ReadMeasurementsSQL reads a (date, value) series from a sqlite
// database using the given query, which must select a date string and
// a numeric value, e.g.
//
//	SELECT date, value FROM measurements WHERE city = 'Krakow'
//
// NULL values are omitted from the series.
func ReadMeasurementsSQL(dbPath, query string) (MeasurementSeries, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("traj: opening measurement database: %v", err)
	}
	defer db.Close()
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("traj: querying measurement database: %v", err)
	}
	defer rows.Close()
	series := make(MeasurementSeries)
	for rows.Next() {
		var dateStr string
		var v sql.NullFloat64
		if err := rows.Scan(&dateStr, &v); err != nil {
			return nil, fmt.Errorf("traj: scanning measurement row: %v", err)
		}
		if !v.Valid {
			continue
		}
		d, err := parseMeasurementDate(strings.TrimSpace(dateStr))
		if err != nil {
			return nil, fmt.Errorf("traj: measurement database: %v", err)
		}
		series[d] = v.Float64
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("traj: reading measurement rows: %v", err)
	}
	return series, nil
}
