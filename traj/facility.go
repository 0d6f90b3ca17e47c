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
	"strconv"
	"strings"

	"github.com/ctessum/geom"
)

// A Facility is a known industrial emission point, used only for
// overlaying on trajectory output; it takes no part in aggregation.
type Facility struct {
	// Sector is the human-readable sector label of the facility.
	Sector string

	// Point is the facility location in degrees longitude and
	// latitude.
	Point geom.Point
}

// ReadFacilities reads a (sector, lat, lon) table. The first row is
// treated as a header and skipped.
func ReadFacilities(r io.Reader) ([]Facility, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("traj: reading facility csv: %v", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("traj: facility csv has no data rows")
	}
	var facilities []Facility
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("traj: facility csv row %d has %d fields but needs 3", i+2, len(row))
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("traj: facility csv row %d latitude: %v", i+2, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("traj: facility csv row %d longitude: %v", i+2, err)
		}
		facilities = append(facilities, Facility{
			Sector: strings.TrimSpace(row[0]),
			Point:  geom.Point{X: lon, Y: lat},
		})
	}
	return facilities, nil
}
