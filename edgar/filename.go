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

package edgar

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// FileInfo holds the inventory metadata encoded in an EDGAR grid file
// name. Names follow the pattern
//
//	<version>_<pollutant>_<year>[_<sector>[_<subsector>]].<resolution>.nc
//
// where fields are separated by underscores and the grid resolution
// rides on the final field, separated from it by the first period
// (for example "v6.1_SO2_2018_ENE.0.1x0.1.nc"). An empty or absent
// sector field means the file holds the all-sector total.
type FileInfo struct {
	// Version is the inventory version identifier, e.g. "v6.1".
	Version string

	// Pollutant is the emitted species, e.g. "SO2" or "NOx".
	Pollutant string

	// Year is the inventory year.
	Year int

	// Sector and Subsector are the source sector codes, e.g.
	// "ENE" or "TRO"/"RES". Both may be empty.
	Sector, Subsector string

	// Resolution is the grid resolution token, e.g. "0.1x0.1".
	Resolution string
}

// ParseFileName extracts inventory metadata from an EDGAR grid file
// name. It rejects names that do not match the pattern above rather
// than guessing at field positions.
func ParseFileName(name string) (FileInfo, error) {
	var fi FileInfo
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ".nc") {
		return fi, fmt.Errorf("edgar: file name %s: not a NetCDF (.nc) file", name)
	}
	base = strings.TrimSuffix(base, ".nc")

	fields := strings.Split(base, "_")
	if len(fields) < 3 || len(fields) > 5 {
		return fi, fmt.Errorf("edgar: file name %s: expected 3-5 underscore-separated fields but found %d", name, len(fields))
	}

	// The resolution is attached to the last field after its first period.
	last := len(fields) - 1
	if i := strings.Index(fields[last], "."); i != -1 {
		fi.Resolution = fields[last][i+1:]
		fields[last] = fields[last][:i]
	}

	fi.Version = fields[0]
	fi.Pollutant = fields[1]
	if fi.Version == "" || fi.Pollutant == "" {
		return fi, fmt.Errorf("edgar: file name %s: empty version or pollutant field", name)
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return fi, fmt.Errorf("edgar: file name %s: parsing year %q: %v", name, fields[2], err)
	}
	if year < 1000 || year > 9999 {
		return fi, fmt.Errorf("edgar: file name %s: year %d out of range", name, year)
	}
	fi.Year = year

	if len(fields) > 3 {
		fi.Sector = fields[3]
	}
	if len(fields) > 4 {
		fi.Subsector = fields[4]
		if fi.Sector == "" {
			return fi, fmt.Errorf("edgar: file name %s: subsector %q without sector", name, fi.Subsector)
		}
	}
	return fi, nil
}

// SectorLabel returns the human-readable label for the receiver's
// sector code.
func (fi FileInfo) SectorLabel() string {
	return SectorLabel(fi.Sector)
}
