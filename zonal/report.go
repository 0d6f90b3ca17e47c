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

package zonal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"

	"github.com/spatialmodel/upwind/edgar"
)

// WriteCSV writes aggregation records as a long-format CSV table
// suitable for direct consumption by plotting tools.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"region", "pollutant", "year", "sector", "sector_label", "emission_kg_yr"}); err != nil {
		return fmt.Errorf("zonal: writing CSV header: %v", err)
	}
	for _, r := range records {
		row := []string{
			r.Region,
			r.Pollutant,
			strconv.Itoa(r.Year),
			r.Sector,
			r.SectorLabel,
			strconv.FormatFloat(r.Emission.Value(), 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("zonal: writing CSV record for region %s: %v", r.Region, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteShp writes the per-region annual emissions for one grid file
// to a shapefile in directory outdir, for inspection in GIS tools.
// The file is named after the source grid's pollutant and sector.
func (t *Totals) WriteShp(outdir string, rs *Regions) error {
	name := fmt.Sprintf("%s_%d_%s", t.Grid.Pollutant, t.Grid.Year, t.Grid.SectorLabel())
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(filepath.Join(outdir, name+ext))
	}
	fields := []goshp.Field{
		goshp.StringField("region", 40),
		goshp.FloatField("emis_kg_yr", 20, 6),
	}
	e, err := shp.NewEncoderFromFields(filepath.Join(outdir, name+".shp"),
		goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("zonal: creating output shapefile: %v", err)
	}
	for _, r := range rs.regions {
		annual := t.Region[r.Name] * edgar.SecondsPerYear
		if err := e.EncodeFields(r.Polygonal, r.Name, annual); err != nil {
			return fmt.Errorf("zonal: encoding region %s: %v", r.Name, err)
		}
	}
	e.Close()

	prj := filepath.Join(outdir, name+".prj")
	if err := os.WriteFile(prj, []byte("+proj=longlat"), 0644); err != nil {
		return fmt.Errorf("zonal: writing projection file: %v", err)
	}
	return nil
}
