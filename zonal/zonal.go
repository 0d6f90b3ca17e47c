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

// Package zonal aggregates gridded emission rasters onto
// administrative region polygons using exact area-weighted zonal
// statistics.
package zonal

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/unit"
	"gonum.org/v1/gonum/floats"

	"github.com/spatialmodel/upwind/edgar"
)

// A Record is one row of the long-format aggregation output: the
// annual emission of one pollutant and sector within one region.
type Record struct {
	Region      string
	Pollutant   string
	Year        int
	Sector      string
	SectorLabel string

	// Emission is the annual emission [kg].
	Emission *unit.Unit
}

// Totals holds the aggregation result for one grid file on a mass
// rate basis (flux density × cell surface area, i.e. kg/s), before
// conversion to annual emissions.
type Totals struct {
	Grid *edgar.Grid

	// Region maps region names to the area-weighted emission rate
	// within each region [kg/s].
	Region map[string]float64

	// Global is the weighted emission rate of the whole grid [kg/s].
	Global float64
}

// Aggregate computes the area-weighted emission rate of grid g within
// each region. Each cell's flux is weighted by its true spherical
// surface area and by the fraction of the cell lying inside the
// region, so cells straddling a boundary are split exactly rather
// than assigned whole to the nearest region. No-data cells are
// excluded from the sums, not counted as zero.
func Aggregate(g *edgar.Grid, rs *Regions) *Totals {
	t := &Totals{
		Grid:   g,
		Region: make(map[string]float64, len(rs.regions)),
	}
	for _, r := range rs.regions {
		t.Region[r.Name] = 0
	}

	for j := range g.Lat {
		for i := range g.Lon {
			flux, ok := cellFlux(g, j, i)
			if !ok {
				continue
			}
			rate := flux * g.CellArea(j, i) // kg m-2 s-1 × m2 = kg/s
			t.Global += rate
			if rate == 0 {
				continue
			}
			cell := g.CellPolygon(j, i)
			for _, rI := range rs.index.SearchIntersect(cell.Bounds()) {
				r := rI.(*Region)
				t.Region[r.Name] += rate * cellFraction(cell, r.Polygonal)
			}
		}
	}
	return t
}

// cellFlux sums the flux variables of cell (j, i), skipping no-data
// values. ok is false if every variable is no-data.
func cellFlux(g *edgar.Grid, j, i int) (flux float64, ok bool) {
	for _, arr := range g.Data {
		v := arr.Get(j, i)
		if math.IsNaN(v) {
			continue
		}
		flux += v
		ok = true
	}
	return flux, ok
}

// cellFraction returns the fraction of cell lying inside poly.
func cellFraction(cell geom.Polygon, poly geom.Polygonal) float64 {
	isect := cell.Intersection(poly)
	if isect == nil {
		return 0
	}
	return isect.Area() / cell.Area()
}

// Residual returns the emission rate not assigned to any region
// [kg/s]. For regions that do not overlap each other, the per-region
// rates plus the residual add up to the global rate.
func (t *Totals) Residual() float64 {
	rates := make([]float64, 0, len(t.Region))
	for _, v := range t.Region {
		rates = append(rates, v)
	}
	return t.Global - floats.Sum(rates)
}

// Records converts the aggregated rates to long-format annual
// emission records, one per region, sorted by region name. The
// rate-to-annual conversion (multiplication by seconds per year) is
// applied uniformly here and nowhere else.
func (t *Totals) Records() []Record {
	names := make([]string, 0, len(t.Region))
	for name := range t.Region {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, len(names))
	for i, name := range names {
		records[i] = Record{
			Region:      name,
			Pollutant:   t.Grid.Pollutant,
			Year:        t.Grid.Year,
			Sector:      t.Grid.Sector,
			SectorLabel: t.Grid.SectorLabel(),
			Emission:    unit.New(t.Region[name]*edgar.SecondsPerYear, unit.Kilogram),
		}
	}
	return records
}

// AggregateDir aggregates every grid file in dir onto the given
// regions. A file that cannot be read fails only itself: its error is
// reported in the second return value and the remaining files are
// still aggregated.
func AggregateDir(dir string, rs *Regions) ([]Record, []error) {
	grids, errs := edgar.ReadDir(dir)
	var records []Record
	for _, g := range grids {
		records = append(records, Aggregate(g, rs).Records()...)
	}
	return records, errs
}
