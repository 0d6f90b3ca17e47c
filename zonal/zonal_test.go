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
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"

	"github.com/spatialmodel/upwind/edgar"
)

// testGrid builds a 4×4 grid of 1°×1° cells with centers from
// (10.5, 0.5) to (13.5, 3.5) and the given flux values in row-major
// order.
func testGrid(t *testing.T, flux []float64) *edgar.Grid {
	t.Helper()
	lats := []float64{0.5, 1.5, 2.5, 3.5}
	lons := []float64{10.5, 11.5, 12.5, 13.5}
	if len(flux) != len(lats)*len(lons) {
		t.Fatalf("flux has %d values, want %d", len(flux), len(lats)*len(lons))
	}
	arr := sparse.ZerosDense(len(lats), len(lons))
	arr.Elements = flux
	return &edgar.Grid{
		FileInfo: edgar.FileInfo{
			Version:   "v6.1",
			Pollutant: "SO2",
			Year:      2018,
			Sector:    "ENE",
		},
		Lat:  lats,
		Lon:  lons,
		Data: map[string]*sparse.DenseArray{"emi_so2": arr},
	}
}

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

func ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1
	}
	return o
}

// directIntegral computes the area-weighted integral of a constant
// unit flux over the grid cells covered by the region [x0,x1]×[y0,y1],
// assuming the region edges align with cell edges.
func directIntegral(g *edgar.Grid, x0, y0, x1, y1 float64) float64 {
	var sum float64
	for j := range g.Lat {
		for i := range g.Lon {
			b := g.CellBounds(j, i)
			if b.Min.X >= x0 && b.Max.X <= x1 && b.Min.Y >= y0 && b.Max.Y <= y1 {
				sum += g.CellArea(j, i)
			}
		}
	}
	return sum
}

func TestAggregateMatchesDirectIntegral(t *testing.T) {
	g := testGrid(t, ones(16))
	// A region exactly covering the four cells in rows 1-2, cols 1-2.
	r := &Region{Polygonal: rect(11, 1, 13, 3), Name: "inner"}
	rs, err := NewRegions([]*Region{r})
	if err != nil {
		t.Fatal(err)
	}
	totals := Aggregate(g, rs)
	want := directIntegral(g, 11, 1, 13, 3)
	got := totals.Region["inner"]
	if math.Abs(got-want)/want > 1e-9 {
		t.Errorf("weighted sum = %g, want %g", got, want)
	}
}

func TestAggregatePartialCells(t *testing.T) {
	g := testGrid(t, ones(16))
	// This region covers the left half of the column of cells
	// centered at lon 10.5, over all four rows.
	r := &Region{Polygonal: rect(10, 0, 10.5, 4), Name: "half"}
	rs, err := NewRegions([]*Region{r})
	if err != nil {
		t.Fatal(err)
	}
	totals := Aggregate(g, rs)
	var want float64
	for j := range g.Lat {
		want += g.CellArea(j, 0) / 2
	}
	got := totals.Region["half"]
	if math.Abs(got-want)/want > 1e-9 {
		t.Errorf("half-cell weighted sum = %g, want %g", got, want)
	}
}

func TestConservation(t *testing.T) {
	flux := []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	g := testGrid(t, flux)
	// Three regions that tile part of the raster extent, with edges
	// deliberately cutting through cell interiors.
	regions := []*Region{
		{Polygonal: rect(10, 0, 11.7, 4), Name: "west"},
		{Polygonal: rect(11.7, 0, 13.2, 2.3), Name: "southeast"},
		{Polygonal: rect(11.7, 2.3, 13.2, 4), Name: "northeast"},
	}
	rs, err := NewRegions(regions)
	if err != nil {
		t.Fatal(err)
	}
	totals := Aggregate(g, rs)

	assigned := 0.
	for _, v := range totals.Region {
		assigned += v
	}
	if got := assigned + totals.Residual(); math.Abs(got-totals.Global)/totals.Global > 1e-9 {
		t.Errorf("assigned+residual = %g, global = %g", got, totals.Global)
	}
	if totals.Residual() <= 0 {
		t.Errorf("regions do not tile the whole grid, so the residual should be positive but is %g", totals.Residual())
	}
}

func TestAggregateNoData(t *testing.T) {
	flux := ones(16)
	flux[5] = math.NaN() // row 1, col 1
	g := testGrid(t, flux)
	r := &Region{Polygonal: rect(11, 1, 13, 3), Name: "inner"}
	rs, err := NewRegions([]*Region{r})
	if err != nil {
		t.Fatal(err)
	}
	totals := Aggregate(g, rs)
	// The NaN cell must contribute nothing, not zero-substitute:
	// remaining three cells only.
	want := g.CellArea(1, 2) + g.CellArea(2, 1) + g.CellArea(2, 2)
	got := totals.Region["inner"]
	if math.Abs(got-want)/want > 1e-9 {
		t.Errorf("weighted sum with no-data cell = %g, want %g", got, want)
	}
	if math.IsNaN(totals.Global) {
		t.Error("global sum must exclude no-data cells, not propagate NaN")
	}
}

func TestCellFraction(t *testing.T) {
	region := rect(10, 0, 12, 2)
	tests := []struct {
		name   string
		cell   geom.Polygon
		region geom.Polygonal
		want   float64
	}{
		{"inside", rect(10.5, 0.5, 11.5, 1.5), region, 1},
		{"straddling", rect(11.5, 0.5, 12.5, 1.5), region, 0.5},
		{"outside", rect(13, 0.5, 14, 1.5), region, 0},
		{"coincident", rect(10, 0, 12, 2), region, 1},
		// A U-shaped region holds both the lower-left and upper-right
		// cell corners but not the cell middle; corner membership must
		// not shortcut the exact overlap computation.
		{"concave gap",
			rect(0.5, 2, 2.5, 2.5),
			geom.Polygon{{
				{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 2, Y: 3},
				{X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3},
				{X: 0, Y: 0},
			}},
			0.5},
	}
	for _, test := range tests {
		if got := cellFraction(test.cell, test.region); math.Abs(got-test.want) > 1e-9 {
			t.Errorf("%s: fraction = %g, want %g", test.name, got, test.want)
		}
	}
}

func TestRecords(t *testing.T) {
	g := testGrid(t, ones(16))
	regions := []*Region{
		{Polygonal: rect(12, 0, 14, 4), Name: "b"},
		{Polygonal: rect(10, 0, 12, 4), Name: "a"},
	}
	rs, err := NewRegions(regions)
	if err != nil {
		t.Fatal(err)
	}
	totals := Aggregate(g, rs)
	records := totals.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Region != "a" || records[1].Region != "b" {
		t.Errorf("records not sorted by region: %s, %s", records[0].Region, records[1].Region)
	}
	r := records[0]
	if r.Pollutant != "SO2" || r.Year != 2018 || r.Sector != "ENE" || r.SectorLabel != "Energy" {
		t.Errorf("unexpected record metadata: %+v", r)
	}
	want := totals.Region["a"] * edgar.SecondsPerYear
	if got := r.Emission.Value(); math.Abs(got-want)/want > 1e-12 {
		t.Errorf("annual emission = %g, want %g", got, want)
	}
}
