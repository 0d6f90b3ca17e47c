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
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

const testFillValue = -9.e33

// writeTestGrid writes a small COARDS NetCDF emission grid to dir.
// The flux variable holds 1-based cell indices, except that the
// first cell is set to the fill value.
func writeTestGrid(t *testing.T, dir, name string, lats, lons []float64) string {
	t.Helper()
	h := cdf.NewHeader([]string{"lat", "lon"}, []int{len(lats), len(lons)})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddVariable("emi_so2", []string{"lat", "lon"}, []float32{0})
	h.AddAttribute("emi_so2", "_FillValue", []float32{testFillValue})
	h.Define()
	for _, err := range h.Check() {
		t.Fatal(err)
	}

	file := filepath.Join(dir, name)
	ff, err := os.Create(file)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.Writer("lat", []int{0}, []int{len(lats)}).Write(lats); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Writer("lon", []int{0}, []int{len(lons)}).Write(lons); err != nil {
		t.Fatal(err)
	}
	flux := make([]float32, len(lats)*len(lons))
	for i := range flux {
		flux[i] = float32(i + 1)
	}
	flux[0] = testFillValue
	begin, end := []int{0, 0}, []int{len(lats), len(lons)}
	if _, err := f.Writer("emi_so2", begin, end).Write(flux); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	lats := []float64{30.05, 30.15, 30.25}
	lons := []float64{110.05, 110.15}
	file := writeTestGrid(t, dir, "v6.1_SO2_2018_ENE.0.1x0.1.nc", lats, lons)

	g, err := ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if g.Pollutant != "SO2" || g.Sector != "ENE" || g.Year != 2018 {
		t.Errorf("unexpected metadata: %+v", g.FileInfo)
	}
	arr, ok := g.Data["emi_so2"]
	if !ok {
		t.Fatal("missing flux variable emi_so2")
	}
	if !math.IsNaN(arr.Get(0, 0)) {
		t.Errorf("fill value should read as NaN but is %g", arr.Get(0, 0))
	}
	if v := arr.Get(1, 1); v != 4 {
		t.Errorf("cell (1,1) = %g, want 4", v)
	}

	b := g.CellBounds(1, 0)
	const tol = 1e-9
	if math.Abs(b.Min.X-110.0) > tol || math.Abs(b.Max.X-110.1) > tol ||
		math.Abs(b.Min.Y-30.1) > tol || math.Abs(b.Max.Y-30.2) > tol {
		t.Errorf("unexpected cell bounds %+v", b)
	}
}

func TestCellArea(t *testing.T) {
	g := &Grid{
		Lat: []float64{0.05, 0.15, 0.25},
		Lon: []float64{10.05, 10.15},
	}
	// Exact spherical area of a 0.1°×0.1° cell touching the equator.
	dLon := 0.1 * math.Pi / 180
	want := EarthRadius * EarthRadius * dLon * (math.Sin(0.1*math.Pi/180) - 0)
	if got := g.CellArea(0, 0); math.Abs(got-want)/want > 1e-12 {
		t.Errorf("equator cell area = %g, want %g", got, want)
	}
	// Cells at higher latitude must be smaller.
	if !(g.CellArea(2, 0) < g.CellArea(0, 0)) {
		t.Error("cell area should shrink with latitude")
	}
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	lats := []float64{30.05, 30.15}
	lons := []float64{110.05, 110.15}
	writeTestGrid(t, dir, "v6.1_SO2_2018_ENE.0.1x0.1.nc", lats, lons)
	writeTestGrid(t, dir, "v6.1_SO2_2018_IND.0.1x0.1.nc", lats, lons)

	// A malformed name must fail that file only.
	bad := filepath.Join(dir, "notagrid.nc")
	if err := os.WriteFile(bad, []byte("bogus"), 0644); err != nil {
		t.Fatal(err)
	}

	grids, errs := ReadDir(dir)
	if len(grids) != 2 {
		t.Fatalf("read %d grids, want 2", len(grids))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if grids[0].Sector != "ENE" || grids[1].Sector != "IND" {
		t.Errorf("grids out of order: %v, %v", grids[0].Sector, grids[1].Sector)
	}
}
