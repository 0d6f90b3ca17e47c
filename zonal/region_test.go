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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
)

// writeTestRegions writes a two-region boundary shapefile to dir and
// returns its path.
func writeTestRegions(t *testing.T, dir string) string {
	t.Helper()
	file := filepath.Join(dir, "provinces.shp")
	fields := []goshp.Field{goshp.StringField("NAME", 40)}
	e, err := shp.NewEncoderFromFields(file, goshp.POLYGON, fields...)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.EncodeFields(rect(10, 0, 12, 4), "West"); err != nil {
		t.Fatal(err)
	}
	if err := e.EncodeFields(rect(12, 0, 14, 4), "East"); err != nil {
		t.Fatal(err)
	}
	e.Close()
	prj := filepath.Join(dir, "provinces.prj")
	if err := os.WriteFile(prj, []byte("+proj=longlat"), 0644); err != nil {
		t.Fatal(err)
	}
	return file
}

func TestLoadRegions(t *testing.T) {
	dir := t.TempDir()
	file := writeTestRegions(t, dir)

	rs, err := LoadRegions(file, "NAME")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 {
		t.Fatalf("loaded %d regions, want 2", rs.Len())
	}
	if want := []string{"West", "East"}; !reflect.DeepEqual(rs.Names(), want) {
		t.Errorf("region names = %v, want %v", rs.Names(), want)
	}

	// The loaded regions should behave identically to in-memory ones.
	g := testGrid(t, ones(16))
	totals := Aggregate(g, rs)
	wantWest := directIntegral(g, 10, 0, 12, 4)
	if got := totals.Region["West"]; got == 0 || got > totals.Global {
		t.Errorf("implausible weighted sum for West: %g", got)
	} else if diff := (got - wantWest) / wantWest; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("West weighted sum = %g, want %g", got, wantWest)
	}
}

func TestLoadRegionsMissingField(t *testing.T) {
	dir := t.TempDir()
	file := writeTestRegions(t, dir)
	if _, err := LoadRegions(file, "NOSUCH"); err == nil {
		t.Error("expected an error for a missing attribute column")
	}
}
