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

// Package edgar reads gridded emission inventory files in the format
// used by the EDGAR global inventory: COARDS-compliant NetCDF rasters
// of flux density, one file per pollutant, year, and source sector,
// with the inventory metadata encoded in the file name.
package edgar

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// EarthRadius is the radius of the spherical Earth used for cell
// surface areas [m].
const EarthRadius = 6370997.

// SecondsPerYear converts an emission rate [mass/time] to an annual
// emission [mass].
const SecondsPerYear = 3600 * 24 * 365

// Grid is a gridded emission inventory raster read from one file.
// Values are flux densities [kg m-2 s-1] on a regular
// latitude-longitude grid; cells with no data hold NaN.
type Grid struct {
	FileInfo

	// Lat and Lon are the cell center coordinates [degrees].
	Lat, Lon []float64

	// Data holds one array per flux variable in the source file,
	// dimensioned [lat, lon].
	Data map[string]*sparse.DenseArray

	sr *proj.SR
}

// SR returns the grid's spatial reference (geographic coordinates).
func (g *Grid) SR() *proj.SR { return g.sr }

// gridPointsToGridSpacing returns the size of the grid cell at index
// i when given the grid center points.
func gridPointsToGridSpacing(gridPoints []float64, i int) float64 {
	if i == 0 {
		return gridPoints[1] - gridPoints[0]
	} else if i == len(gridPoints)-1 {
		return gridPoints[len(gridPoints)-1] - gridPoints[len(gridPoints)-2]
	}
	return (gridPoints[i+1] - gridPoints[i-1]) / 2
}

// readVar reads a floating point variable from a COARDS file.
// It will return nil if the variable is not floating point.
func readVar(nc *cdf.File, v string) ([]float64, error) {
	r := nc.Reader(v, nil, nil)
	dataI := r.Zero(-1)
	switch dataI.(type) {
	case []float32, []float64:
	default:
		return nil, nil
	}
	_, err := r.Read(dataI)
	if err != nil {
		return nil, err
	}
	var data []float64
	switch d := dataI.(type) {
	case []float64:
		data = d
	case []float32:
		data = make([]float64, len(d))
		for i, v := range d {
			data[i] = float64(v)
		}
	}

	noDataI := nc.Header.GetAttribute(v, "_FillValue")
	if noDataI != nil {
		var noData float64
		switch nd := noDataI.(type) {
		case []float32:
			noData = float64(nd[0])
		case []float64:
			noData = nd[0]
		default:
			return nil, fmt.Errorf("invalid type for _FillValue: %T", noDataI)
		}
		for i, d := range data {
			if d == noData {
				data[i] = math.NaN()
			}
		}
	}
	return data, nil
}

// ReadFile reads a gridded emission file (COARDS-compliant NetCDF;
// NetCDF 4 and greater not supported). All floating point variables
// with dimensions [lat, lon] are taken to be flux variables in units
// of kg m-2 s-1. Cells matching the variable's _FillValue attribute
// are marked as no-data (NaN), not zero.
func ReadFile(file string) (*Grid, error) {
	info, err := ParseFileName(file)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("edgar: opening grid file %s: %v", file, err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("edgar: opening grid file %s: %v", file, err)
	}

	sr, err := proj.Parse("+proj=longlat")
	if err != nil {
		panic(err)
	}

	lons, err := readVar(nc, "lon")
	if err != nil {
		return nil, fmt.Errorf("edgar: reading variable lon from %s: %v", file, err)
	}
	lats, err := readVar(nc, "lat")
	if err != nil {
		return nil, fmt.Errorf("edgar: reading variable lat from %s: %v", file, err)
	}
	if len(lons) < 2 || len(lats) < 2 {
		return nil, fmt.Errorf("edgar: grid file %s: lat and lon variables must be length >= 2 but are %d and %d", file, len(lats), len(lons))
	}

	g := &Grid{
		FileInfo: info,
		Lat:      lats,
		Lon:      lons,
		Data:     make(map[string]*sparse.DenseArray),
		sr:       sr,
	}
	for _, v := range nc.Header.Variables() {
		dims := nc.Header.Dimensions(v)
		if len(dims) != 2 || dims[0] != "lat" || dims[1] != "lon" {
			continue
		}
		data, err := readVar(nc, v)
		if err != nil {
			return nil, fmt.Errorf("edgar: reading variable %s from %s: %v", v, file, err)
		}
		if data == nil {
			continue
		}
		if len(data) != len(lats)*len(lons) {
			return nil, fmt.Errorf("edgar: grid file %s: variable %s has %d values but the grid has %d cells", file, v, len(data), len(lats)*len(lons))
		}
		arr := sparse.ZerosDense(len(lats), len(lons))
		arr.Elements = data
		g.Data[v] = arr
	}
	if len(g.Data) == 0 {
		return nil, fmt.Errorf("edgar: grid file %s: no [lat, lon] flux variables", file)
	}
	return g, nil
}

// ReadDir reads every NetCDF grid file directly within dir. A file
// whose name cannot be parsed or whose contents cannot be read fails
// only itself: its error is collected and the remaining files are
// still read. The returned grids are sorted by file name.
func ReadDir(dir string) ([]*Grid, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("edgar: reading grid directory %s: %v", dir, err)}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nc") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var grids []*Grid
	var errs []error
	for _, name := range names {
		g, err := ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		grids = append(grids, g)
	}
	return grids, errs
}

// CellBounds returns the geographic footprint of the cell at row j
// (latitude) and column i (longitude), implied by the grid center
// points and spacing.
func (g *Grid) CellBounds(j, i int) *geom.Bounds {
	dy := math.Abs(gridPointsToGridSpacing(g.Lat, j))
	dx := gridPointsToGridSpacing(g.Lon, i)
	y := g.Lat[j]
	x := g.Lon[i]
	return &geom.Bounds{
		Min: geom.Point{X: x - dx/2, Y: y - dy/2},
		Max: geom.Point{X: x + dx/2, Y: y + dy/2},
	}
}

// CellPolygon returns the cell footprint as a polygon.
func (g *Grid) CellPolygon(j, i int) geom.Polygon {
	b := g.CellBounds(j, i)
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y}, {X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y}, {X: b.Min.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Min.Y},
	}}
}

// CellArea returns the true spherical surface area [m2] of the cell
// at row j and column i. At fixed angular resolution, cells cover
// less area the closer they are to the poles.
func (g *Grid) CellArea(j, i int) float64 {
	b := g.CellBounds(j, i)
	dLon := (b.Max.X - b.Min.X) * math.Pi / 180
	sinN := math.Sin(b.Max.Y * math.Pi / 180)
	sinS := math.Sin(b.Min.Y * math.Pi / 180)
	return EarthRadius * EarthRadius * dLon * (sinN - sinS)
}

// Bounds returns the outer extent of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	b := g.CellBounds(0, 0)
	b.Extend(g.CellBounds(len(g.Lat)-1, len(g.Lon)-1))
	return b
}
