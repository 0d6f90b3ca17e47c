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
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
)

// A Region is one administrative area that emissions are aggregated
// into. Regions are immutable once loaded.
type Region struct {
	geom.Polygonal

	// Name uniquely identifies the region within its set.
	Name string
}

// Regions holds a set of administrative areas indexed for spatial
// search.
type Regions struct {
	regions []*Region
	index   *rtree.Rtree
	sr      *proj.SR
}

// LoadRegions reads administrative boundary polygons from a
// shapefile, taking region names from the attribute column nameField
// and reprojecting the geometry to geographic coordinates.
func LoadRegions(file, nameField string) (*Regions, error) {
	projection, err := proj.Parse("+proj=longlat")
	if err != nil {
		panic(err)
	}

	d, err := shp.NewDecoder(file)
	if err != nil {
		return nil, fmt.Errorf("zonal: opening region shapefile %s: %v", file, err)
	}
	defer d.Close()
	sr, err := d.SR()
	if err != nil {
		return nil, fmt.Errorf("zonal: reading spatial reference of %s: %v", file, err)
	}
	trans, err := sr.NewTransform(projection)
	if err != nil {
		return nil, fmt.Errorf("zonal: reprojecting %s: %v", file, err)
	}

	rs := &Regions{
		index: rtree.NewTree(25, 50),
		sr:    projection,
	}
	seen := make(map[string]struct{})
	for {
		g, fields, more := d.DecodeRowFields(nameField)
		if !more {
			break
		}
		name := fields[nameField]
		if name == "" {
			return nil, fmt.Errorf("zonal: region shapefile %s: empty %s attribute in row %d", file, nameField, len(rs.regions))
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("zonal: region shapefile %s: duplicate region name %s", file, name)
		}
		seen[name] = struct{}{}

		gg, err := g.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("zonal: reprojecting region %s: %v", name, err)
		}
		poly, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("zonal: region %s: geometry must be a polygon but is %T", name, gg)
		}
		r := &Region{Polygonal: poly, Name: name}
		rs.regions = append(rs.regions, r)
		rs.index.Insert(r)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("zonal: reading region shapefile %s: %v", file, err)
	}
	if len(rs.regions) == 0 {
		return nil, fmt.Errorf("zonal: region shapefile %s contains no regions", file)
	}
	return rs, nil
}

// NewRegions creates a region set from geometry already in geographic
// coordinates.
func NewRegions(regions []*Region) (*Regions, error) {
	rs := &Regions{index: rtree.NewTree(25, 50)}
	seen := make(map[string]struct{})
	for _, r := range regions {
		if _, ok := seen[r.Name]; ok {
			return nil, fmt.Errorf("zonal: duplicate region name %s", r.Name)
		}
		seen[r.Name] = struct{}{}
		rs.regions = append(rs.regions, r)
		rs.index.Insert(r)
	}
	return rs, nil
}

// Len returns the number of regions in the set.
func (rs *Regions) Len() int { return len(rs.regions) }

// Names returns the region names in load order.
func (rs *Regions) Names() []string {
	names := make([]string, len(rs.regions))
	for i, r := range rs.regions {
		names[i] = r.Name
	}
	return names
}
