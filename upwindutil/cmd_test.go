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

package upwindutil

import (
	"testing"
	"time"
)

func TestDateRange(t *testing.T) {
	start, end, err := dateRange("2018-01-01", "2018-01-07")
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start: have %v", start)
	}
	if !end.Equal(time.Date(2018, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end: have %v", end)
	}

	tests := []struct{ start, end string }{
		{"", "2018-01-07"},
		{"2018-01-01", ""},
		{"January 1", "2018-01-07"},
		{"2018-01-07", "2018-01-01"},
	}
	for _, test := range tests {
		if _, _, err := dateRange(test.start, test.end); err == nil {
			t.Errorf("(%q, %q): expected error but have none", test.start, test.end)
		}
	}
}

func TestReadMeasurementsUnsupported(t *testing.T) {
	if _, err := readMeasurements("series.json", "", ""); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := readMeasurements("series.xlsx", "", ""); err == nil {
		t.Error("expected error for spreadsheet without a sheet name")
	}
	if _, err := readMeasurements("series.db", "", ""); err == nil {
		t.Error("expected error for database without a query")
	}
}

func TestToIntSliceE(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    []int
		wantErr bool
	}{
		{in: "[0,6,12,18]", want: []int{0, 6, 12, 18}},
		{in: []interface{}{0, 6}, want: []int{0, 6}},
		{in: "noon", wantErr: true},
	}
	for i, test := range tests {
		have, err := toIntSliceE(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("test %d: expected error but have none", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if len(have) != len(test.want) {
			t.Errorf("test %d: have %v, want %v", i, have, test.want)
			continue
		}
		for j := range have {
			if have[j] != test.want[j] {
				t.Errorf("test %d: have %v, want %v", i, have, test.want)
				break
			}
		}
	}
}

func TestDefaults(t *testing.T) {
	if Cfg.GetInt("Traj.ChunkSize") != 5 {
		t.Errorf("Traj.ChunkSize default: have %d, want 5", Cfg.GetInt("Traj.ChunkSize"))
	}
	if Cfg.GetString("Traj.Weather") != "gdas1" {
		t.Errorf("Traj.Weather default: have %q, want \"gdas1\"", Cfg.GetString("Traj.Weather"))
	}
	if Cfg.GetString("Regions.NameField") != "NAME_1" {
		t.Errorf("Regions.NameField default: have %q, want \"NAME_1\"", Cfg.GetString("Regions.NameField"))
	}
}
