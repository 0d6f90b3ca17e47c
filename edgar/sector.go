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

// TotalLabel is the label given to all-sector aggregate grids, which
// are identified by an empty sector code.
const TotalLabel = "Total"

// OtherLabel is the catch-all label for sector codes missing from
// sectorLabels. Folding unmapped codes together loses information,
// but it is the intended treatment, not an error.
const OtherLabel = "Others"

// sectorLabels maps EDGAR source sector codes to readable labels.
var sectorLabels = map[string]string{
	"ENE": "Energy",
	"REF": "Refineries",
	"IND": "Industry",
	"TRO": "Road transport",
	"TNR": "Off-road transport",
	"RCO": "Residential",
	"PRO": "Fuel exploitation",
	"CHE": "Chemical processes",
	"IRO": "Iron and steel",
	"NMM": "Minerals",
	"NFE": "Non-ferrous metals",
	"SWD": "Solid waste",
	"WWT": "Waste water",
	"AGS": "Agriculture",
	"AWB": "Agricultural waste burning",
	"MNM": "Manure management",
}

// SectorLabel returns the readable label for an EDGAR sector code.
// The empty code labels as TotalLabel and unmapped codes fall back
// to OtherLabel.
func SectorLabel(code string) string {
	if code == "" {
		return TotalLabel
	}
	if label, ok := sectorLabels[code]; ok {
		return label
	}
	return OtherLabel
}
