// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package imageset

import (
	"fmt"
	"io"

	"github.com/montanaflynn/stats"
	"github.com/mlnoga/xrdstack/internal/ops/bounds"
)

// Summary of the normalization values of one set
type SetReport struct {
	Kind      Kind           `json:"kind"`
	Images    int            `json:"images"`
	Accepted  int            `json:"accepted"`
	Window    bounds.Window  `json:"window"`
	Median    float64        `json:"median"`
	Min       float64        `json:"min"`
	Max       float64        `json:"max"`
	P05       float64        `json:"p05"`
	P95       float64        `json:"p95"`
}

// Computes the summary for the set of the given kind. Returns false for empty or derived sets
func (s *Session) Report(kind Kind) (SetReport, bool) {
	set, op:=s.Set(kind), s.Bounds(kind)
	if set==nil || set.IsEmpty() || op==nil { return SetReport{}, false }

	r:=SetReport{Kind: kind, Images: set.Len(), Accepted: bounds.CountAccepted(set.Accepted)}
	r.Window, _=bounds.NewWindow(set.Normalization, op.StdMin, op.StdMax)
	data:=stats.Float64Data(bounds.Pool(set.Normalization))
	// errors only occur on empty input, which is excluded above
	r.Median, _=stats.Median(data)
	r.Min, _   =stats.Min(data)
	r.Max, _   =stats.Max(data)
	r.P05, _   =stats.PercentileNearestRank(data, 5)
	r.P95, _   =stats.PercentileNearestRank(data, 95)
	return r, true
}

// Writes a per-image table and a per-set summary for all populated sets
func (s *Session) WriteReport(w io.Writer) {
	for _, kind:=range []Kind{Additive, Subtractive} {
		r, ok:=s.Report(kind)
		if !ok { continue }
		set:=s.Set(kind)
		fmt.Fprintf(w, "\n%s images:\n", kind)
		fmt.Fprintf(w, "%5s %5s %5s %14s %8s  %s\n", "cycle", "item", "index", "norm", "accepted", "name")
		i:=0
		for c, cycle:=range set.Names {
			for j, name:=range cycle {
				fmt.Fprintf(w, "%5d %5d %5d %14.6g %8v  %s\n", c, j, i, set.Normalization[c][j], set.Accepted[c][j], name)
				i++
			}
		}
		fmt.Fprintf(w, "%s: %d of %d accepted, %v\n", kind, r.Accepted, r.Images, r.Window)
		fmt.Fprintf(w, "%s: median %.6g min %.6g max %.6g p05 %.6g p95 %.6g\n", kind, r.Median, r.Min, r.Max, r.P05, r.P95)
	}
}
