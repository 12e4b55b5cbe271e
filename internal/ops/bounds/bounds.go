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


// Package bounds decides which images of a set are accepted for compilation.
// Masks and normalization values are grouped by cycle, as [cycle][item].
package bounds

import (
	"fmt"
	"gonum.org/v1/gonum/stat"
	"github.com/mlnoga/xrdstack/internal/ops"
)

// Acceptance bound configuration for one image set
type OpBounds struct {
	ops.OpBase
	DropFirst  int      `json:"dropFirst"`  // images rejected at the start of every cycle
	DropLast   int      `json:"dropLast"`   // images rejected at the end of every cycle
	StdMin     float64  `json:"stdMin"`     // lower bound in standard deviations below the pooled mean
	StdMax     float64  `json:"stdMax"`     // upper bound in standard deviations above the pooled mean
}

func NewOpBoundsDefault() *OpBounds { return NewOpBounds(0, 0, 4, 4) }

func NewOpBounds(dropFirst, dropLast int, stdMin, stdMax float64) *OpBounds {
	return &OpBounds{
		OpBase    : ops.OpBase{Type: "bounds", Active: true},
		DropFirst : dropFirst,
		DropLast  : dropLast,
		StdMin    : stdMin,
		StdMax    : stdMax,
	}
}

// Resets the mask to all true, then applies start/stop and standard deviation bounds.
// Bounds never accumulate over repeated calls
func (op *OpBounds) Recompute(norm [][]float64, accepted [][]bool) [][]bool {
	accepted=Reset(accepted)
	accepted=ApplyStartStop(accepted, op.DropFirst, op.DropLast)
	return ApplyStd(norm, accepted, op.StdMin, op.StdMax)
}

// Sets all entries to true. Operates in-place
func Reset(accepted [][]bool) [][]bool {
	for _, cycle:=range accepted {
		for i:=range cycle {
			cycle[i]=true
		}
	}
	return accepted
}

// Returns an all-true mask with the same shape as the given values
func AllTrue[T any](shape [][]T) [][]bool {
	accepted:=make([][]bool, len(shape))
	for c, cycle:=range shape {
		accepted[c]=make([]bool, len(cycle))
	}
	return Reset(accepted)
}

// Rejects the first dropFirst and the last dropLast images of every cycle.
// Counts beyond the cycle length are clamped. Operates in-place
func ApplyStartStop(accepted [][]bool, dropFirst, dropLast int) [][]bool {
	for _, cycle:=range accepted {
		n:=len(cycle)
		for i:=0; i<dropFirst && i<n; i++ {
			cycle[i]=false
		}
		for i:=0; i<dropLast && i<n; i++ {
			cycle[n-1-i]=false
		}
	}
	return accepted
}

// Flattens values grouped by cycle into one slice, in cycle order
func Pool(norm [][]float64) []float64 {
	n:=0
	for _, cycle:=range norm {
		n+=len(cycle)
	}
	pool:=make([]float64, 0, n)
	for _, cycle:=range norm {
		pool=append(pool, cycle...)
	}
	return pool
}

// The acceptance window around the pooled mean
type Window struct {
	Mean  float64  `json:"mean"`
	Std   float64  `json:"std"`   // population standard deviation
	Low   float64  `json:"low"`   // Mean - Std*stdMin
	High  float64  `json:"high"`  // Mean + Std*stdMax
}

func (w Window) Contains(v float64) bool { return v>=w.Low && v<=w.High }

func (w Window) String() string {
	return fmt.Sprintf("mean %.6g std %.6g window [%.6g, %.6g]", w.Mean, w.Std, w.Low, w.High)
}

// Computes the acceptance window from the pooled values of all cycles. 
// Returns false if there are no values
func NewWindow(norm [][]float64, stdMin, stdMax float64) (Window, bool) {
	pool:=Pool(norm)
	if len(pool)==0 { return Window{}, false }
	mean, std:=stat.PopMeanStdDev(pool, nil)
	return Window{Mean: mean, Std: std, Low: mean-std*stdMin, High: mean+std*stdMax}, true
}

// Rejects images whose normalization value lies outside the window of stdMin/stdMax 
// population standard deviations around the mean, both pooled over all cycles. 
// Never re-accepts an image. Operates in-place
func ApplyStd(norm [][]float64, accepted [][]bool, stdMin, stdMax float64) [][]bool {
	w, ok:=NewWindow(norm, stdMin, stdMax)
	if !ok { return accepted }
	for c, cycle:=range norm {
		for i, v:=range cycle {
			if !w.Contains(v) {
				accepted[c][i]=false
			}
		}
	}
	return accepted
}

// Merges two masks of identical shape. Both results are the elementwise logical AND of the inputs,
// as fresh slices that share no storage with each other
func Merge(a, b [][]bool) ([][]bool, [][]bool) {
	ma:=make([][]bool, len(a))
	mb:=make([][]bool, len(a))
	for c:=range a {
		ma[c]=make([]bool, len(a[c]))
		mb[c]=make([]bool, len(a[c]))
		for i:=range a[c] {
			v:=a[c][i] && c<len(b) && i<len(b[c]) && b[c][i]
			ma[c][i], mb[c][i]=v, v
		}
	}
	return ma, mb
}

// Number of accepted images in the mask
func CountAccepted(accepted [][]bool) int {
	n:=0
	for _, cycle:=range accepted {
		for _, a:=range cycle {
			if a { n++ }
		}
	}
	return n
}
