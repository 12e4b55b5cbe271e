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


package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/compile"
	"gonum.org/v1/gonum/floats"
)

// A pixel position
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// A line segment between two anchor positions
type Segment struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Samples max(width,height) evenly spaced positions from the first to the second anchor,
// rounded to pixels. Repeated pixels are kept once at their first occurrence, and 
// pixels outside the image are dropped
func (seg Segment) Points(width, height int) []Point {
	n:=width
	if height>n { n=height }
	if n<=0 { return nil }

	pts :=make([]Point, 0, n)
	seen:=make(map[Point]bool, n)
	for i:=0; i<n; i++ {
		t:=0.0
		if n>1 { t=float64(i)/float64(n-1) }
		p:=Point{
			X: int(math.Round(seg.X0+t*(seg.X1-seg.X0))),
			Y: int(math.Round(seg.Y0+t*(seg.Y1-seg.Y0))),
		}
		if p.X<0 || p.X>=width || p.Y<0 || p.Y>=height || seen[p] { continue }
		seen[p]=true
		pts=append(pts, p)
	}
	return pts
}

// Returns the pixel values of the image at the given points
func Sample(f *frame.Image, pts []Point) []float32 {
	width:=f.Width()
	res:=make([]float32, len(pts))
	for i, p:=range pts {
		res[i]=f.Data[p.Y*width+p.X]
	}
	return res
}

// Extracts intensity profiles along a line segment
type OpTrace struct {
	ops.OpBase
	Segment  Segment `json:"segment"`
}

func NewOpTrace(seg Segment) *OpTrace {
	return &OpTrace{
		OpBase:  ops.OpBase{Type:"trace", Active:true},
		Segment: seg,
	}
}

// Profiles of all accepted images of the given kind, in index order. Each image is scaled 
// like during compilation, and the sampled points are returned alongside. Frames are 
// sampled as soon as they are built, only the profiles are retained
func (op *OpTrace) Stack(s *imageset.Session, kind imageset.Kind, c *ops.Context) ([][]float32, []Point, error) {
	if kind==imageset.Correction { return nil, nil, fmt.Errorf("cannot trace the %s image", kind) }
	p:=compile.NewPlan(s, kind, -1)
	if p.Len()==0 { return nil, nil, nil }
	c.ProgressMax(p.Len())

	// the first frame fixes the dimensions and the sampled points
	first, err:=p.Composite(0, c)
	if err!=nil { return nil, nil, err }
	pts:=op.Segment.Points(first.Width(), first.Height())
	naxisn:=append([]int32(nil), first.Naxisn...)
	dims:=first.DimensionsToString()
	firstTrace:=Sample(first, pts)
	c.ProgressAdvance()

	positions:=make([]int, p.Len()-1)
	for j:=range positions {
		positions[j]=j+1
	}
	rest, err:=ops.ParallelMap(positions, c.MaxThreads, func(i int, j int) ([]float32, error) {
		defer c.ProgressAdvance()
		f, err:=p.Composite(j, c)
		if err!=nil { return nil, err }
		if len(f.Naxisn)!=2 || f.Naxisn[0]!=naxisn[0] || f.Naxisn[1]!=naxisn[1] {
			return nil, fmt.Errorf("%d: %s pixel image %s does not match %s pixels", 
				f.ID, f.DimensionsToString(), f.FileName, dims)
		}
		return Sample(f, pts), nil
	})
	if err!=nil { return nil, nil, err }

	traces:=append([][]float32{firstTrace}, rest...)
	if c.Verbose { fmt.Fprintf(c.Log, "Traced %d images along %d points\n", len(traces), len(pts)) }
	return traces, pts, nil
}

// The sum of the stacked profiles
func (op *OpTrace) Compile(s *imageset.Session, kind imageset.Kind, c *ops.Context) ([]float32, []Point, error) {
	traces, pts, err:=op.Stack(s, kind, c)
	if err!=nil || traces==nil { return nil, pts, err }
	return Sum(traces), pts, nil
}

// Sums traces of equal length
func Sum(traces [][]float32) []float32 {
	if len(traces)==0 { return nil }
	sum:=make([]float64, len(traces[0]))
	row:=make([]float64, len(sum))
	for _, t:=range traces {
		for i, v:=range t {
			row[i]=float64(v)
		}
		floats.Add(sum, row)
	}
	res:=make([]float32, len(sum))
	for i, v:=range sum {
		res[i]=float32(v)
	}
	return res
}

// Writes traces as CSV, one row per point with its coordinates, the sum and the individual traces
func WriteCSV(w io.Writer, pts []Point, traces [][]float32) error {
	cw:=csv.NewWriter(w)
	header:=[]string{"x", "y", "sum"}
	for i:=range traces {
		header=append(header, "trace_"+strconv.Itoa(i))
	}
	if err:=cw.Write(header); err!=nil { return err }

	sum:=Sum(traces)
	row:=make([]string, len(header))
	for j, p:=range pts {
		row[0], row[1]=strconv.Itoa(p.X), strconv.Itoa(p.Y)
		row[2]="0"
		if sum!=nil { row[2]=strconv.FormatFloat(float64(sum[j]), 'g', -1, 32) }
		for i, t:=range traces {
			row[3+i]=strconv.FormatFloat(float64(t[j]), 'g', -1, 32)
		}
		if err:=cw.Write(row); err!=nil { return err }
	}
	cw.Flush()
	return cw.Error()
}
