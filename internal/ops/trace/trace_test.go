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
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
)

func TestPoints(t *testing.T) {
	tests:=[]struct {
		seg           Segment
		width, height int
		want          []Point
	}{
		{Segment{0, 0, 3, 3},  4, 4, []Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}},
		{Segment{0, 0, 1, 0},  4, 4, []Point{{0, 0}, {1, 0}}},
		{Segment{-2, 0, 5, 0}, 4, 1, []Point{{0, 0}, {3, 0}}},
		{Segment{3, 0, 0, 0},  4, 1, []Point{{3, 0}, {2, 0}, {1, 0}, {0, 0}}},
		{Segment{1, 1, 1, 1},  3, 3, []Point{{1, 1}}},
		{Segment{0, 0, 1, 1},  0, 0, nil},
	}
	for _, test:=range tests {
		got:=test.seg.Points(test.width, test.height)
		if len(got)==0 && len(test.want)==0 { continue }
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%v.Points(%d,%d)=%v; want %v", test.seg, test.width, test.height, got, test.want)
		}
	}
}

func TestSample(t *testing.T) {
	f:=frame.NewImageFromNaxisn([]int32{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	got:=Sample(f, []Point{{2, 0}, {0, 1}, {1, 1}})
	if want:=[]float32{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("sample=%v; want %v", got, want)
	}
}

func TestStackAndCompile(t *testing.T) {
	store:=frame.NewMemStore()
	a:=frame.NewImageFromNaxisn([]int32{3, 3}, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8})
	b:=a.Clone()
	b.Scale(2)
	store.Put("a.tiff", a)
	store.Put("b.tiff", b)
	c:=&ops.Context{Log: io.Discard, Store: store, MaxThreads: 2}
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, []string{"a.tiff", "b.tiff"}, c); err!=nil { t.Fatal(err) }

	// normalizations 36 and 72 average to 54, so both images scale to 1.5*a
	op:=NewOpTrace(Segment{0, 0, 2, 2})
	traces, pts, err:=op.Stack(s, imageset.Additive, c)
	if err!=nil { t.Fatal(err) }
	if len(pts)!=3 || len(traces)!=2 {
		t.Fatalf("points=%v traces=%v", pts, traces)
	}
	for i, tr:=range traces {
		if want:=[]float32{0, 6, 12}; !reflect.DeepEqual(tr, want) {
			t.Errorf("trace %d=%v; want %v", i, tr, want)
		}
	}

	sum, _, err:=op.Compile(s, imageset.Additive, c)
	if err!=nil { t.Fatal(err) }
	if want:=[]float32{0, 12, 24}; !reflect.DeepEqual(sum, want) {
		t.Errorf("sum=%v; want %v", sum, want)
	}

	s.Additive.Accepted[0][0]=false
	traces, _, err=op.Stack(s, imageset.Additive, c)
	if err!=nil { t.Fatal(err) }
	if len(traces)!=1 {
		t.Errorf("traces=%d; want 1", len(traces))
	}

	if _, _, err:=op.Stack(s, imageset.Correction, c); err==nil {
		t.Errorf("correction trace accepted")
	}
	if traces, _, err:=op.Stack(s, imageset.Subtractive, c); traces!=nil || err!=nil {
		t.Errorf("empty set traces=%v err=%v", traces, err)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	pts:=[]Point{{0, 0}, {1, 1}}
	if err:=WriteCSV(&buf, pts, [][]float32{{1, 2}, {0.5, 4}}); err!=nil { t.Fatal(err) }
	want:="x,y,sum,trace_0,trace_1\n0,0,1.5,1,0.5\n1,1,6,2,4\n"
	if got:=buf.String(); got!=want {
		t.Errorf("csv=%q; want %q", got, want)
	}

	buf.Reset()
	if err:=WriteCSV(&buf, pts, nil); err!=nil { t.Fatal(err) }
	if !strings.HasPrefix(buf.String(), "x,y,sum\n0,0,0\n") {
		t.Errorf("csv=%q", buf.String())
	}
}

func TestStackRejectsMismatchedDims(t *testing.T) {
	store:=frame.NewMemStore()
	store.Put("a.tiff", frame.NewImageFromNaxisn([]int32{3, 3}, []float32{1, 1, 1, 1, 1, 1, 1, 1, 1}))
	store.Put("b.tiff", frame.NewImageFromNaxisn([]int32{3, 3}, []float32{2, 2, 2, 2, 2, 2, 2, 2, 2}))
	c:=&ops.Context{Log: io.Discard, Store: store, MaxThreads: 2, Progress: ops.NewLogProgress(io.Discard)}
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, []string{"a.tiff", "b.tiff"}, c); err!=nil { t.Fatal(err) }

	// the file changes size after its baseline was taken
	store.Put("b.tiff", frame.NewImageFromNaxisn([]int32{2, 2}, []float32{2, 2, 2, 2}))
	op:=NewOpTrace(Segment{0, 0, 2, 2})
	traces, _, err:=op.Stack(s, imageset.Additive, c)
	if err==nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("traces=%v err=%v; want dimension mismatch", traces, err)
	}
	if done, max:=c.Progress.(*ops.LogProgress).Done(); done!=2 || max!=2 {
		t.Errorf("progress=%d/%d; want 2/2", done, max)
	}
}
