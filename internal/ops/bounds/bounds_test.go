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

package bounds

import (
	"math"
	"reflect"
	"testing"

	"github.com/valyala/fastrand"
)

func TestOutlierScenario(t *testing.T) {
	norm:=[][]float64{{100, 100, 100, 100, 100, 100, 100, 100, 100, 100000}}
	op:=NewOpBounds(1, 1, 4, 4)
	accepted:=op.Recompute(norm, AllTrue(norm))

	// a single outlier among n values lies sqrt(n-1)=3 standard deviations from the mean,
	// so only the start/stop policy rejects anything here
	want:=[][]bool{{false, true, true, true, true, true, true, true, true, false}}
	if !reflect.DeepEqual(accepted, want) {
		t.Errorf("accepted=%v; want %v", accepted, want)
	}

	w, ok:=NewWindow(norm, 4, 4)
	if !ok { t.Fatal("no window") }
	if math.Abs(w.Mean-10090)>1e-6 || math.Abs(w.Std-math.Sqrt(898200900))>1e-6 {
		t.Errorf("window=%v; want mean 10090 std %f", w, math.Sqrt(898200900))
	}
	if w.Contains(100000)!=true {
		t.Errorf("window %v excludes 100000", w)
	}
}

func TestStdRejectsOutlier(t *testing.T) {
	norm:=[][]float64{{10, 10, 10, 10}, {10, 10, 10, 10}, {10, 10, 10, 10}, {10, 10, 10, 1000}}
	accepted:=ApplyStd(norm, AllTrue(norm), 2, 2)
	if accepted[3][3] {
		t.Errorf("outlier accepted with stdMax=2")
	}
	if CountAccepted(accepted)!=15 {
		t.Errorf("accepted=%d; want 15", CountAccepted(accepted))
	}

	accepted=ApplyStd(norm, AllTrue(norm), 100, 100)
	if CountAccepted(accepted)!=16 {
		t.Errorf("accepted=%d; want 16", CountAccepted(accepted))
	}

	// stdMin=0 puts the low bound at the mean, which all regular values lie below
	accepted=ApplyStd(norm, AllTrue(norm), 0, 100)
	if CountAccepted(accepted)!=1 || !accepted[3][3] {
		t.Errorf("accepted=%v; want only the outlier", accepted)
	}
}

type startStopTestCase struct {
	DropFirst int
	DropLast  int
	Want      []bool
}

func TestApplyStartStop(t *testing.T) {
	tcs:=[]startStopTestCase{
		{0, 0,   []bool{true, true, true, true}},
		{1, 0,   []bool{false, true, true, true}},
		{0, 2,   []bool{true, true, false, false}},
		{1, 1,   []bool{false, true, true, false}},
		{3, 3,   []bool{false, false, false, false}},
		{10, 0,  []bool{false, false, false, false}},
		{0, 10,  []bool{false, false, false, false}},
	}
	for _, tc:=range tcs {
		accepted:=[][]bool{{true, true, true, true}, {true, true, true, true}, {}}
		got:=ApplyStartStop(accepted, tc.DropFirst, tc.DropLast)
		for c:=0; c<2; c++ {
			if !reflect.DeepEqual(got[c], tc.Want) {
				t.Errorf("first=%d last=%d cycle %d=%v; want %v", tc.DropFirst, tc.DropLast, c, got[c], tc.Want)
			}
		}
		again:=ApplyStartStop(Reset(got), tc.DropFirst, tc.DropLast)
		if !reflect.DeepEqual(again[0], tc.Want) {
			t.Errorf("first=%d last=%d not idempotent: %v", tc.DropFirst, tc.DropLast, again[0])
		}
	}
}

// Std bounds depend only on the flattened pool, not on how it is grouped into cycles
func TestStdIndependentOfChunking(t *testing.T) {
	rng:=fastrand.RNG{}
	flat:=make([]float64, 60)
	for i:=range flat {
		flat[i]=float64(rng.Uint32n(1000))
	}
	flat[17]=1e7

	var want []bool
	for _, chunks:=range [][]int{{60}, {30, 30}, {20, 20, 20}, {7, 13, 40}, {1, 1, 58}} {
		norm:=make([][]float64, len(chunks))
		o:=0
		for c, n:=range chunks {
			norm[c]=flat[o:o+n]
			o+=n
		}
		var got []bool
		for _, cycle:=range ApplyStd(norm, AllTrue(norm), 1.5, 1.5) {
			got=append(got, cycle...)
		}
		if want==nil {
			want=got
			if want[17] { t.Errorf("outlier accepted") }
		} else if !reflect.DeepEqual(got, want) {
			t.Errorf("chunks=%v mask differs from single cycle", chunks)
		}
	}
}

func TestMerge(t *testing.T) {
	a:=[][]bool{{true, false, true}, {true, true}}
	b:=[][]bool{{true, true, false}, {false, true}}
	want:=[][]bool{{true, false, false}, {false, true}}
	ma, mb:=Merge(a, b)
	if !reflect.DeepEqual(ma, want) || !reflect.DeepEqual(mb, want) {
		t.Errorf("merge=%v %v; want %v", ma, mb, want)
	}
	ma2, mb2:=Merge(ma, mb)
	if !reflect.DeepEqual(ma2, want) || !reflect.DeepEqual(mb2, want) {
		t.Errorf("merge not idempotent: %v %v", ma2, mb2)
	}
	ma[0][0]=false
	if !mb[0][0] {
		t.Errorf("merged masks share storage")
	}
}

func TestRecomputeDoesNotAccumulate(t *testing.T) {
	norm:=[][]float64{{1, 2, 3, 4, 5}}
	op:=NewOpBounds(2, 0, 4, 4)
	accepted:=op.Recompute(norm, AllTrue(norm))
	op.DropFirst=0
	accepted=op.Recompute(norm, accepted)
	if CountAccepted(accepted)!=5 {
		t.Errorf("accepted=%v; want all after relaxing bounds", accepted)
	}
}

func TestEmptyPool(t *testing.T) {
	if _, ok:=NewWindow(nil, 4, 4); ok {
		t.Errorf("window over empty pool")
	}
	if got:=ApplyStd([][]float64{{}}, [][]bool{{}}, 4, 4); len(got[0])!=0 {
		t.Errorf("got %v", got)
	}
}
