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

package compile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
)

// Puts constant images of the given size into the store. Normalization is width*height*value
func putImages(store *frame.MemStore, prefix string, width, height int, values ...float32) []string {
	paths:=make([]string, len(values))
	for i, v:=range values {
		f:=frame.NewImageFromNaxisn([]int32{int32(width), int32(height)}, nil)
		for j:=range f.Data {
			f.Data[j]=v
		}
		paths[i]=fmt.Sprintf("%s%03d.tiff", prefix, i)
		store.Put(paths[i], f)
	}
	return paths
}

func newTestContext(store frame.Store) *ops.Context {
	return &ops.Context{Log: io.Discard, Store: store, MaxThreads: 4}
}

func near(a, b float64) bool {
	return math.Abs(a-b)<=1e-5*math.Max(1, math.Abs(b))
}

// Expected pixel value of a compilation over constant images
func expected(add, sub []float64, pixels float64) float64 {
	baselines:=make([]float64, len(add))
	avg:=0.0
	for i:=range add {
		baselines[i]=1+pixels*add[i]
		if sub!=nil { baselines[i]-=pixels*sub[i] }
		avg+=baselines[i]
	}
	avg/=float64(len(add))
	sum:=0.0
	for i:=range add {
		d:=add[i]
		if sub!=nil { d-=sub[i] }
		sum+=d/baselines[i]*avg
	}
	return sum
}

func TestSelfSubtractionIsZero(t *testing.T) {
	store:=frame.NewMemStore()
	paths:=putImages(store, "img", 10, 10, 3, 5, 7, 11)
	c:=newTestContext(store)
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, paths, c); err!=nil { t.Fatal(err) }
	if err:=s.Load(imageset.Subtractive, paths, c); err!=nil { t.Fatal(err) }

	op:=NewOpCompile("out", "self", ".tiff")
	f, err:=op.Total(s, false, c)
	if err!=nil { t.Fatal(err) }
	for i, d:=range f.Data {
		if d!=0 {
			t.Fatalf("data[%d]=%f; want 0", i, d)
		}
	}
	if _, ok:=store.Get(filepath.Join("out", "self.tiff")); !ok {
		t.Errorf("total not written")
	}
}

func TestTotalValues(t *testing.T) {
	store:=frame.NewMemStore()
	addV:=[]float64{10, 12, 9, 11, 10}
	subV:=[]float64{1, 2, 1, 3, 2}
	add:=putImages(store, "add", 4, 4, float32(addV[0]), float32(addV[1]), float32(addV[2]), float32(addV[3]), float32(addV[4]))
	sub:=putImages(store, "sub", 4, 4, float32(subV[0]), float32(subV[1]), float32(subV[2]), float32(subV[3]), float32(subV[4]))
	c:=newTestContext(store)
	progress:=ops.NewLogProgress(io.Discard)
	c.Progress=progress
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, add, c); err!=nil { t.Fatal(err) }
	if err:=s.Load(imageset.Subtractive, sub, c); err!=nil { t.Fatal(err) }

	f, err:=NewOpCompile("", "total", ".tiff").Total(s, false, c)
	if err!=nil { t.Fatal(err) }
	want:=expected(addV, subV, 16)
	for i, d:=range f.Data {
		if !near(float64(d), want) {
			t.Fatalf("data[%d]=%f; want %f", i, d, want)
		}
	}
	if done, max:=progress.Done(); done!=5 || max!=5 {
		t.Errorf("progress=%d/%d; want 5/5", done, max)
	}
}

func TestPerCycle(t *testing.T) {
	store:=frame.NewMemStore()
	values:=[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	fv:=make([]float32, len(values))
	for i, v:=range values {
		fv[i]=float32(v)
	}
	paths:=putImages(store, "add", 5, 5, fv...)
	c:=newTestContext(store)
	s:=imageset.NewSession(3)
	if err:=s.Load(imageset.Additive, paths, c); err!=nil { t.Fatal(err) }

	op:=NewOpCompile("out", "run", ".tiff")
	outs, err:=op.PerCycle(s, c)
	if err!=nil { t.Fatal(err) }
	if len(outs)!=3 {
		t.Fatalf("outputs=%d; want 3", len(outs))
	}
	for k, f:=range outs {
		want:=expected(values[3*k:3*k+3], nil, 25)
		if !near(float64(f.Data[0]), want) {
			t.Errorf("cycle %d=%f; want %f", k, f.Data[0], want)
		}
		if _, ok:=store.Get(filepath.Join("out", fmt.Sprintf("run_Cycle_%d.tiff", k))); !ok {
			t.Errorf("cycle %d not written", k)
		}
	}

	// rejecting an image in cycle 0 leaves the other cycles untouched
	s.Additive.Accepted[0][1]=false
	outs2, err:=op.PerCycle(s, c)
	if err!=nil { t.Fatal(err) }
	if want:=expected([]float64{1, 3}, nil, 25); !near(float64(outs2[0].Data[0]), want) {
		t.Errorf("cycle 0=%f; want %f", outs2[0].Data[0], want)
	}
	for k:=1; k<3; k++ {
		if !near(float64(outs2[k].Data[0]), float64(outs[k].Data[0])) {
			t.Errorf("cycle %d changed from %f to %f", k, outs[k].Data[0], outs2[k].Data[0])
		}
	}

	// a cycle without accepted images yields no output
	s.Additive.Accepted[2]=[]bool{false, false, false}
	outs3, err:=op.PerCycle(s, c)
	if err!=nil { t.Fatal(err) }
	if outs3[2]!=nil || outs3[1]==nil {
		t.Errorf("outputs=%v; want cycle 2 skipped", outs3)
	}
}

func TestRotationAndCorrection(t *testing.T) {
	store:=frame.NewMemStore()
	// 3 wide, 2 high, with distinct pixels
	img:=frame.NewImageFromNaxisn([]int32{3, 2}, []float32{1, 2, 3, 4, 5, 6})
	store.Put("a.tiff", img)
	corr:=frame.NewImageFromNaxisn([]int32{3, 2}, []float32{1, 1, 1, 2, 2, 2})
	store.Put("flat.tiff", corr)

	c:=newTestContext(store)
	s:=imageset.NewSession(1)
	s.SetRotation(imageset.Additive, 1)
	if err:=s.Load(imageset.Additive, []string{"a.tiff"}, c); err!=nil { t.Fatal(err) }
	if err:=s.SetCorrection("flat.tiff", 1, c); err!=nil { t.Fatal(err) }

	f, err:=NewOpCompile("", "rot", ".tiff").Total(s, false, c)
	if err!=nil { t.Fatal(err) }
	if f.Width()!=2 || f.Height()!=3 {
		t.Fatalf("naxisn=%v; want [2 3]", f.Naxisn)
	}
	// one image: average equals its baseline, so only rotation and correction remain.
	// clockwise image is 4 1 / 5 2 / 6 3, clockwise correction is 2 1 / 2 1 / 2 1
	want:=[]float32{2, 1, 2.5, 2, 3, 3}
	for i:=range want {
		if !near(float64(f.Data[i]), float64(want[i])) {
			t.Errorf("data=%v; want %v", f.Data, want)
			break
		}
	}

	s.CorrRotation=0
	if _, err:=NewOpCompile("", "rot", ".tiff").Total(s, false, c); err==nil {
		t.Errorf("mismatching correction accepted")
	}
}

func TestSingles(t *testing.T) {
	store:=frame.NewMemStore()
	paths:=putImages(store, "add", 4, 4, 1, 2, 3, 4)
	c:=newTestContext(store)
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, paths, c); err!=nil { t.Fatal(err) }
	s.Additive.Accepted[0][1]=false

	op:=NewOpCompile("out", "s", ".tiff")
	if _, err:=op.Total(s, true, c); err!=nil { t.Fatal(err) }
	for j, v:=range []float64{1, 3, 4} {
		f, ok:=store.Get(filepath.Join("out", fmt.Sprintf("s_Item_%d.tiff", j)))
		if !ok {
			t.Errorf("item %d not written", j)
			continue
		}
		avg:=(3+16*(1+3+4))/3.0
		if want:=v/(1+16*v)*avg; !near(float64(f.Data[0]), want) {
			t.Errorf("item %d=%f; want %f", j, f.Data[0], want)
		}
	}
	if _, ok:=store.Get(filepath.Join("out", "s_Item_3.tiff")); ok {
		t.Errorf("rejected image written")
	}
	if _, ok:=store.Get(filepath.Join("out", "s.tiff")); ok {
		t.Errorf("total written in singles mode")
	}
}

func TestLoadFailureAborts(t *testing.T) {
	store:=frame.NewMemStore()
	paths:=putImages(store, "add", 4, 4, 1, 2, 3, 4)
	c:=newTestContext(store)
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Additive, paths, c); err!=nil { t.Fatal(err) }
	s.Additive.Names[0][2]="gone.tiff"

	_, err:=NewOpCompile("out", "x", ".tiff").Total(s, false, c)
	var le *frame.LoadError
	if !errors.As(err, &le) || le.Path!="gone.tiff" {
		t.Errorf("err=%v; want load error for gone.tiff", err)
	}
	if _, ok:=store.Get(filepath.Join("out", "x.tiff")); ok {
		t.Errorf("output written despite failure")
	}
}

func TestEmptySessionIsNoop(t *testing.T) {
	store:=frame.NewMemStore()
	c:=newTestContext(store)
	s:=imageset.NewSession(2)
	op:=NewOpCompileDefault()
	if f, err:=op.Total(s, false, c); f!=nil || err!=nil {
		t.Errorf("total=%v err=%v; want nil nil", f, err)
	}
	if fs, err:=op.PerCycle(s, c); fs!=nil || err!=nil {
		t.Errorf("cycles=%v err=%v; want nil nil", fs, err)
	}
}

func TestPlanSubtractiveOnly(t *testing.T) {
	store:=frame.NewMemStore()
	paths:=putImages(store, "sub", 2, 2, 1, 3)
	c:=newTestContext(store)
	s:=imageset.NewSession(1)
	if err:=s.Load(imageset.Subtractive, paths, c); err!=nil { t.Fatal(err) }

	p:=NewPlan(s, imageset.Total, -1)
	if p.Baselines[0]!=1-4 || p.Baselines[1]!=1-12 || p.Plus[0]!="" {
		t.Errorf("plan=%+v", p)
	}
	f, err:=p.Composite(0, c)
	if err!=nil { t.Fatal(err) }
	// -1 / -3 * -7
	if !near(float64(f.Data[0]), -7.0/3) {
		t.Errorf("composite=%f; want %f", f.Data[0], -7.0/3)
	}

	ps:=NewPlan(s, imageset.Subtractive, -1)
	if ps.Baselines[1]!=12 || ps.Average!=8 || ps.Plus[1]!=paths[1] {
		t.Errorf("set plan=%+v", ps)
	}
}
