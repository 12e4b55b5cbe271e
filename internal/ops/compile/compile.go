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
	"fmt"
	"path/filepath"
	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
)

// Compiles the accepted images of a session into total, per-cycle or single outputs
type OpCompile struct {
	ops.OpBase
	OutDir   string  `json:"outDir"`
	Name     string  `json:"name"`
	Ext      string  `json:"ext"`    // output suffix, .tiff or .fits
}

func NewOpCompileDefault() *OpCompile { return NewOpCompile(".", "compiled", ".tiff") }

func NewOpCompile(outDir, name, ext string) *OpCompile {
	if ext=="" { ext=".tiff" }
	return &OpCompile{
		OpBase : ops.OpBase{Type: "compile", Active: true},
		OutDir : outDir,
		Name   : name,
		Ext    : ext,
	}
}

// Output file name for the given suffix, e.g. _Cycle_2
func (op *OpCompile) FileName(suffix string) string {
	return filepath.Join(op.OutDir, op.Name+suffix+op.Ext)
}

// Compiles all accepted images into one composite, divided by the correction image if set.
// Writes <name><ext>, or with includeSingles each per-image composite as <name>_Item_<i><ext>
// instead, where i counts accepted images. Returns the composite, or nil if there is nothing 
// to compile. Files written before a failure are kept
func (op *OpCompile) Total(s *imageset.Session, includeSingles bool, c *ops.Context) (*frame.Image, error) {
	p:=NewPlan(s, imageset.Total, -1)
	if p.Len()==0 {
		fmt.Fprintf(c.Log, "Nothing to compile\n")
		return nil, nil
	}
	corr, err:=LoadCorrection(s, c)
	if err!=nil { return nil, err }

	fmt.Fprintf(c.Log, "Compiling %d accepted images, average baseline %.6g\n", p.Len(), p.Average)
	c.ProgressMax(p.Len())
	var single func(j int, f *frame.Image) error
	if includeSingles {
		single=func(j int, f *frame.Image) error {
			return c.Store.Save(op.FileName(fmt.Sprintf("_Item_%d", j)), f, c.Log)
		}
	}
	f, err:=op.Reduce(p, corr, single, c)
	if err!=nil { return nil, err }

	if !includeSingles {
		if err:=c.Store.Save(op.FileName(""), f, c.Log); err!=nil { return nil, err }
	}
	return f, nil
}

// Compiles every cycle separately with its own baseline average, and writes <name>_Cycle_<k><ext>.
// Cycles without accepted images yield a nil entry and no file
func (op *OpCompile) PerCycle(s *imageset.Session, c *ops.Context) ([]*frame.Image, error) {
	if s.IsEmpty() {
		fmt.Fprintf(c.Log, "Nothing to compile\n")
		return nil, nil
	}
	corr, err:=LoadCorrection(s, c)
	if err!=nil { return nil, err }

	plans:=make([]Plan, s.Cycles)
	total:=0
	for k:=range plans {
		plans[k]=NewPlan(s, imageset.Total, k)
		total+=plans[k].Len()
	}
	c.ProgressMax(total)

	outs:=make([]*frame.Image, len(plans))
	for k, p:=range plans {
		if p.Len()==0 {
			fmt.Fprintf(c.Log, "Cycle %d: no accepted images, skipping\n", k)
			continue
		}
		fmt.Fprintf(c.Log, "Cycle %d: compiling %d accepted images, average baseline %.6g\n", k, p.Len(), p.Average)
		f, err:=op.Reduce(p, corr, nil, c)
		if err!=nil { return nil, err }
		if err:=c.Store.Save(op.FileName(fmt.Sprintf("_Cycle_%d", k)), f, c.Log); err!=nil { return nil, err }
		outs[k]=f
	}
	return outs, nil
}

// Sums all composites of the plan in parallel and divides the sum by the correction image, if any.
// If single is given, it receives every composite after division by the correction, together 
// with its position in the plan. Advances the context's progress once per composite
func (op *OpCompile) Reduce(p Plan, corr *frame.Image, single func(j int, f *frame.Image) error, c *ops.Context) (*frame.Image, error) {
	if p.Len()==0 { return nil, nil }
	threads:=c.MaxThreads
	if corr!=nil { 
		threads=c.Threads(int64(corr.Pixels), 4) 
	}

	var sum    []float64
	var naxisn []int32
	positions:=make([]int, p.Len())
	for j:=range positions {
		positions[j]=j
	}
	err:=ops.ParallelFold(positions, threads, func(i int, j int) (*frame.Image, error) {
		f, err:=p.Composite(j, c)
		if err!=nil { return nil, err }
		if single!=nil {
			s:=f.Clone()
			if corr!=nil {
				if err:=s.Divide(corr); err!=nil { return nil, err }
			}
			s.ID=j
			if err:=single(j, s); err!=nil { return nil, err }
		}
		return f, nil
	}, func(i int, f *frame.Image) error {
		defer c.ProgressAdvance()
		if sum==nil {
			sum=make([]float64, f.Pixels)
			naxisn=append([]int32(nil), f.Naxisn...)
		} else if len(f.Naxisn)!=2 || f.Naxisn[0]!=naxisn[0] || f.Naxisn[1]!=naxisn[1] {
			return fmt.Errorf("%d: %s pixel image %s does not match %dx%d pixels", 
				f.ID, f.DimensionsToString(), f.FileName, naxisn[0], naxisn[1])
		}
		for k, d:=range f.Data {
			sum[k]+=float64(d)
		}
		return nil
	})
	if err!=nil { return nil, err }

	out:=frame.NewImageFromNaxisn(naxisn, nil)
	out.ID=-1
	for k, d:=range sum {
		out.Data[k]=float32(d)
	}
	if corr!=nil {
		if err:=out.Divide(corr); err!=nil { return nil, err }
	}
	return out, nil
}
