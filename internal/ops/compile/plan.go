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
	"gonum.org/v1/gonum/floats"
	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
)

// The accepted images of one scope, with their normalization baselines. 
// Each composite is rot(plus)-rot(minus), rescaled by Average/Baselines[j]
type Plan struct {
	Kind          imageset.Kind
	Cycle         int        // -1 for all cycles
	Indices       []int      // flat image indices
	Plus          []string   // per index, empty if absent
	Minus         []string   // per index, empty if absent
	PlusRotation  int
	MinusRotation int
	Baselines     []float64
	Average       float64
}

// Builds the plan for the given kind and cycle (-1 for all cycles). 
// For Total, an index is included if it is accepted in every populated set, and its
// baseline is 1 + additive norm - subtractive norm with absent sets contributing zero.
// For a single set, the baseline is the set's own normalization value
func NewPlan(s *imageset.Session, kind imageset.Kind, cycle int) Plan {
	p:=Plan{Kind: kind, Cycle: cycle}
	switch kind {
	case imageset.Additive, imageset.Subtractive:
		set:=s.Set(kind)
		p.PlusRotation=s.Rotation(kind)
		p.collect(set.Accepted, cycle, func(c, i int) {
			p.Plus =append(p.Plus, set.Names[c][i])
			p.Minus=append(p.Minus, "")
			p.Baselines=append(p.Baselines, set.Normalization[c][i])
		})
	case imageset.Total:
		add, sub:=&s.Additive, &s.Subtractive
		p.PlusRotation, p.MinusRotation=s.AddRotation, s.SubRotation
		p.collect(s.TotalAccepted(), cycle, func(c, i int) {
			baseline:=float64(1)
			plus, minus:="", ""
			if !add.IsEmpty() { 
				plus=add.Names[c][i]
				baseline+=add.Normalization[c][i] 
			}
			if !sub.IsEmpty() { 
				minus=sub.Names[c][i]
				baseline-=sub.Normalization[c][i] 
			}
			p.Plus, p.Minus=append(p.Plus, plus), append(p.Minus, minus)
			p.Baselines=append(p.Baselines, baseline)
		})
	}
	if len(p.Baselines)>0 {
		p.Average=floats.Sum(p.Baselines)/float64(len(p.Baselines))
	}
	return p
}

// Calls add for every accepted image in the given cycle, or in all cycles if cycle<0
func (p *Plan) collect(accepted [][]bool, cycle int, add func(c, i int)) {
	flat:=0
	for c, cyc:=range accepted {
		for i, a:=range cyc {
			if a && (cycle<0 || cycle==c) {
				p.Indices=append(p.Indices, flat)
				add(c, i)
			}
			flat++
		}
	}
}

func (p *Plan) Len() int { return len(p.Indices) }

// Loads and combines the j-th composite of the plan
func (p *Plan) Composite(j int, c *ops.Context) (*frame.Image, error) {
	var f *frame.Image
	if p.Plus[j]!="" {
		plus, err:=c.Store.Load(p.Plus[j], p.Indices[j], c.Log)
		if err!=nil { return nil, err }
		f=plus.Rot90(p.PlusRotation)
	}
	if p.Minus[j]!="" {
		minus, err:=c.Store.Load(p.Minus[j], p.Indices[j], c.Log)
		if err!=nil { return nil, err }
		minus=minus.Rot90(p.MinusRotation)
		if f==nil {
			f=frame.NewImageFromImage(minus) // absent plus side contributes zero
		}
		if err:=f.Subtract(minus); err!=nil { return nil, err }
	}
	if f==nil { return nil, fmt.Errorf("%d: no images for index", p.Indices[j]) }
	f.Scale(float32(p.Average/p.Baselines[j]))
	return f, nil
}

// Loads the session's correction image rotated by its own steps, or returns nil if none is set
func LoadCorrection(s *imageset.Session, c *ops.Context) (*frame.Image, error) {
	if s.Correction=="" { return nil, nil }
	f, err:=c.Store.Load(s.Correction, -1, c.Log)
	if err!=nil { return nil, err }
	return f.Rot90(s.CorrRotation), nil
}
