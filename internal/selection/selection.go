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


// Package selection maps list selections to image coordinates and derives the images to inspect.
package selection

import (
	"fmt"
	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/compile"
)

// What is currently being viewed
type Selection struct {
	Kind   imageset.Kind  `json:"kind"`
	Cycle  int            `json:"cycle"`
	Item   int            `json:"item"`   // -1 if the whole cycle is selected
}

// Maps a row in a two-level list to a selection. A negative parent row means a top-level 
// cycle row was selected, else row is the item within the parent cycle
func FromTree(kind imageset.Kind, parentRow, row int) Selection {
	if parentRow<0 {
		return Selection{Kind: kind, Cycle: row, Item: -1}
	}
	return Selection{Kind: kind, Cycle: parentRow, Item: row}
}

func (sel Selection) HasItem() bool { return sel.Item>=0 }

func (sel Selection) String() string {
	if !sel.HasItem() { return fmt.Sprintf("%s cycle %d", sel.Kind, sel.Cycle) }
	return fmt.Sprintf("%s cycle %d item %d", sel.Kind, sel.Cycle, sel.Item)
}

// Cycle lengths of the list the selection refers to
func cycleLengths(sel Selection, s *imageset.Session) []int {
	switch sel.Kind {
	case imageset.Additive, imageset.Subtractive:
		return s.Set(sel.Kind).CycleLengths()
	case imageset.Total:
		names:=s.TotalNames()
		lens:=make([]int, len(names))
		for c, cycle:=range names {
			lens[c]=len(cycle)
		}
		return lens
	}
	return nil
}

// Checks that the selection refers to an existing cycle and item
func (sel Selection) Validate(s *imageset.Session) error {
	if sel.Kind==imageset.Correction {
		if s.Correction=="" { return fmt.Errorf("no correction image set") }
		return nil
	}
	lens:=cycleLengths(sel, s)
	if sel.Cycle<0 || sel.Cycle>=len(lens) { 
		return fmt.Errorf("%v: cycle out of range [0,%d)", sel, len(lens)) 
	}
	if sel.HasItem() && sel.Item>=lens[sel.Cycle] {
		return fmt.Errorf("%v: item out of range [0,%d)", sel, lens[sel.Cycle])
	}
	return nil
}

// Flat image index of the selected item, summing the lengths of all preceding cycles.
// Returns false if no valid item is selected
func (sel Selection) TotalIndex(s *imageset.Session) (int, bool) {
	if !sel.HasItem() || sel.Validate(s)!=nil { return 0, false }
	return imageset.CycleStarts(cycleLengths(sel, s))[sel.Cycle]+sel.Item, true
}

// The selection after the additive and subtractive sets were swapped
func (sel Selection) Swapped() Selection {
	sel.Kind=sel.Kind.Sibling()
	return sel
}

// The sets whose bounds are recomputed when the bound configuration of the selected view changes
func (sel Selection) BoundsKinds(s *imageset.Session) []imageset.Kind {
	switch sel.Kind {
	case imageset.Additive, imageset.Subtractive:
		return []imageset.Kind{sel.Kind}
	case imageset.Total:
		var kinds []imageset.Kind
		for _, k:=range []imageset.Kind{imageset.Additive, imageset.Subtractive} {
			if !s.Set(k).IsEmpty() { kinds=append(kinds, k) }
		}
		return kinds
	}
	return nil
}

// Display name of the selection: the file name for set items, Image_<i> for total items
func (sel Selection) Name(s *imageset.Session) string {
	if sel.Kind==imageset.Correction { return s.Correction }
	if sel.Validate(s)!=nil || !sel.HasItem() { return sel.String() }
	switch sel.Kind {
	case imageset.Additive, imageset.Subtractive:
		return s.Set(sel.Kind).Names[sel.Cycle][sel.Item]
	}
	return s.TotalNames()[sel.Cycle][sel.Item]
}

// Derives the image for the selection. Set items are loaded and rotated. Total items are the 
// rotated additive minus the rotated subtractive image, divided by the correction image if set.
// The correction is loaded and rotated by its own steps. A selected cycle yields the compiled,
// normalized sum of its accepted images
func (sel Selection) Image(s *imageset.Session, c *ops.Context) (*frame.Image, error) {
	if err:=sel.Validate(s); err!=nil { return nil, err }
	if sel.Kind==imageset.Correction { return compile.LoadCorrection(s, c) }

	if !sel.HasItem() {
		var corr *frame.Image
		if sel.Kind==imageset.Total {
			var err error
			if corr, err=compile.LoadCorrection(s, c); err!=nil { return nil, err }
		}
		p:=compile.NewPlan(s, sel.Kind, sel.Cycle)
		if p.Len()==0 { return nil, fmt.Errorf("%v: no accepted images", sel) }
		c.ProgressMax(p.Len())
		return compile.NewOpCompileDefault().Reduce(p, corr, nil, c)
	}

	id, _:=sel.TotalIndex(s)
	switch sel.Kind {
	case imageset.Additive, imageset.Subtractive:
		f, err:=c.Store.Load(s.Set(sel.Kind).Names[sel.Cycle][sel.Item], id, c.Log)
		if err!=nil { return nil, err }
		return f.Rot90(s.Rotation(sel.Kind)), nil
	}

	var f *frame.Image
	if !s.Additive.IsEmpty() {
		add, err:=c.Store.Load(s.Additive.Names[sel.Cycle][sel.Item], id, c.Log)
		if err!=nil { return nil, err }
		f=add.Rot90(s.AddRotation)
	}
	if !s.Subtractive.IsEmpty() {
		sub, err:=c.Store.Load(s.Subtractive.Names[sel.Cycle][sel.Item], id, c.Log)
		if err!=nil { return nil, err }
		sub=sub.Rot90(s.SubRotation)
		if f==nil { f=frame.NewImageFromImage(sub) }
		if err:=f.Subtract(sub); err!=nil { return nil, err }
	}
	corr, err:=compile.LoadCorrection(s, c)
	if err!=nil { return nil, err }
	if corr!=nil {
		if err:=f.Divide(corr); err!=nil { return nil, err }
	}
	return f, nil
}
