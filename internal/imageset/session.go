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
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/bounds"
	"github.com/mlnoga/xrdstack/internal/ops/norm"
)

// Title and message of the notification sent on mismatching image counts
const (
	MismatchTitle   = "Incorrect Number of Imports"
	MismatchMessage = "The number of imports must be the same for both additive and subtractive images!"
)

// The image sets of one compilation session, with their bound configurations, 
// rotations and the optional multiplicative correction. Source of truth for all
// names, masks and normalization values
type Session struct {
	Cycles        int               `json:"cycles"`
	Additive      Set               `json:"additive"`
	Subtractive   Set               `json:"subtractive"`
	AddBounds    *bounds.OpBounds   `json:"addBounds"`
	SubBounds    *bounds.OpBounds   `json:"subBounds"`
	AddRotation   int               `json:"addRotation"`   // clockwise quarter turns
	SubRotation   int               `json:"subRotation"`
	Correction    string            `json:"correction"`    // file name, empty if absent
	CorrRotation  int               `json:"corrRotation"`
	Normalize    *norm.OpNormalize  `json:"normalize"`
}

func NewSession(cycles int) *Session {
	if cycles<1 { cycles=1 }
	return &Session{
		Cycles    : cycles,
		AddBounds : bounds.NewOpBoundsDefault(),
		SubBounds : bounds.NewOpBoundsDefault(),
		Normalize : norm.NewOpNormalizeDefault(),
	}
}

// Returns the set of the given kind, or nil for derived kinds
func (s *Session) Set(kind Kind) *Set {
	switch kind {
	case Additive:    return &s.Additive
	case Subtractive: return &s.Subtractive
	}
	return nil
}

// Returns the bound configuration of the given kind, or nil for derived kinds
func (s *Session) Bounds(kind Kind) *bounds.OpBounds {
	switch kind {
	case Additive:    return s.AddBounds
	case Subtractive: return s.SubBounds
	}
	return nil
}

// Returns the rotation in clockwise quarter turns for the given kind
func (s *Session) Rotation(kind Kind) int {
	switch kind {
	case Additive:    return s.AddRotation
	case Subtractive: return s.SubRotation
	case Correction:  return s.CorrRotation
	}
	return 0
}

func (s *Session) SetRotation(kind Kind, steps int) {
	steps=((steps%4)+4)%4
	switch kind {
	case Additive:    s.AddRotation=steps
	case Subtractive: s.SubRotation=steps
	case Correction:  s.CorrRotation=steps
	}
}

// True if neither set holds any images
func (s *Session) IsEmpty() bool { return s.Additive.IsEmpty() && s.Subtractive.IsEmpty() }

// Loads the given paths into the set of the given kind, replacing its contents. 
// Fails with ops.ErrInputMismatch if the sibling set is populated with a different count,
// in which case the set is left empty and a notification is sent. A normalization failure
// leaves the set empty too. An empty path list is a no-op
func (s *Session) Load(kind Kind, paths []string, c *ops.Context) error {
	set:=s.Set(kind)
	if set==nil { return fmt.Errorf("cannot load images into the %s view", kind) }
	if len(paths)==0 { return nil }

	set.Clear()
	if sib:=s.Set(kind.Sibling()); !sib.IsEmpty() && sib.Len()!=len(paths) {
		c.Notify(MismatchTitle, MismatchMessage)
		s.UpdateBounds()
		return fmt.Errorf("%d %s images against %d %s images: %w", len(paths), kind, sib.Len(), kind.Sibling(), ops.ErrInputMismatch)
	}

	normalize:=s.Normalize
	if normalize==nil { normalize=norm.NewOpNormalizeDefault() }
	norms, err:=normalize.Apply(paths, c)
	if err!=nil { 
		s.UpdateBounds()
		return err 
	}

	set.Names        =Split(paths, s.Cycles)
	set.Normalization=Split(norms, s.Cycles)
	set.Accepted     =bounds.AllTrue(set.Names)
	s.UpdateBounds()

	fmt.Fprintf(c.Log, "Loaded %d %s images in %d cycles, %d accepted\n", len(paths), kind, s.Cycles, bounds.CountAccepted(set.Accepted))
	return nil
}

// Clears the set of the given kind and recomputes the bounds of the remaining set
func (s *Session) Unload(kind Kind) {
	if set:=s.Set(kind); set!=nil {
		set.Clear()
	} else if kind==Correction {
		s.ClearCorrection()
		return
	}
	s.UpdateBounds()
}

// Regroups both sets into the given number of cycles and recomputes bounds
func (s *Session) SetCycles(cycles int) error {
	if cycles<1 { return fmt.Errorf("cycle count must be at least 1, got %d", cycles) }
	s.Cycles=cycles
	s.Additive.Reshape(cycles)
	s.Subtractive.Reshape(cycles)
	s.UpdateBounds()
	return nil
}

// Replaces the bound configuration for the given kind and recomputes bounds. 
// For Total, the configuration is applied to both sets
func (s *Session) SetBounds(kind Kind, op *bounds.OpBounds) error {
	switch kind {
	case Additive:    
		s.AddBounds=op
	case Subtractive: 
		s.SubBounds=op
	case Total:
		a, b:=*op, *op
		s.AddBounds, s.SubBounds=&a, &b
	default:
		return fmt.Errorf("no bounds for the %s view", kind)
	}
	s.UpdateBounds()
	return nil
}

// Exchanges additive and subtractive sets, their standard deviation bounds and their rotations.
// Masks are kept as they are
func (s *Session) Swap() {
	s.ensureBounds()
	s.Additive, s.Subtractive=s.Subtractive, s.Additive
	s.AddBounds.StdMin, s.SubBounds.StdMin=s.SubBounds.StdMin, s.AddBounds.StdMin
	s.AddBounds.StdMax, s.SubBounds.StdMax=s.SubBounds.StdMax, s.AddBounds.StdMax
	s.AddRotation, s.SubRotation=s.SubRotation, s.AddRotation
}

// Recomputes the acceptance masks of all populated sets from scratch, then merges them
// if both are populated
func (s *Session) UpdateBounds() {
	s.ensureBounds()
	if !s.Additive.IsEmpty() {
		s.Additive.Accepted=s.AddBounds.Recompute(s.Additive.Normalization, s.Additive.Accepted)
	}
	if !s.Subtractive.IsEmpty() {
		s.Subtractive.Accepted=s.SubBounds.Recompute(s.Subtractive.Normalization, s.Subtractive.Accepted)
	}
	if !s.Additive.IsEmpty() && !s.Subtractive.IsEmpty() {
		s.Additive.Accepted, s.Subtractive.Accepted=bounds.Merge(s.Additive.Accepted, s.Subtractive.Accepted)
	}
}

// Sets the multiplicative correction image, after checking that it loads
func (s *Session) SetCorrection(fileName string, rotation int, c *ops.Context) error {
	f, err:=c.Store.Load(fileName, -1, c.Log)
	if err!=nil { return err }
	fmt.Fprintf(c.Log, "%d: Using %s pixel correction image %s\n", f.ID, f.DimensionsToString(), fileName)
	s.Correction=fileName
	s.SetRotation(Correction, rotation)
	return nil
}

func (s *Session) ClearCorrection() {
	s.Correction, s.CorrRotation="", 0
}

// Returns the images for the derived total view, named Image_<i> and grouped by cycle.
// Empty if both sets are empty
func (s *Session) TotalNames() [][]string {
	ref:=s.reference()
	if ref==nil { return nil }
	names:=make([]string, ref.Len())
	for i:=range names {
		names[i]=fmt.Sprintf("Image_%d", i)
	}
	return Split(names, len(ref.Names))
}

// Returns the mask of the derived total view: images accepted in every populated set
func (s *Session) TotalAccepted() [][]bool {
	switch {
	case s.Additive.IsEmpty() && s.Subtractive.IsEmpty(): 
		return nil
	case s.Subtractive.IsEmpty():
		return Split(Flatten(s.Additive.Accepted), len(s.Additive.Accepted))
	case s.Additive.IsEmpty():
		return Split(Flatten(s.Subtractive.Accepted), len(s.Subtractive.Accepted))
	}
	a, _:=bounds.Merge(s.Additive.Accepted, s.Subtractive.Accepted)
	return a
}

func (s *Session) ensureBounds() {
	if s.AddBounds==nil { s.AddBounds=bounds.NewOpBoundsDefault() }
	if s.SubBounds==nil { s.SubBounds=bounds.NewOpBoundsDefault() }
}

// The populated set that determines the shape of the total view, or nil
func (s *Session) reference() *Set {
	if !s.Additive.IsEmpty() { return &s.Additive }
	if !s.Subtractive.IsEmpty() { return &s.Subtractive }
	return nil
}
