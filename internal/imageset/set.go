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
	"strings"
)

// The kind of an image set, or of a selected view
type Kind int
const (
	Additive Kind = iota
	Subtractive
	Total      // derived view: additive minus subtractive
	Correction // the multiplicative correction image
)

var kindNames=[]string{"additive", "subtractive", "total", "correction"}

func (k Kind) String() string {
	if k<0 || int(k)>=len(kindNames) { return fmt.Sprintf("Kind(%d)", int(k)) }
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	l:=strings.ToLower(s)
	for i, n:=range kindNames {
		if l==n || (len(l)>0 && l==n[:3]) { return Kind(i), nil }
	}
	return 0, fmt.Errorf("unknown kind '%s'", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err=ParseKind(string(b))
	return err
}

// Returns the other one of the two loadable sets
func (k Kind) Sibling() Kind {
	switch k {
	case Additive:    return Subtractive
	case Subtractive: return Additive
	}
	return k
}

// Per-set state. Names, Accepted and Normalization always share the same [cycle][item] shape
type Set struct {
	Names         [][]string   `json:"names"`
	Accepted      [][]bool     `json:"accepted"`
	Normalization [][]float64  `json:"normalization"`
}

// Total number of images over all cycles
func (s *Set) Len() int {
	n:=0
	for _, cycle:=range s.Names {
		n+=len(cycle)
	}
	return n
}

func (s *Set) IsEmpty() bool { return s.Len()==0 }

func (s *Set) Clear() { *s=Set{} }

// Regroups names, mask and normalization values into the given number of cycles.
// The mask is reset to all true; callers must recompute bounds afterwards
func (s *Set) Reshape(cycles int) {
	if s.IsEmpty() { return }
	s.Names        =Split(Flatten(s.Names), cycles)
	s.Normalization=Split(Flatten(s.Normalization), cycles)
	s.Accepted     =Split(make([]bool, s.Len()), cycles)
	for _, cycle:=range s.Accepted {
		for i:=range cycle {
			cycle[i]=true
		}
	}
}

// Deep copy of the set
func (s *Set) Clone() Set {
	return Set{
		Names:         Split(Flatten(s.Names), len(s.Names)),
		Accepted:      Split(Flatten(s.Accepted), len(s.Accepted)),
		Normalization: Split(Flatten(s.Normalization), len(s.Normalization)),
	}
}

// Lengths of the cycles
func (s *Set) CycleLengths() []int {
	lens:=make([]int, len(s.Names))
	for c, cycle:=range s.Names {
		lens[c]=len(cycle)
	}
	return lens
}

// Flat index of the first image of every cycle
func CycleStarts(lens []int) []int {
	starts:=make([]int, len(lens))
	o:=0
	for c, n:=range lens {
		starts[c]=o
		o+=n
	}
	return starts
}

// Splits a flat slice into n contiguous chunks of nearly equal length. The first len%n chunks
// hold one extra element. Always returns n chunks, some possibly empty. n<1 is treated as 1
func Split[T any](flat []T, n int) [][]T {
	if n<1 { n=1 }
	chunks:=make([][]T, n)
	size, extra:=len(flat)/n, len(flat)%n
	o:=0
	for c:=range chunks {
		l:=size
		if c<extra { l++ }
		chunks[c]=append([]T(nil), flat[o:o+l]...)
		o+=l
	}
	return chunks
}

// Concatenates all cycles into a fresh flat slice
func Flatten[T any](cycles [][]T) []T {
	n:=0
	for _, cycle:=range cycles {
		n+=len(cycle)
	}
	flat:=make([]T, 0, n)
	for _, cycle:=range cycles {
		flat=append(flat, cycle...)
	}
	return flat
}
