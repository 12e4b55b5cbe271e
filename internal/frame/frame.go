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


package frame

import (
	"fmt"
	"strings"
)

// A single detector frame. Pixels are stored row by row as float32,
// most quickly varying dimension first (i.e. X,Y)
type Image struct {
	ID       int         // Sequential ID number, for log output. Counted upwards from 0 within a set. By convention, the correction image is -1
	FileName string      // Original file name, if any, for log output

	Naxisn []int32 		 // Axis dimensions, width first
	Pixels int32 		 // Number of pixels in the image. Product of Naxisn[]

	Data   []float32     // The image data
}

// Creates an image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels:=int32(1)
	for _,naxis:=range(naxisn) {
		numPixels*=naxis
	}
	if data==nil {
		data=make([]float32, numPixels)
	}
	return &Image{
		Naxisn:   append([]int32(nil), naxisn...), // clone slice
		Pixels:   numPixels,
		Data:     data,
	}
}

// Creates an image with the same metadata as the given image. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Naxisn:   append([]int32(nil), img.Naxisn...),
		Pixels:   img.Pixels,
		Data:     make([]float32, img.Pixels),
	}
}

// Deep copy of the image
func (f *Image) Clone() *Image {
	c:=NewImageFromImage(f)
	copy(c.Data, f.Data)
	return c
}

func (f *Image) Width() int  { return int(f.Naxisn[0]) }
func (f *Image) Height() int { return int(f.Naxisn[1]) }

// Returns true if both images have identical dimensions
func (f *Image) SameDims(o *Image) bool {
	if len(f.Naxisn)!=len(o.Naxisn) { return false }
	for i:=range f.Naxisn {
		if f.Naxisn[i]!=o.Naxisn[i] { return false }
	}
	return true
}

func (f *Image) DimensionsToString() string {
	b:=strings.Builder{}
	for i,naxis:=range(f.Naxisn) {
		if i>0 { 
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	} 
	return b.String()
}

func (f *Image) checkDims(o *Image, op string) error {
	if !f.SameDims(o) {
		return fmt.Errorf("%d: cannot %s %s pixel image %s with %s pixel image %s", 
			f.ID, op, f.DimensionsToString(), f.FileName, o.DimensionsToString(), o.FileName)
	}
	return nil
}
