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
	"runtime"
)


// A pixel function. Operates in-place on dst, reading the matching range of src if given.
// For parallelization across CPUs.
type PixelFunction func(dst, src []float32, params interface{})

// Apply given pixel function to the image, with an optional second image of identical size
// as source. Splits into 8*NumCPU() work packages and limits parallelism to NumCPU(). Operates in-place.
func (f *Image) ApplyPixelFunction(pf PixelFunction, src *Image, args interface{}) {
	data:=f.Data
	numBatches:=8*runtime.NumCPU()
	batchSize :=(len(data)+numBatches-1)/(numBatches)
	if batchSize<1 { batchSize=1 }
	sem       :=make(chan bool, runtime.NumCPU())
	for lower:=0; lower<len(data); lower+=batchSize {
		upper:=lower+batchSize
		if upper>len(data) { upper=len(data) }

		var s []float32
		if src!=nil { s=src.Data[lower:upper] }

		sem <- true 
		go func(d, s []float32) {
			pf(d, s, args)
			<-sem
		}(data[lower:upper], s)
	}

	for i:=0; i<cap(sem); i++ {  // wait for goroutines to finish
		sem <- true
	}
}

func pfScale(dst, src []float32, params interface{}) {
	s:=params.(float32)
	for i:=range dst {
		dst[i]*=s
	}
}

// Multiply all pixels with the given factor. Operates in-place
func (f *Image) Scale(s float32) {
	f.ApplyPixelFunction(pfScale, nil, s)
}

func pfSubtract(dst, src []float32, params interface{}) {
	for i, s:=range src {
		dst[i]-=s
	}
}

// Subtract the given image pixel by pixel. Operates in-place
func (f *Image) Subtract(o *Image) error {
	if err:=f.checkDims(o, "subtract"); err!=nil { return err }
	f.ApplyPixelFunction(pfSubtract, o, nil)
	return nil
}

func pfAdd(dst, src []float32, params interface{}) {
	for i, s:=range src {
		dst[i]+=s
	}
}

// Add the given image pixel by pixel. Operates in-place
func (f *Image) Add(o *Image) error {
	if err:=f.checkDims(o, "add"); err!=nil { return err }
	f.ApplyPixelFunction(pfAdd, o, nil)
	return nil
}

func pfDivide(dst, src []float32, params interface{}) {
	for i, s:=range src {
		dst[i]/=s
	}
}

// Divide by the given image pixel by pixel. Zero divisors yield Inf or NaN. Operates in-place
func (f *Image) Divide(o *Image) error {
	if err:=f.checkDims(o, "divide"); err!=nil { return err }
	f.ApplyPixelFunction(pfDivide, o, nil)
	return nil
}

// Returns the image rotated clockwise by steps*90 degrees. Negative steps rotate counterclockwise.
// Returns f itself if no rotation is needed
func (f *Image) Rot90(steps int) *Image {
	steps=((steps%4)+4)%4
	if steps==0 { return f }

	width, height:=f.Width(), f.Height()
	var naxisn []int32
	if steps==2 {
		naxisn=[]int32{int32(width), int32(height)}
	} else {
		naxisn=[]int32{int32(height), int32(width)}
	}
	r:=NewImageFromNaxisn(naxisn, nil)
	r.ID, r.FileName=f.ID, f.FileName

	switch steps {
	case 1:
		// clockwise: new row y is old column y read bottom up
		for y:=0; y<width; y++ {
			row:=r.Data[y*height:(y+1)*height]
			for x:=range row {
				row[x]=f.Data[(height-1-x)*width+y]
			}
		}
	case 2:
		n:=len(f.Data)
		for i, d:=range f.Data {
			r.Data[n-1-i]=d
		}
	case 3:
		// counterclockwise: new row y is old column width-1-y read top down
		for y:=0; y<width; y++ {
			row:=r.Data[y*height:(y+1)*height]
			col:=width-1-y
			for x:=range row {
				row[x]=f.Data[x*width+col]
			}
		}
	}
	return r
}

// Returns the number of rows or columns cropped from each edge of an axis
// of the given length: floor(frac*length)
func CropMargin(length int, frac float64) int {
	return int(float64(length)*frac)
}

// Sums the pixel intensities after cropping floor(frac*dim) rows and columns from each edge.
// Sums in float64
func (f *Image) CroppedSum(frac float64) float64 {
	width, height:=f.Width(), f.Height()
	mx, my:=CropMargin(width, frac), CropMargin(height, frac)
	sum:=float64(0)
	for y:=my; y<height-my; y++ {
		row:=f.Data[y*width+mx : y*width+width-mx]
		for _, d:=range row {
			sum+=float64(d)
		}
	}
	return sum
}
