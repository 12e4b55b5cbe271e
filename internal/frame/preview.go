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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// Color maps for previews
type Colormap int 
const (
	CmapGray Colormap = iota
	CmapHeat
	CmapViridis
)

var colormapStops=map[Colormap][]string{
	CmapGray:    {"#000000", "#ffffff"},
	CmapHeat:    {"#000000", "#800000", "#ff4000", "#ffd000", "#ffffff"},
	CmapViridis: {"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"},
}

func ParseColormap(s string) (Colormap, error) {
	switch strings.ToLower(s) {
	case "", "gray", "grey": return CmapGray, nil
	case "heat":            return CmapHeat, nil
	case "viridis":         return CmapViridis, nil
	}
	return CmapGray, fmt.Errorf("unknown colormap '%s'", s)
}

// Builds a 256 entry lookup table by blending the colormap stops in CIE-L*a*b* space
func (cm Colormap) lut() (lut [256]color.RGBA, err error) {
	stops:=colormapStops[cm]
	if len(stops)<2 { return lut, fmt.Errorf("unknown colormap %d", cm) }
	cs:=make([]colorful.Color, len(stops))
	for i, s:=range stops {
		if cs[i], err=colorful.Hex(s); err!=nil { return lut, err }
	}
	segs:=float64(len(cs)-1)
	for i:=range lut {
		t:=float64(i)/255*segs
		seg:=int(t)
		if seg>=len(cs)-1 { seg=len(cs)-2 }
		r, g, b:=cs[seg].BlendLab(cs[seg+1], t-float64(seg)).Clamped().RGB255()
		lut[i]=color.RGBA{r, g, b, 255}
	}
	return lut, nil
}

// Options for 8-bit previews of float images
type PreviewOptions struct {
	Sigma    float64   `json:"sigma"`    // display window is mean +/- Sigma standard deviations
	Gamma    float32   `json:"gamma"`    
	MaxEdge  int       `json:"maxEdge"`  // downscale so the longer edge has at most this many pixels, 0=keep
	Colormap Colormap  `json:"colormap"`
	Quality  int       `json:"quality"`
}

func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{Sigma: 3, Gamma: 1, MaxEdge: 2048, Colormap: CmapGray, Quality: 95}
}

// Returns the display window mean +/- sigma*stddev over all finite pixels
func (f *Image) DisplayWindow(sigma float64) (min, max float32) {
	vals:=make([]float64, 0, len(f.Data))
	for _, d:=range f.Data {
		if v:=float64(d); !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals=append(vals, v)
		}
	}
	if len(vals)==0 { return 0, 1 }
	mean, std:=stat.PopMeanStdDev(vals, nil)
	if std==0 { std=1 }
	return float32(mean-sigma*std), float32(mean+sigma*std)
}

// Write an 8-bit JPEG preview of the image to the given file
func (f *Image) WritePreviewJPGToFile(fileName string, opts PreviewOptions) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	if err=f.WritePreviewJPG(writer, opts); err!=nil { return err }
	return writer.Flush()
}

// Write an 8-bit JPEG preview of the image, windowed, gamma-corrected, colormapped and downscaled
func (f *Image) WritePreviewJPG(writer io.Writer, opts PreviewOptions) error {
	lut, err:=opts.Colormap.lut()
	if err!=nil { return err }
	min, max:=f.DisplayWindow(opts.Sigma)

	width, height:=f.Width(), f.Height()
	img:=image.NewRGBA(image.Rect(0, 0, width, height))
	scale:=1/(max-min)
	gammaInv:=float64(1)
	if opts.Gamma>0 { gammaInv=float64(1/opts.Gamma) }
	for y:=0; y<height; y++ {
		yoffset:=y*width
		for x:=0; x<width; x++ {
			gray:=(f.Data[yoffset+x]-min)*scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray<0 { gray=0 }
			if gray>1 { gray=1 }
			if gammaInv!=1.0 {
				gray=float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetRGBA(x, y, lut[uint8(gray*255)])
		}
	}

	var out image.Image=img
	if edge:=width; opts.MaxEdge>0 {
		if height>edge { edge=height }
		if edge>opts.MaxEdge {
			w, h:=width*opts.MaxEdge/edge, height*opts.MaxEdge/edge
			if w<1 { w=1 }
			if h<1 { h=1 }
			small:=image.NewRGBA(image.Rect(0, 0, w, h))
			xdraw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)
			out=small
		}
	}

	quality:=opts.Quality
	if quality<=0 { quality=95 }
	return jpeg.Encode(writer, out, &jpeg.Options{Quality: quality})
}
