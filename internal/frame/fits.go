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
	"io"
	"os"

	"github.com/astrogo/fitsio"
)

// Read the primary HDU of a FITS stream as a two-dimensional image.
// Integer data is converted to float32, applying BZERO and BSCALE from the header
func (f *Image) ReadFITS(r io.Reader, logWriter io.Writer) error {
	ff, err:=fitsio.Open(r)
	if err!=nil { return err }
	defer ff.Close()

	hdu, ok:=ff.HDU(0).(fitsio.Image)
	if !ok { return fmt.Errorf("%d: primary HDU of %s is not an image", f.ID, f.FileName) }
	hdr:=hdu.Header()
	axes:=hdr.Axes()
	if len(axes)!=2 {
		return fmt.Errorf("%d: expected two axes in %s, got %d", f.ID, f.FileName, len(axes))
	}
	if hdr.Bitpix()==32 || hdr.Bitpix()==64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting int%d to float32 values\n", f.ID, hdr.Bitpix())
	}

	data, err:=readFITSData(hdu, hdr.Bitpix(), axes[0]*axes[1])
	if err!=nil { return fmt.Errorf("%d: reading %s: %w", f.ID, f.FileName, err) }

	bzero, bscale:=headerFloat(hdr, "BZERO", 0), headerFloat(hdr, "BSCALE", 1)
	if hdr.Bitpix()>0 && (bzero!=0 || bscale!=1) {
		for i, d:=range data {
			data[i]=float32(bzero+bscale*float64(d))
		}
	}

	f.Naxisn=[]int32{int32(axes[0]), int32(axes[1])}
	f.Pixels=int32(len(data))
	f.Data=data
	return nil
}

// Reads the raw samples into a slice of the element type given by BITPIX, then converts to float32
func readFITSData(hdu fitsio.Image, bitpix, pixels int) ([]float32, error) {
	data:=make([]float32, pixels)
	switch bitpix {
	case 8:
		raw:=make([]uint8, pixels)
		if err:=hdu.Read(&raw); err!=nil { return nil, err }
		for i, d:=range raw { data[i]=float32(d) }
	case 16:
		raw:=make([]int16, pixels)
		if err:=hdu.Read(&raw); err!=nil { return nil, err }
		for i, d:=range raw { data[i]=float32(d) }
	case 32:
		raw:=make([]int32, pixels)
		if err:=hdu.Read(&raw); err!=nil { return nil, err }
		for i, d:=range raw { data[i]=float32(d) }
	case 64:
		raw:=make([]int64, pixels)
		if err:=hdu.Read(&raw); err!=nil { return nil, err }
		for i, d:=range raw { data[i]=float32(d) }
	case -32:
		if err:=hdu.Read(&data); err!=nil { return nil, err }
	case -64:
		raw:=make([]float64, pixels)
		if err:=hdu.Read(&raw); err!=nil { return nil, err }
		for i, d:=range raw { data[i]=float32(d) }
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return data, nil
}

func headerFloat(hdr *fitsio.Header, key string, def float64) float64 {
	card:=hdr.Get(key)
	if card==nil { return def }
	switch v:=card.Value.(type) {
	case int:     return float64(v)
	case int64:   return float64(v)
	case float64: return v
	case float32: return float64(v)
	}
	return def
}

// Write the image to a 32-bit float FITS file
func (f *Image) WriteFITSToFile(fileName string) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	if err=f.WriteFITS(writer); err!=nil { return err }
	return writer.Flush()
}

// Write the image as a single primary HDU with BITPIX=-32
func (f *Image) WriteFITS(w io.Writer) error {
	ff, err:=fitsio.Create(w)
	if err!=nil { return err }

	img:=fitsio.NewImage(-32, []int{f.Width(), f.Height()})
	defer img.Close()
	if err=img.Write(&f.Data); err!=nil { return err }
	if err=ff.Write(img); err!=nil { return err }
	return ff.Close()
}
