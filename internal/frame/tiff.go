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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// TIFF tags and constants used by the 32-bit strip codec
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagSampleFormat    = 339

	dtShort = 3
	dtLong  = 4

	sfUint  = 1
	sfInt   = 2
	sfFloat = 3
)

// Read a single-channel TIFF image. 32-bit integer and float samples are decoded from
// uncompressed strips directly, everything else goes through golang.org/x/image/tiff
func (f *Image) ReadTIFFFile(fileName string) error {
	buf, err:=os.ReadFile(fileName)
	if err!=nil { return err }
	return f.ReadTIFF(buf)
}

func (f *Image) ReadTIFF(buf []byte) error {
	ifd, bo, err:=parseIFD(buf)
	if err!=nil { return err }
	if ifd.uint(tagBitsPerSample, 1)==32 {
		return f.readTIFF32(buf, ifd, bo)
	}

	t, err:=tiff.Decode(bytes.NewReader(buf))
	if err!=nil { return err }
	width, height:=t.Bounds().Dx(), t.Bounds().Dy()
	*f=Image{ID: f.ID, FileName: f.FileName, Naxisn: []int32{int32(width), int32(height)}, 
	         Pixels: int32(width*height), Data: make([]float32, width*height)}
	min:=t.Bounds().Min
	switch img:=t.(type) {
	case *image.Gray:
		for y:=0; y<height; y++ {
			row:=img.Pix[y*img.Stride:]
			for x:=0; x<width; x++ {
				f.Data[y*width+x]=float32(row[x])
			}
		}
	case *image.Gray16:
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				f.Data[y*width+x]=float32(img.Gray16At(min.X+x, min.Y+y).Y)
			}
		}
	default:
		// color or paletted data, reduced to 16-bit luminance
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				c:=color.Gray16Model.Convert(t.At(min.X+x, min.Y+y)).(color.Gray16)
				f.Data[y*width+x]=float32(c.Y)
			}
		}
	}
	return nil
}

// Directory entries of the first image file directory, by tag
type tiffIFD map[uint16][]uint32

func (d tiffIFD) uint(tag uint16, def uint32) uint32 {
	if v, ok:=d[tag]; ok && len(v)>0 { return v[0] }
	return def
}

func parseIFD(buf []byte) (tiffIFD, binary.ByteOrder, error) {
	if len(buf)<8 { return nil, nil, errors.New("tiff: short header") }
	var bo binary.ByteOrder
	switch string(buf[0:2]) {
	case "II": bo=binary.LittleEndian
	case "MM": bo=binary.BigEndian
	default:   return nil, nil, errors.New("tiff: invalid byte order marker")
	}
	if bo.Uint16(buf[2:4])!=42 { return nil, nil, errors.New("tiff: invalid magic number") }

	off:=int(bo.Uint32(buf[4:8]))
	if off+2>len(buf) { return nil, nil, errors.New("tiff: IFD offset out of range") }
	n:=int(bo.Uint16(buf[off:off+2]))
	if off+2+12*n>len(buf) { return nil, nil, errors.New("tiff: IFD out of range") }

	ifd:=tiffIFD{}
	for i:=0; i<n; i++ {
		e:=buf[off+2+12*i : off+2+12*(i+1)]
		tag, dt, count:=bo.Uint16(e[0:2]), bo.Uint16(e[2:4]), int(bo.Uint32(e[4:8]))
		size:=0
		switch dt {
		case dtShort: size=2
		case dtLong:  size=4
		default:      continue // not needed for decoding
		}
		raw:=e[8:12]
		if count*size>4 {
			p:=int(bo.Uint32(e[8:12]))
			if p<0 || p+count*size>len(buf) { return nil, nil, fmt.Errorf("tiff: tag %d out of range", tag) }
			raw=buf[p : p+count*size]
		}
		vals:=make([]uint32, count)
		for j:=range vals {
			if size==2 {
				vals[j]=uint32(bo.Uint16(raw[2*j:]))
			} else {
				vals[j]=bo.Uint32(raw[4*j:])
			}
		}
		ifd[tag]=vals
	}
	return ifd, bo, nil
}

func (f *Image) readTIFF32(buf []byte, ifd tiffIFD, bo binary.ByteOrder) error {
	if c:=ifd.uint(tagCompression, 1); c!=1 {
		return fmt.Errorf("tiff: unsupported compression %d for 32-bit samples", c)
	}
	if s:=ifd.uint(tagSamplesPerPixel, 1); s!=1 {
		return fmt.Errorf("tiff: expected one sample per pixel, got %d", s)
	}
	width, height:=int(ifd.uint(tagImageWidth, 0)), int(ifd.uint(tagImageLength, 0))
	if width<=0 || height<=0 { return errors.New("tiff: missing image dimensions") }
	offsets, counts:=ifd[tagStripOffsets], ifd[tagStripByteCounts]
	if len(offsets)==0 || len(offsets)!=len(counts) { return errors.New("tiff: missing strip offsets") }
	format:=ifd.uint(tagSampleFormat, sfUint)

	*f=Image{ID: f.ID, FileName: f.FileName, Naxisn: []int32{int32(width), int32(height)}, 
	         Pixels: int32(width*height), Data: make([]float32, width*height)}
	i:=0
	for s, o:=range offsets {
		start, end:=int(o), int(o)+int(counts[s])
		if end>len(buf) { return fmt.Errorf("tiff: strip %d out of range", s) }
		for p:=start; p+4<=end && i<len(f.Data); p+=4 {
			v:=bo.Uint32(buf[p:])
			switch format {
			case sfFloat: f.Data[i]=math.Float32frombits(v)
			case sfInt:   f.Data[i]=float32(int32(v))
			default:      f.Data[i]=float32(v)
			}
			i++
		}
	}
	if i!=len(f.Data) { return fmt.Errorf("tiff: expected %d pixels, got %d", len(f.Data), i) }
	return nil
}


// Write the image to a 32-bit float TIFF file
func (f *Image) WriteFloatTIFFToFile(fileName string) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	if err=f.WriteFloatTIFF(writer); err!=nil { return err }
	return writer.Flush()
}

// Write the image as little-endian, uncompressed, single strip, 32-bit IEEE float TIFF
func (f *Image) WriteFloatTIFF(w io.Writer) error {
	width, height:=uint32(f.Width()), uint32(f.Height())
	entries:=[][3]uint32{ // tag, type, value
		{tagImageWidth,      dtLong,  width},
		{tagImageLength,     dtLong,  height},
		{tagBitsPerSample,   dtShort, 32},
		{tagCompression,     dtShort, 1},
		{tagPhotometric,     dtShort, 1}, // black is zero
		{tagStripOffsets,    dtLong,  0}, // patched below
		{tagSamplesPerPixel, dtShort, 1},
		{tagRowsPerStrip,    dtLong,  height},
		{tagStripByteCounts, dtLong,  4*width*height},
		{tagSampleFormat,    dtShort, sfFloat},
	}
	dataOffset:=uint32(8+2+12*len(entries)+4)
	entries[5][2]=dataOffset

	bo:=binary.LittleEndian
	hdr:=make([]byte, dataOffset)
	copy(hdr, "II")
	bo.PutUint16(hdr[2:], 42)
	bo.PutUint32(hdr[4:], 8)
	bo.PutUint16(hdr[8:], uint16(len(entries)))
	for i, e:=range entries {
		p:=hdr[10+12*i:]
		bo.PutUint16(p[0:], uint16(e[0]))
		bo.PutUint16(p[2:], uint16(e[1]))
		bo.PutUint32(p[4:], 1)
		bo.PutUint32(p[8:], e[2]) // shorts sit in the low bytes in little-endian order
	}
	// next IFD offset is zero
	if _, err:=w.Write(hdr); err!=nil { return err }
	return binary.Write(w, bo, f.Data)
}
