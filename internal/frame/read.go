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
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (f *Image, err error) {
	f=&Image{ID: id}
	return f, f.ReadFile(fileName, logWriter)
}

// Returns true if the file name has a FITS suffix, optionally gzipped
func IsFITSName(fileName string) bool {
	fnLower:=strings.ToLower(fileName)
	fnLower=strings.TrimSuffix(strings.TrimSuffix(fnLower, ".gz"), ".gzip")
	return strings.HasSuffix(fnLower,".fits") || strings.HasSuffix(fnLower,".fit") || strings.HasSuffix(fnLower,".fts")
}

// Returns true if the file name has a TIFF suffix
func IsTIFFName(fileName string) bool {
	fnLower:=strings.ToLower(fileName)
	return strings.HasSuffix(fnLower,".tif") || strings.HasSuffix(fnLower,".tiff")
}

// Read a single-channel image from the file with the given name. Supports TIFF and FITS.
// Decompresses FITS with gzip if .gz or gzip suffix is present.
func (f *Image) ReadFile(fileName string, logWriter io.Writer) error {
	f.FileName=fileName
	if IsTIFFName(fileName) {
		return f.ReadTIFFFile(fileName)
	}
	if !IsFITSName(fileName) {
		return fmt.Errorf("%d: unsupported file type %s", f.ID, path.Ext(fileName))
	}

	file, err:=os.Open(fileName)
	if err!=nil { return err }
	defer file.Close()

	var r io.Reader=bufio.NewReader(file)
	lExt:=strings.ToLower(path.Ext(fileName))
	if lExt==".gz" || lExt==".gzip" {
		gz, err:=gzip.NewReader(r)
		if err!=nil { return err }
		defer gz.Close()
		r=gz
	}
	return f.ReadFITS(r, logWriter)
}

// Write the image to the file with the given name, dispatching on suffix.
// Supports 32-bit float TIFF, 32-bit float FITS and 8-bit JPEG previews. Overwrites existing files
func (f *Image) WriteFile(fileName string, logWriter io.Writer) (err error) {
	fnLower:=strings.ToLower(fileName)
	switch {
	case IsTIFFName(fileName):
		fmt.Fprintf(logWriter, "%d: Writing %s pixel float TIFF to %s\n", f.ID, f.DimensionsToString(), fileName)
		err=f.WriteFloatTIFFToFile(fileName)
	case IsFITSName(fileName) && !strings.HasSuffix(fnLower, ".gz") && !strings.HasSuffix(fnLower, ".gzip"):
		fmt.Fprintf(logWriter, "%d: Writing %s pixel float FITS to %s\n", f.ID, f.DimensionsToString(), fileName)
		err=f.WriteFITSToFile(fileName)
	case strings.HasSuffix(fnLower,".jpeg") || strings.HasSuffix(fnLower,".jpg"):
		fmt.Fprintf(logWriter, "%d: Writing %s pixel JPEG preview to %s\n", f.ID, f.DimensionsToString(), fileName)
		err=f.WritePreviewJPGToFile(fileName, DefaultPreviewOptions())
	default:
		err=fmt.Errorf("unknown suffix")
	}
	if err!=nil { return fmt.Errorf("%d: error writing to file %s: %w", f.ID, fileName, err) }
	return nil
}
