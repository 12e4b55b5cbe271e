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


package norm

import (
	"fmt"
	"github.com/mlnoga/xrdstack/internal/ops"
)

// Computes one normalization value per image: the sum of intensities 
// after cropping a fraction of rows and columns from each edge
type OpNormalize struct {
	ops.OpBase
	CropFraction  float64  `json:"cropFraction"`  // fraction of each dimension cropped from every edge
}

func NewOpNormalizeDefault() *OpNormalize { return NewOpNormalize(0.01) }

func NewOpNormalize(cropFraction float64) *OpNormalize {
	return &OpNormalize{
		OpBase       : ops.OpBase{Type: "normalize", Active: true},
		CropFraction : cropFraction,
	}
}

// Computes normalization values for the given paths in parallel. Output order matches input order.
// Fails with the first load error, returning no values at all
func (op *OpNormalize) Apply(paths []string, c *ops.Context) ([]float64, error) {
	if len(paths)==0 { return nil, nil }
	fmt.Fprintf(c.Log, "Normalizing %d images with crop fraction %g...\n", len(paths), op.CropFraction)
	c.ProgressMax(len(paths))
	norms, err:=ops.ParallelMap(paths, c.MaxThreads, func(i int, path string) (float64, error) {
		f, err:=c.Store.Load(path, i, c.Log)
		if err!=nil { return 0, err }
		sum:=f.CroppedSum(op.CropFraction)
		if c.Verbose {
			fmt.Fprintf(c.Log, "%d: %s pixels, normalization %.6g from %s\n", i, f.DimensionsToString(), sum, path)
		}
		c.ProgressAdvance()
		return sum, nil
	})
	if err!=nil { return nil, err }
	return norms, nil
}
