// Copyright (C) 2021 The pguresvt authors
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

// Package median implements 2D median filters of odd window size.
package median

import (
	"fmt"

	"github.com/pguresvt/pguresvt/internal/qsort"
)

// Applies a window x window median filter to input data, assumed to be a 2D array
// with the given line width, and stores results in output. Window must be odd.
// Pixels beyond the image border are replicated from the nearest edge
func Filter(output, data []float32, width, window int32) error {
	if window < 1 || window&1 == 0 {
		return fmt.Errorf("median filter window %d must be odd", window)
	}
	height := int32(len(data)) / width
	half := window / 2
	gathered := make([]float32, window*window)

	for y := int32(0); y < height; y++ {
		for x := int32(0); x < width; x++ {
			n := 0
			for dy := -half; dy <= half; dy++ {
				yy := clamp(y+dy, 0, height-1)
				for dx := -half; dx <= half; dx++ {
					xx := clamp(x+dx, 0, width-1)
					gathered[n] = data[yy*width+xx]
					n++
				}
			}
			if window == 3 {
				output[y*width+x] = qsort.MedianFloat32Slice9(gathered)
			} else {
				output[y*width+x] = qsort.QSelectMedianFloat32(gathered)
			}
		}
	}
	return nil
}

// Calculates the median of the 8-neighborhood of pixel (x,y), excluding the
// pixel itself. Border neighborhoods are clamped to the image
func Neighborhood8(data []float32, width int32, x, y int32) float32 {
	height := int32(len(data)) / width
	var gathered [8]float32
	n := 0
	for dy := int32(-1); dy <= 1; dy++ {
		yy := clamp(y+dy, 0, height-1)
		for dx := int32(-1); dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			xx := clamp(x+dx, 0, width-1)
			gathered[n] = data[yy*width+xx]
			n++
		}
	}
	// median of 8 values: mean of 4th and 5th order statistics
	lo := qsort.QSelectFloat32(gathered[:], 4)
	hi := qsort.QSelectFloat32(gathered[:], 5)
	return 0.5 * (lo + hi)
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
