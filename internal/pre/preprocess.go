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

// Package pre builds the stabilized reference volume used for motion search.
// The original input is left untouched; only the reference is preprocessed.
package pre

import (
	"fmt"
	"io"

	"github.com/valyala/fastrand"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/median"
	"github.com/pguresvt/pguresvt/internal/stats"
)

// Sample count for the subsampled noise scale estimate on large frames
const madSamples = 16384

// Replaces hot pixels in place: any pixel exceeding its local 8-neighborhood
// median by more than threshold median absolute deviations of the frame is
// replaced by that local median. Returns the number of pixels corrected
func CorrectHotPixels(c *cube.Cube, threshold float32) int {
	numFixed := 0
	for t := int32(0); t < c.Nt; t++ {
		frame := c.Frame(t)

		numSamples := len(frame)
		if numSamples > madSamples {
			numSamples = madSamples
		}
		samples := make([]float32, numSamples)
		rng := fastrand.RNG{}
		rng.Seed(uint32(t) + 1)
		location := stats.FastApproxMedian(frame, samples, &rng)
		mad := stats.FastApproxMAD(frame, location, samples, &rng)
		if mad <= 0 {
			continue // flat frame, nothing to correct
		}

		for y := int32(0); y < c.Ny; y++ {
			for x := int32(0); x < c.Nx; x++ {
				med := median.Neighborhood8(frame, c.Nx, x, y)
				if frame[y*c.Nx+x]-med > threshold*mad {
					frame[y*c.Nx+x] = med
					numFixed++
				}
			}
		}
	}
	return numFixed
}

// Builds the motion-search reference volume: a copy of the input with hot
// pixels corrected, then median-smoothed per frame with the given odd window
func Reference(c *cube.Cube, medianWindow int32, hotPixelThreshold float32, logWriter io.Writer) (*cube.Cube, error) {
	ref := c.Clone()
	numFixed := CorrectHotPixels(ref, hotPixelThreshold)
	if logWriter != nil {
		fmt.Fprintf(logWriter, "Corrected %d hot pixels (%.2f%%) with threshold %.2f\n",
			numFixed, 100.0*float32(numFixed)/float32(len(ref.Data)), hotPixelThreshold)
	}

	smoothed := ref.CloneShape()
	for t := int32(0); t < ref.Nt; t++ {
		if err := median.Filter(smoothed.Frame(t), ref.Frame(t), ref.Nx, medianWindow); err != nil {
			return nil, err
		}
	}
	return smoothed, nil
}
