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

// Package stats provides basic and subsampled statistics for image data.
package stats

import (
	"math"

	"github.com/valyala/fastrand"

	"github.com/pguresvt/pguresvt/internal/qsort"
)

// Calculates the minimum and maximum of the data
func MinMax(data []float32) (min, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// Calculates the mean of the data
func Mean(data []float32) float32 {
	sum := float64(0)
	for _, d := range data {
		sum += float64(d)
	}
	return float32(sum / float64(len(data)))
}

// Calculates the mean and variance of the data in a single pass
func MeanVariance(data []float32) (mean, variance float32) {
	sum, sumSq := float64(0), float64(0)
	for _, d := range data {
		sum += float64(d)
		sumSq += float64(d) * float64(d)
	}
	n := float64(len(data))
	m := sum / n
	return float32(m), float32(sumSq/n - m*m)
}

// Calculates the exact median of the data. Scratch must be of the same length,
// and is overwritten; the data itself is left untouched
func Median(data, scratch []float32) float32 {
	copy(scratch, data)
	return qsort.QSelectMedianFloat32(scratch)
}

// Calculates fast approximate median of the (presumably large) data by subsampling
// the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32, rng *fastrand.RNG) float32 {
	max := uint32(len(data))
	for i := range samples {
		index := rng.Uint32n(max)
		samples[i] = data[index]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Calculates fast approximate median of absolute differences of the (presumably large)
// data by subsampling the given number of values and taking the MAD of that.
func FastApproxMAD(data []float32, location float32, samples []float32, rng *fastrand.RNG) float32 {
	max := uint32(len(data))
	for i := range samples {
		index := rng.Uint32n(max)
		samples[i] = float32(math.Abs(float64(data[index] - location)))
	}
	return qsort.QSelectMedianFloat32(samples) * 1.4826 // normalize to Gaussian std dev.
}
