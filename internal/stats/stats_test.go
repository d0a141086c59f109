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

package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestMinMaxMean(t *testing.T) {
	data := []float32{3, -1, 4, 1, 5, 9, 2, 6}
	min, max := MinMax(data)
	if min != -1 || max != 9 {
		t.Fatalf("got min %f max %f", min, max)
	}
	if m := Mean(data); math.Abs(float64(m)-3.625) > 1e-6 {
		t.Fatalf("got mean %f", m)
	}
}

func TestMeanVariance(t *testing.T) {
	data := []float32{2, 4, 4, 4, 5, 5, 7, 9}
	mean, variance := MeanVariance(data)
	if math.Abs(float64(mean)-5) > 1e-6 {
		t.Fatalf("got mean %f", mean)
	}
	if math.Abs(float64(variance)-4) > 1e-5 {
		t.Fatalf("got variance %f", variance)
	}
}

func TestMedianLeavesDataUntouched(t *testing.T) {
	data := []float32{5, 1, 3, 2, 4}
	scratch := make([]float32, len(data))
	if m := Median(data, scratch); m != 3 {
		t.Fatalf("got median %f", m)
	}
	for i, v := range []float32{5, 1, 3, 2, 4} {
		if data[i] != v {
			t.Fatal("input data was modified")
		}
	}
}

func TestFastApproxMedianAndMAD(t *testing.T) {
	data := make([]float32, 100000)
	rng := fastrand.RNG{}
	rng.Seed(77)
	for i := range data {
		data[i] = float32(rng.Uint32n(1000))
	}
	samples := make([]float32, 16384)

	med := FastApproxMedian(data, samples, &rng)
	if med < 400 || med > 600 {
		t.Fatalf("approximate median %f far from 500", med)
	}
	// uniform on [0,1000): MAD = 250, scaled by 1.4826
	mad := FastApproxMAD(data, med, samples, &rng)
	if mad < 300 || mad > 450 {
		t.Fatalf("approximate MAD %f far from %f", mad, 250*1.4826)
	}
}
