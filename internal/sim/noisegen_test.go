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

package sim

import (
	"math"
	"testing"

	"github.com/pguresvt/pguresvt/internal/cube"
)

func TestPoissonGaussianRange(t *testing.T) {
	c := cube.NewCube(32, 32, 4)
	for i := range c.Data {
		c.Data[i] = 100
	}

	noisy, err := PoissonGaussian(c, 0.1, 0.1, 0.1, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !noisy.EqualShape(c) {
		t.Fatalf("shape %s differs from input %s", noisy.DimensionsToString(), c.DimensionsToString())
	}

	min, max := noisy.MinMax()
	if min < 0 {
		t.Errorf("min %f below zero after rescaling", min)
	}
	if max > 100.001 {
		t.Errorf("max %f above input range", max)
	}
	if min == max {
		t.Errorf("no noise added")
	}
}

func TestPoissonGaussianRejectsBadAlpha(t *testing.T) {
	c := cube.NewCube(4, 4, 1)
	if _, err := PoissonGaussian(c, -0.5, 0, 0, 1); err == nil {
		t.Errorf("expected error for alpha<0")
	}
	if _, err := PoissonGaussian(c, 1.5, 0, 0, 1); err == nil {
		t.Errorf("expected error for alpha>1")
	}
}

func TestPoissonGaussianRawStatistics(t *testing.T) {
	// constant field: mean should be x+mu, variance alpha*x + sigma^2
	alpha, mu, sigma := float32(0.1), float32(0.05), float32(0.2)
	x := float32(2.0)

	c := cube.NewCube(64, 64, 8)
	for i := range c.Data {
		c.Data[i] = x
	}
	noisy, err := PoissonGaussianRaw(c, alpha, mu, sigma, 7)
	if err != nil {
		t.Fatal(err)
	}

	sum, sumSq := 0.0, 0.0
	for _, v := range noisy.Data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(noisy.Data))
	mean := sum / n
	variance := sumSq/n - mean*mean

	wantMean := float64(x + mu)
	wantVar := float64(alpha*x + sigma*sigma)
	if math.Abs(mean-wantMean) > 0.05*wantMean+0.01 {
		t.Errorf("mean %f, expect %f", mean, wantMean)
	}
	if math.Abs(variance-wantVar) > 0.2*wantVar {
		t.Errorf("variance %f, expect %f", variance, wantVar)
	}
}

func TestPoissonGaussianDeterministic(t *testing.T) {
	c := cube.NewCube(8, 8, 2)
	for i := range c.Data {
		c.Data[i] = float32(i)
	}
	a, err := PoissonGaussian(c, 0.2, 0.1, 0.1, 99)
	if err != nil {
		t.Fatal(err)
	}
	b, err := PoissonGaussian(c, 0.2, 0.1, 0.1, 99)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("draws differ at %d for identical seeds", i)
		}
	}
}
