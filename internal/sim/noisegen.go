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

// Package sim generates synthetic mixed Poisson-Gaussian noise for test data.
// It is not part of the denoising path.
package sim

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"

	"github.com/pguresvt/pguresvt/internal/cube"
)

// A seeded random source for reproducible noise draws
type rng struct {
	src      fastrand.RNG
	spare    float64
	hasSpare bool
}

func newRNG(seed uint32) *rng {
	r := &rng{}
	if seed == 0 {
		seed = 1 // zero would reseed from the OS
	}
	r.src.Seed(seed)
	return r
}

// Uniform sample in (0,1)
func (r *rng) uniform() float64 {
	return (float64(r.src.Uint32()) + 0.5) / 4294967296.0
}

// Standard normal sample via Box-Muller
func (r *rng) gaussian() float64 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}
	u, v := r.uniform(), r.uniform()
	radius := math.Sqrt(-2 * math.Log(u))
	theta := 2 * math.Pi * v
	r.spare = radius * math.Sin(theta)
	r.hasSpare = true
	return radius * math.Cos(theta)
}

// Poisson sample with the given mean. Uses Knuth inversion for small means
// and a rounded normal approximation above
func (r *rng) poisson(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	if mean > 30 {
		k := math.Round(mean + math.Sqrt(mean)*r.gaussian())
		if k < 0 {
			k = 0
		}
		return k
	}
	limit := math.Exp(-mean)
	k, p := 0, 1.0
	for {
		k++
		p *= r.uniform()
		if p <= limit {
			return float64(k - 1)
		}
	}
}

// Corrupts a clean volume with mixed Poisson-Gaussian noise: a Poisson draw
// scaled by the gain alpha, an additive offset mu, and additive Gaussian noise
// scaled by sigma. The data is normalized to [0,1] for the draws and rescaled
// back into the original range afterwards. The seed makes draws reproducible
func PoissonGaussian(c *cube.Cube, alpha, mu, sigma float32, seed uint32) (*cube.Cube, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("noise gain alpha %f should be in range [0,1]", alpha)
	}

	_, inputMax := c.MinMax()
	if inputMax <= 0 {
		inputMax = 1
	}

	r := newRNG(seed)
	out := c.CloneShape()
	for i, v := range c.Data {
		x := float64(v) / float64(inputMax)
		var y float64
		if alpha > 0 {
			y = float64(alpha) * r.poisson(x/float64(alpha))
		} else {
			y = x
		}
		y += float64(mu) + float64(sigma)*r.gaussian()
		out.Data[i] = float32(y)
	}

	// shift to non-negative, rescale into the input range
	outMin, outMax := out.MinMax()
	if outMin < 0 {
		for i := range out.Data {
			out.Data[i] -= outMin
		}
		outMax -= outMin
	}
	if outMax > 0 {
		scale := inputMax / outMax
		for i := range out.Data {
			out.Data[i] *= scale
		}
	}
	return out, nil
}

// Corrupts a clean volume like PoissonGaussian, but without the final
// range normalization, so known noise parameters survive for estimator tests
func PoissonGaussianRaw(c *cube.Cube, alpha, mu, sigma float32, seed uint32) (*cube.Cube, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("noise gain alpha %f should be in range [0,1]", alpha)
	}

	r := newRNG(seed)
	out := c.CloneShape()
	for i, v := range c.Data {
		x := float64(v)
		var y float64
		if alpha > 0 {
			y = float64(alpha) * r.poisson(x/float64(alpha))
		} else {
			y = x
		}
		y += float64(mu) + float64(sigma)*r.gaussian()
		out.Data[i] = float32(y)
	}
	return out, nil
}
