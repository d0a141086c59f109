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

// Package noise estimates the mixed Poisson-Gaussian noise model
// variance = alpha*(mean-mu) + sigma^2 by quadtree decomposition.
package noise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/qsort"
	"github.com/pguresvt/pguresvt/internal/stats"
)

// The mixed Poisson-Gaussian noise model: gain alpha, offset mu, and
// Gaussian read-noise standard deviation sigma. Immutable once computed
type Model struct {
	Alpha float32 `json:"alpha"`
	Mu    float32 `json:"mu"`
	Sigma float32 `json:"sigma"`
}

func (m Model) String() string {
	return fmt.Sprintf("alpha=%.4g mu=%.4g sigma=%.4g", m.Alpha, m.Mu, m.Sigma)
}

// Side length of the quadtree leaf blocks used for local statistics
const leafSize = 8

// Minimum number of usable leaves for a stable regression fit
const minLeaves = 4

// Leaves whose absolute fit residual exceeds this many scaled MADs are
// dropped before the second regression pass
const residualClip = 2.5

// Parses user-supplied noise parameters. Negative values mean "estimate";
// either all three must be negative, or all three supplied (all-or-nothing)
func ParseParams(alpha, mu, sigma float32) (m Model, supplied bool, err error) {
	numSupplied := 0
	if alpha >= 0 {
		numSupplied++
	}
	if mu >= 0 {
		numSupplied++
	}
	if sigma >= 0 {
		numSupplied++
	}
	switch numSupplied {
	case 0:
		return Model{}, false, nil
	case 3:
		return Model{Alpha: alpha, Mu: mu, Sigma: sigma}, true, nil
	default:
		return Model{}, false, fmt.Errorf("noise parameters must be given all-or-nothing, got %d of 3 (alpha=%g mu=%g sigma=%g)",
			numSupplied, alpha, mu, sigma)
	}
}

// An axis-aligned square block of the quadtree decomposition
type block struct {
	x, y, size int32
}

// Reports whether a frame of the given dimensions supports quadtree noise
// estimation: square, power-of-two side, large enough to split at least once
func CheckFrameGeometry(width, height int32) error {
	if width != height {
		return fmt.Errorf("quadtree noise estimation requires square frames, got %dx%d", width, height)
	}
	if width&(width-1) != 0 {
		return fmt.Errorf("quadtree noise estimation requires a power-of-two side, got %d", width)
	}
	if width < 2*leafSize {
		return fmt.Errorf("frame side %d too small for quadtree noise estimation, need at least %d", width, 2*leafSize)
	}
	return nil
}

// Estimates the noise model from a single frame by quadtree decomposition
// down to homogeneous leaf blocks, followed by a robust linear regression of
// leaf variances over leaf means. The frame must be square with a
// power-of-two side of at least 2*leafSize
func EstimateFrame(data []float32, width int32) (Model, error) {
	height := int32(len(data)) / width
	if err := CheckFrameGeometry(width, height); err != nil {
		return Model{}, err
	}

	// Explicit work list instead of self-recursion, so large frames cannot
	// exhaust the stack
	worklist := []block{{0, 0, width}}
	var means, vars []float64
	scratch := make([]float32, leafSize*leafSize)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if b.size > leafSize {
			half := b.size / 2
			worklist = append(worklist,
				block{b.x, b.y, half},
				block{b.x + half, b.y, half},
				block{b.x, b.y + half, half},
				block{b.x + half, b.y + half, half})
			continue
		}

		n := 0
		for dy := int32(0); dy < b.size; dy++ {
			row := (b.y + dy) * width
			for dx := int32(0); dx < b.size; dx++ {
				scratch[n] = data[row+b.x+dx]
				n++
			}
		}
		mean, variance := stats.MeanVariance(scratch[:n])
		if math.IsNaN(float64(mean)) || math.IsInf(float64(mean), 0) ||
			math.IsNaN(float64(variance)) || math.IsInf(float64(variance), 0) {
			continue // degenerate leaf, skip
		}
		means = append(means, float64(mean))
		vars = append(vars, float64(variance))
	}
	if len(means) < minLeaves {
		return Model{}, fmt.Errorf("only %d usable quadtree leaves, need at least %d", len(means), minLeaves)
	}

	// First pass fit of variance over mean
	intercept, slope := stat.LinearRegression(means, vars, nil, false)

	// Clip leaves with outlier residuals, typically blocks straddling edges,
	// and refit
	residuals := make([]float32, len(means))
	for i := range means {
		residuals[i] = float32(math.Abs(vars[i] - (intercept + slope*means[i])))
	}
	scaledMAD := qsort.QSelectMedianFloat32(append([]float32(nil), residuals...)) * 1.4826
	if scaledMAD > 0 {
		keptMeans := make([]float64, 0, len(means))
		keptVars := make([]float64, 0, len(vars))
		for i := range means {
			if residuals[i] <= residualClip*scaledMAD {
				keptMeans = append(keptMeans, means[i])
				keptVars = append(keptVars, vars[i])
			}
		}
		if len(keptMeans) >= minLeaves {
			intercept, slope = stat.LinearRegression(keptMeans, keptVars, nil, false)
			means = keptMeans
		}
	}

	// Gain from the slope; offset from the darkest leaves; Gaussian noise
	// from the intercept, since var = alpha*(mean-mu) + sigma^2
	alpha := slope
	if alpha < 0 {
		alpha = 0
	}
	means32 := make([]float32, len(means))
	for i, m := range means {
		means32[i] = float32(m)
	}
	k := len(means32) / 20
	if k < 1 {
		k = 1
	}
	mu := float64(qsort.QSelectFloat32(means32, k))
	if mu < 0 {
		mu = 0
	}
	sigmaSq := intercept + alpha*mu
	if sigmaSq < 0 {
		sigmaSq = 0
	}
	return Model{
		Alpha: float32(alpha),
		Mu:    float32(mu),
		Sigma: float32(math.Sqrt(sigmaSq)),
	}, nil
}

// Estimates the noise model for a sequence as the per-parameter median of
// the per-frame estimates, which is robust against isolated bad frames
func Estimate(c *cube.Cube) (Model, error) {
	alphas := make([]float32, 0, c.Nt)
	mus := make([]float32, 0, c.Nt)
	sigmas := make([]float32, 0, c.Nt)
	var firstErr error
	for t := int32(0); t < c.Nt; t++ {
		m, err := EstimateFrame(c.Frame(t), c.Nx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		alphas = append(alphas, m.Alpha)
		mus = append(mus, m.Mu)
		sigmas = append(sigmas, m.Sigma)
	}
	if len(alphas) == 0 {
		return Model{}, firstErr
	}
	return Model{
		Alpha: qsort.QSelectMedianFloat32(alphas),
		Mu:    qsort.QSelectMedianFloat32(mus),
		Sigma: qsort.QSelectMedianFloat32(sigmas),
	}, nil
}
