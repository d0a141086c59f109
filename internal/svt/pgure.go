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

package svt

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/optimize"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/motion"
	"github.com/pguresvt/pguresvt/internal/noise"
)

// Finite difference step for the Monte-Carlo divergence probe, relative to
// data normalized into [0,1]
const probeEpsilon = 1e-3

// Quadratic penalty weight keeping the Nelder-Mead simplex inside the
// admissible threshold range
const boundsPenalty = 1e3

// PGURE evaluates the Poisson-Gaussian unbiased risk estimate of a
// soft-thresholded reconstruction:
//
//	R(lambda) = (1/N) ( ||xh - y||^2 - sum(var_i)
//	            + (2/eps) <var o delta, xh(y + eps*delta) - xh(y)> )
//
// with var_i = alpha*(y_i - mu) + sigma^2 the per-voxel noise variance and
// delta a fixed random +-1 probe. The probe is drawn from a seeded generator
// so repeated runs evaluate the identical functional
type PGURE struct {
	orig, pert *Thresholder
	varData    []float64
	delta      []float32
	maxThreads int
	evalErr    error
}

func NewPGURE(win *cube.Cube, field *motion.Field, patchSize, overlap int32, model noise.Model, seed uint32, maxThreads int) (*PGURE, error) {
	rng := fastrand.RNG{}
	if seed == 0 {
		seed = 1
	}
	rng.Seed(seed)

	n := len(win.Data)
	delta := make([]float32, n)
	varData := make([]float64, n)
	pertWin := win.Clone()
	alpha, mu, sigma := float64(model.Alpha), float64(model.Mu), float64(model.Sigma)
	for i, y := range win.Data {
		d := float32(1)
		if rng.Uint32n(2) == 0 {
			d = -1
		}
		delta[i] = d
		pertWin.Data[i] = y + probeEpsilon*d
		v := alpha*(float64(y)-mu) + sigma*sigma
		if v < 0 {
			v = 0
		}
		varData[i] = v
	}

	orig, err := NewThresholder(win, field, patchSize, overlap)
	if err != nil {
		return nil, err
	}
	pert, err := NewThresholder(pertWin, field, patchSize, overlap)
	if err != nil {
		return nil, err
	}
	if err := orig.Decompose(maxThreads); err != nil {
		return nil, err
	}
	if err := pert.Decompose(maxThreads); err != nil {
		return nil, err
	}

	return &PGURE{
		orig:       orig,
		pert:       pert,
		varData:    varData,
		delta:      delta,
		maxThreads: maxThreads,
	}, nil
}

// Largest singular value of the unperturbed window, the upper bound of the
// threshold search range
func (p *PGURE) MaxSingularValue() float64 {
	return p.orig.MaxSingularValue()
}

// Risk evaluates the unbiased risk estimate at the given threshold
func (p *PGURE) Risk(lambda float64) (float64, error) {
	xh, err := p.orig.Reconstruct(lambda, Soft, p.maxThreads)
	if err != nil {
		return 0, err
	}
	xhp, err := p.pert.Reconstruct(lambda, Soft, p.maxThreads)
	if err != nil {
		return 0, err
	}

	fidelity, varSum, div := float64(0), float64(0), float64(0)
	for i, y := range p.orig.win.Data {
		r := float64(xh.Data[i]) - float64(y)
		fidelity += r * r
		varSum += p.varData[i]
		div += p.varData[i] * float64(p.delta[i]) * float64(xhp.Data[i]-xh.Data[i])
	}
	n := float64(len(p.orig.win.Data))
	return (fidelity - varSum + 2*div/probeEpsilon) / n, nil
}

func (p *PGURE) penalizedRisk(lambda, lambdaMax float64) float64 {
	clamped, excess := lambda, float64(0)
	if clamped < 0 {
		excess = -clamped
		clamped = 0
	} else if clamped > lambdaMax {
		excess = clamped - lambdaMax
		clamped = lambdaMax
	}
	r, err := p.Risk(clamped)
	if err != nil {
		if p.evalErr == nil {
			p.evalErr = err
		}
		return math.Inf(1)
	}
	return r + boundsPenalty*excess*excess
}

// Optimize searches [0, lambdaMax] for the risk-minimizing threshold with
// Nelder-Mead, starting the simplex at lambda0
func (p *PGURE) Optimize(tol, lambda0, lambdaMax float64, maxEvals int) (float64, error) {
	if lambdaMax <= 0 {
		return 0, nil
	}
	if lambda0 < 0 || lambda0 > lambdaMax {
		lambda0 = 0.5 * lambdaMax
	}

	p.evalErr = nil
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return p.penalizedRisk(x[0], lambdaMax)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, []float64{lambda0}, settings, &optimize.NelderMead{})
	if p.evalErr != nil {
		return 0, p.evalErr
	}
	if err != nil {
		return 0, fmt.Errorf("threshold optimization: %s", err.Error())
	}

	lambda := result.X[0]
	if lambda < 0 {
		lambda = 0
	} else if lambda > lambdaMax {
		lambda = lambdaMax
	}
	return lambda, nil
}

// DenoiseWindow reconstructs the unperturbed window at the given threshold
func (p *PGURE) DenoiseWindow(lambda float64, maxThreads int) (*cube.Cube, error) {
	return p.orig.Reconstruct(lambda, Soft, maxThreads)
}
