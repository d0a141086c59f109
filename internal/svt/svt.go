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

// Package svt performs singular value thresholding of motion-compensated
// Casorati patch matrices, and selects the threshold by minimizing a
// Poisson-Gaussian unbiased risk estimate
package svt

import (
	"fmt"
	"math"
	"sync"

	"github.com/pbnjay/memory"
	"gonum.org/v1/gonum/mat"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/motion"
)

// Singular value shrinkage rule applied before reconstruction
type Mode int

const (
	// Soft shrinks every singular value by an absolute lambda
	Soft Mode = iota
	// Hard retains only singular values of at least lambda times the
	// largest, treating lambda as a relative fraction in [0,1]
	Hard
)

// Thresholder decomposes all Casorati matrices of one temporal window and
// reconstructs a denoised window for a given threshold. Patch positions
// follow the overlap stride, with extra positions on the right and bottom
// edges so every pixel is covered
type Thresholder struct {
	win       *cube.Cube
	field     *motion.Field
	patchSize int32

	positions []int32 // motion field position indices of the patch grid
	svds      []patchSVD
	cacheUV   bool // singular vectors kept only when they fit in memory
}

type patchSVD struct {
	u, v *mat.Dense
	s    []float64
}

// Axis positions with the given stride, always including the final position
func axisPositions(n, blockSize, overlap int32) []int32 {
	last := n - blockSize
	pos := make([]int32, 0, last/overlap+2)
	for p := int32(0); p <= last; p += overlap {
		pos = append(pos, p)
	}
	if pos[len(pos)-1] != last {
		pos = append(pos, last)
	}
	return pos
}

// Fraction of physical memory the cached singular vectors may occupy
const cacheMemoryFraction = 4

func NewThresholder(win *cube.Cube, field *motion.Field, patchSize, overlap int32) (*Thresholder, error) {
	if win.Nt > patchSize*patchSize {
		return nil, fmt.Errorf("window length %d exceeds patch area %d", win.Nt, patchSize*patchSize)
	}
	if overlap < 1 || overlap > patchSize {
		return nil, fmt.Errorf("invalid patch overlap %d for patch size %d", overlap, patchSize)
	}
	xs := axisPositions(win.Nx, patchSize, overlap)
	ys := axisPositions(win.Ny, patchSize, overlap)
	positions := make([]int32, 0, len(xs)*len(ys))
	for _, y := range ys {
		for _, x := range xs {
			positions = append(positions, x+field.NumX*y)
		}
	}

	rows, cols := int(patchSize*patchSize), int(win.Nt)
	perPatch := uint64(8 * (rows*cols + cols*cols + cols))
	cacheUV := perPatch*uint64(len(positions)) < memory.TotalMemory()/cacheMemoryFraction

	return &Thresholder{
		win:       win,
		field:     field,
		patchSize: patchSize,
		positions: positions,
		svds:      make([]patchSVD, len(positions)),
		cacheUV:   cacheUV,
	}, nil
}

// Casorati matrix for one patch position: column t holds the vectorized
// motion-compensated patch of frame t
func (th *Thresholder) casorati(posIdx int32) *mat.Dense {
	bs := th.patchSize
	m := mat.NewDense(int(bs*bs), int(th.win.Nt), nil)
	for t := int32(0); t < th.win.Nt; t++ {
		frame := th.win.Frame(t)
		px, py := th.field.Pos(posIdx, t)
		r := 0
		for dy := int32(0); dy < bs; dy++ {
			off := (py+dy)*th.win.Nx + px
			for dx := int32(0); dx < bs; dx++ {
				m.Set(r, int(t), float64(frame[off+dx]))
				r++
			}
		}
	}
	return m
}

func decompose(m *mat.Dense) (patchSVD, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		return patchSVD{}, fmt.Errorf("SVD failed to converge")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	return patchSVD{u: &u, v: &v, s: svd.Values(nil)}, nil
}

// Decompose factorizes every Casorati matrix in parallel. The singular
// values are always retained; the singular vectors are retained only within
// the memory budget and recomputed during reconstruction otherwise
func (th *Thresholder) Decompose(maxThreads int) error {
	errs := make([]error, len(th.positions))
	limiter := make(chan bool, maxThreads)
	for i := range th.positions {
		limiter <- true
		go func(i int) {
			defer func() { <-limiter }()
			d, err := decompose(th.casorati(th.positions[i]))
			if err != nil {
				errs[i] = fmt.Errorf("patch %d: %s", i, err.Error())
				return
			}
			if !th.cacheUV {
				d.u, d.v = nil, nil
			}
			th.svds[i] = d
		}(i)
	}
	for i := 0; i < cap(limiter); i++ {
		limiter <- true
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Largest singular value across all patches. Valid after Decompose
func (th *Thresholder) MaxSingularValue() float64 {
	maxS := float64(0)
	for _, d := range th.svds {
		if len(d.s) > 0 && d.s[0] > maxS {
			maxS = d.s[0]
		}
	}
	return maxS
}

func thresholdValues(s []float64, lambda float64, mode Mode) []float64 {
	out := make([]float64, len(s))
	switch mode {
	case Soft:
		for i, v := range s {
			if v > lambda {
				out[i] = v - lambda
			}
		}
	case Hard:
		if len(s) > 0 {
			cut := lambda * s[0]
			for i, v := range s {
				if v >= cut {
					out[i] = v
				}
			}
		}
	}
	return out
}

// Total number of singular values retained across all patches for the given
// threshold. Valid after Decompose
func (th *Thresholder) RankRetained(lambda float64, mode Mode) int {
	rank := 0
	for _, d := range th.svds {
		for _, v := range thresholdValues(d.s, lambda, mode) {
			if v > 0 {
				rank++
			}
		}
	}
	return rank
}

// Reconstruct rebuilds the window from the thresholded decompositions.
// Overlapping patch contributions are averaged; pixels covered by no patch
// come out zero. Workers accumulate into private volumes which are merged
// in worker order, so the result is deterministic for any thread count
func (th *Thresholder) Reconstruct(lambda float64, mode Mode, maxThreads int) (*cube.Cube, error) {
	if maxThreads < 1 {
		maxThreads = 1
	}
	if maxThreads > len(th.positions) {
		maxThreads = len(th.positions)
	}

	n := len(th.win.Data)
	sums := make([][]float32, maxThreads)
	weights := make([][]float32, maxThreads)
	errs := make([]error, maxThreads)

	chunk := (len(th.positions) + maxThreads - 1) / maxThreads
	wg := sync.WaitGroup{}
	for w := 0; w < maxThreads; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(th.positions) {
			hi = len(th.positions)
		}
		if lo >= hi {
			break
		}
		sums[w] = make([]float32, n)
		weights[w] = make([]float32, n)
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if err := th.reconstructPatch(i, lambda, mode, sums[w], weights[w]); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, lo, hi)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := th.win.CloneShape()
	for w := 0; w < maxThreads; w++ {
		if sums[w] == nil {
			continue
		}
		if w == 0 {
			continue
		}
		for i := 0; i < n; i++ {
			sums[0][i] += sums[w][i]
			weights[0][i] += weights[w][i]
		}
	}
	for i := 0; i < n; i++ {
		v := sums[0][i] / weights[0][i]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			v = 0
		}
		out.Data[i] = v
	}
	return out, nil
}

func (th *Thresholder) reconstructPatch(i int, lambda float64, mode Mode, sum, weight []float32) error {
	d := th.svds[i]
	if d.u == nil {
		var err error
		if d, err = decompose(th.casorati(th.positions[i])); err != nil {
			return fmt.Errorf("patch %d: %s", i, err.Error())
		}
	}
	sThresh := thresholdValues(d.s, lambda, mode)

	var tmp, block mat.Dense
	tmp.Mul(d.u, mat.NewDiagDense(len(sThresh), sThresh))
	block.Mul(&tmp, d.v.T())

	bs := th.patchSize
	for t := int32(0); t < th.win.Nt; t++ {
		px, py := th.field.Pos(th.positions[i], t)
		r := 0
		for dy := int32(0); dy < bs; dy++ {
			off := (py+dy)*th.win.Nx + px
			for dx := int32(0); dx < bs; dx++ {
				sum[off+dx+t*th.win.Nx*th.win.Ny] += float32(block.At(r, int(t)))
				weight[off+dx+t*th.win.Nx*th.win.Ny]++
				r++
			}
		}
	}
	return nil
}
