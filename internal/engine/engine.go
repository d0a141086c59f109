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

// Package engine drives PGURE-SVT denoising of an image sequence: for every
// frame it extracts a temporal window, estimates the noise model, estimates
// block motion on a stabilized reference, thresholds the singular values of
// all motion-compensated patch matrices and writes the reconstructed center
// frame back into the output sequence
package engine

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/klauspost/cpuid"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/motion"
	"github.com/pguresvt/pguresvt/internal/noise"
	"github.com/pguresvt/pguresvt/internal/pre"
	"github.com/pguresvt/pguresvt/internal/svt"
)

// Upper bound on risk functional evaluations per frame during threshold
// optimization
const maxRiskEvals = 1000

// Config holds all denoising parameters. Negative alpha, mu and sigma
// request per-window noise estimation; they must be given all-or-nothing
type Config struct {
	PatchSize    int32   `json:"patchsize" yaml:"patchsize"`
	PatchOverlap int32   `json:"patchoverlap" yaml:"patchoverlap"`
	Length       int32   `json:"length" yaml:"length"`
	Optimize     bool    `json:"optimize" yaml:"optimize"`
	Threshold    float32 `json:"threshold" yaml:"threshold"`
	Alpha        float32 `json:"alpha" yaml:"alpha"`
	Mu           float32 `json:"mu" yaml:"mu"`
	Sigma        float32 `json:"sigma" yaml:"sigma"`
	ArpsSize     int32   `json:"arpssize" yaml:"arpssize"`
	Tol          float64 `json:"tol" yaml:"tol"`
	Median       int32   `json:"median" yaml:"median"`
	HotPixel     float32 `json:"hotpixelthreshold" yaml:"hotpixelthreshold"`
	NumThreads   int     `json:"numthreads" yaml:"numthreads"`
}

// NewConfig returns the default parameter set
func NewConfig() *Config {
	return &Config{
		PatchSize:    4,
		PatchOverlap: 1,
		Length:       15,
		Optimize:     true,
		Threshold:    0.5,
		Alpha:        -1,
		Mu:           -1,
		Sigma:        -1,
		ArpsSize:     7,
		Tol:          1e-7,
		Median:       5,
		HotPixel:     10,
	}
}

// Number of hardware threads available to the worker pool
func HardwareThreads() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Validate reports the first configuration error, before any processing
func (cfg *Config) Validate() error {
	if cfg.PatchSize < 1 {
		return fmt.Errorf("patch size must be positive, got %d", cfg.PatchSize)
	}
	if cfg.PatchOverlap < 1 || cfg.PatchOverlap > cfg.PatchSize {
		return fmt.Errorf("patch overlap %d must be in [1, %d]", cfg.PatchOverlap, cfg.PatchSize)
	}
	if cfg.Length < 1 || cfg.Length%2 == 0 {
		return fmt.Errorf("time window length must be odd and positive, got %d", cfg.Length)
	}
	if cfg.Length > cfg.PatchSize*cfg.PatchSize {
		return fmt.Errorf("time window length %d exceeds patch area %d", cfg.Length, cfg.PatchSize*cfg.PatchSize)
	}
	if cfg.ArpsSize < 1 || cfg.ArpsSize%2 == 0 {
		return fmt.Errorf("motion search size must be odd and positive, got %d", cfg.ArpsSize)
	}
	if cfg.Median < 1 || cfg.Median%2 == 0 {
		return fmt.Errorf("median filter size must be odd and positive, got %d", cfg.Median)
	}
	if cfg.Tol <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", cfg.Tol)
	}
	if !cfg.Optimize && (cfg.Threshold < 0 || cfg.Threshold > 1) {
		return fmt.Errorf("threshold %g outside [0,1]", cfg.Threshold)
	}
	if cfg.NumThreads < 0 {
		return fmt.Errorf("thread count must not be negative, got %d", cfg.NumThreads)
	}
	if hw := HardwareThreads(); cfg.NumThreads > hw {
		return fmt.Errorf("requested %d threads but only %d hardware threads available", cfg.NumThreads, hw)
	}
	if _, _, err := noise.ParseParams(cfg.Alpha, cfg.Mu, cfg.Sigma); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) threads() int {
	if cfg.NumThreads > 0 {
		return cfg.NumThreads
	}
	return HardwareThreads()
}

// Denoise runs the full pipeline and returns a new sequence of identical
// shape. The input is not modified. Progress is reported to logWriter as a
// per-frame table matching the estimated noise model and chosen threshold
func Denoise(c *cube.Cube, cfg *Config, logWriter io.Writer) (*cube.Cube, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, supplied, err := noise.ParseParams(cfg.Alpha, cfg.Mu, cfg.Sigma)
	if err != nil {
		return nil, err
	}
	if c.Nt < cfg.Length {
		return nil, fmt.Errorf("sequence has %d frames but the time window needs %d", c.Nt, cfg.Length)
	}
	if c.Nx < cfg.PatchSize || c.Ny < cfg.PatchSize {
		return nil, fmt.Errorf("frame size %dx%d smaller than patch size %d", c.Nx, c.Ny, cfg.PatchSize)
	}
	if cfg.Optimize && !supplied {
		if err := noise.CheckFrameGeometry(c.Nx, c.Ny); err != nil {
			return nil, err
		}
	}

	// stabilized reference volume, used for motion search only
	filtered, err := pre.Reference(c, cfg.Median, cfg.HotPixel, logWriter)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(logWriter, "Denoising %s sequence with %d threads\n", c.DimensionsToString(), cfg.threads())
	fmt.Fprintf(logWriter, "%5s %9s %9s %9s %9s %9s\n", "Frame", "Gain", "Offset", "Sigma", "Lambda", "Time (s)")

	out := c.CloneShape()
	fw := cfg.Length / 2
	lambda := float64(0)

	for t := int32(0); t < c.Nt; t++ {
		start := time.Now()

		// clamp the window at the sequence ends, reusing the full first and
		// last windows so every frame sees Length frames of context
		from := t - fw
		if t < fw {
			from = 0
		} else if t >= c.Nt-fw {
			from = c.Nt - cfg.Length
		}
		center := t - from

		u := c.Slice(from, from+cfg.Length)
		_, umax := u.MinMax()
		if umax <= 0 {
			continue
		}
		for i := range u.Data {
			u.Data[i] /= umax
		}
		uf := filtered.Slice(from, from+cfg.Length)
		if _, ufmax := uf.MinMax(); ufmax > 0 {
			for i := range uf.Data {
				uf.Data[i] /= ufmax
			}
		}

		m := model
		if cfg.Optimize && !supplied {
			if m, err = noise.Estimate(u); err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
		}

		field := motion.Estimate(uf, center, cfg.PatchSize, cfg.ArpsSize)

		var v *cube.Cube
		if cfg.Optimize {
			p, err := svt.NewPGURE(u, field, cfg.PatchSize, cfg.PatchOverlap, m, uint32(t)+1, cfg.threads())
			if err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
			if t == 0 {
				lambda = float64(u.Mean())
			}
			if lambda, err = p.Optimize(cfg.Tol, lambda, p.MaxSingularValue(), maxRiskEvals); err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
			if v, err = p.DenoiseWindow(lambda, cfg.threads()); err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
		} else {
			th, err := svt.NewThresholder(u, field, cfg.PatchSize, cfg.PatchOverlap)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
			if err := th.Decompose(cfg.threads()); err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
			lambda = float64(cfg.Threshold)
			if v, err = th.Reconstruct(lambda, svt.Hard, cfg.threads()); err != nil {
				return nil, fmt.Errorf("frame %d: %s", t, err.Error())
			}
		}

		src, dst := v.Frame(center), out.Frame(t)
		for i, val := range src {
			dst[i] = val * umax
		}

		fmt.Fprintf(logWriter, "%5d %9.4g %9.4g %9.4g %9.4g %9.3f\n",
			t, m.Alpha, m.Mu, m.Sigma, lambda, time.Since(start).Seconds())
	}
	return out, nil
}
