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

package noise

import (
	"math"
	"testing"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/sim"
)

func TestParseParams(t *testing.T) {
	if _, supplied, err := ParseParams(-1, -1, -1); err != nil || supplied {
		t.Errorf("all-negative should request estimation, got supplied=%v err=%v", supplied, err)
	}
	m, supplied, err := ParseParams(0.1, 0.2, 0.3)
	if err != nil || !supplied {
		t.Fatalf("all-supplied should pass, got supplied=%v err=%v", supplied, err)
	}
	if m.Alpha != 0.1 || m.Mu != 0.2 || m.Sigma != 0.3 {
		t.Errorf("parameters not taken verbatim: %v", m)
	}
	if _, _, err := ParseParams(0.1, -1, 0.3); err == nil {
		t.Errorf("partial specification should fail")
	}
	if _, _, err := ParseParams(-1, 0.0, -1); err == nil {
		t.Errorf("partial specification should fail")
	}
}

// Tiled test image rich in homogeneous regions, with a dark band for the
// offset estimate and a linear intensity ramp elsewhere
func tiledCube(nx, ny, nt int32) *cube.Cube {
	c := cube.NewCube(nx, ny, nt)
	tiles := (nx / 16) * (ny / 16)
	for t := int32(0); t < nt; t++ {
		frame := c.Frame(t)
		for y := int32(0); y < ny; y++ {
			for x := int32(0); x < nx; x++ {
				tile := (y/16)*(nx/16) + x/16
				v := float32(0)
				if tile >= tiles/8 {
					v = 2 * float32(tile-tiles/8) / float32(tiles-tiles/8)
				}
				frame[y*nx+x] = v
			}
		}
	}
	return c
}

func TestEstimateRoundTrip(t *testing.T) {
	alpha, mu, sigma := float32(0.1), float32(0.1), float32(0.1)
	clean := tiledCube(128, 128, 4)

	noisy, err := sim.PoissonGaussianRaw(clean, alpha, mu, sigma, 1234)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Estimate(noisy)
	if err != nil {
		t.Fatal(err)
	}

	if rel := math.Abs(float64(m.Alpha-alpha)) / float64(alpha); rel > 0.2 {
		t.Errorf("alpha %f, expect %f within 20%%", m.Alpha, alpha)
	}
	if math.Abs(float64(m.Mu-mu)) > 0.05 {
		t.Errorf("mu %f, expect %f within 0.05", m.Mu, mu)
	}
	if rel := math.Abs(float64(m.Sigma-sigma)) / float64(sigma); rel > 0.25 {
		t.Errorf("sigma %f, expect %f within 25%%", m.Sigma, sigma)
	}
}

func TestEstimateFrameRejectsNonSquare(t *testing.T) {
	data := make([]float32, 32*16)
	if _, err := EstimateFrame(data, 32); err == nil {
		t.Errorf("expected error for non-square frame")
	}
}

func TestEstimateFrameRejectsNonPowerOfTwo(t *testing.T) {
	data := make([]float32, 24*24)
	if _, err := EstimateFrame(data, 24); err == nil {
		t.Errorf("expected error for non-power-of-two side")
	}
}

func TestEstimateFrameRejectsTinyFrame(t *testing.T) {
	data := make([]float32, 8*8)
	if _, err := EstimateFrame(data, 8); err == nil {
		t.Errorf("expected error for side below two leaf blocks")
	}
}
