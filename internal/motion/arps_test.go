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

package motion

import (
	"testing"

	"github.com/valyala/fastrand"

	"github.com/pguresvt/pguresvt/internal/cube"
)

// Sequence whose content translates by one pixel in x per frame, sampled
// from a larger random texture so blocks are distinctive and the true match
// is an exact zero of the block cost
func shiftedCube(nx, ny, nt int32) *cube.Cube {
	margin := nt
	tw := nx + 2*margin
	tex := make([]float32, tw*ny)
	rng := fastrand.RNG{}
	rng.Seed(42)
	for i := range tex {
		tex[i] = float32(rng.Uint32n(1000))
	}

	c := cube.NewCube(nx, ny, nt)
	for t := int32(0); t < nt; t++ {
		frame := c.Frame(t)
		for y := int32(0); y < ny; y++ {
			for x := int32(0); x < nx; x++ {
				frame[y*nx+x] = tex[y*tw+x+margin-t]
			}
		}
	}
	return c
}

func TestEstimateRecoversKnownShift(t *testing.T) {
	c := shiftedCube(32, 32, 3)
	center := int32(1)
	f := Estimate(c, center, 4, 7)

	checked := 0
	for it := int32(0); it < f.NumPositions(); it++ {
		px, py := f.Grid(it)
		// stay clear of the borders where the true match leaves the frame
		if px < 2 || py < 2 || px > f.NumX-3 || py > f.NumY-3 {
			continue
		}
		if x, y := f.Pos(it, center); x != px || y != py {
			t.Fatalf("center frame position %d: got %d,%d expected %d,%d", it, x, y, px, py)
		}
		if x, y := f.Pos(it, 2); x != px+1 || y != py {
			t.Errorf("forward position %d: got %d,%d expected %d,%d", it, x, y, px+1, py)
		}
		if x, y := f.Pos(it, 0); x != px-1 || y != py {
			t.Errorf("backward position %d: got %d,%d expected %d,%d", it, x, y, px-1, py)
		}
		checked++
	}
	if checked == 0 {
		t.Fatal("no interior positions checked")
	}
}

func TestEstimateStaticSequenceKeepsZeroMotion(t *testing.T) {
	c := cube.NewCube(16, 16, 5)
	for i := range c.Data {
		c.Data[i] = 7
	}
	f := Estimate(c, 2, 4, 7)
	for it := int32(0); it < f.NumPositions(); it++ {
		px, py := f.Grid(it)
		for tt := int32(0); tt < c.Nt; tt++ {
			if x, y := f.Pos(it, tt); x != px || y != py {
				t.Fatalf("position %d frame %d: moved to %d,%d from %d,%d", it, tt, x, y, px, py)
			}
		}
	}
}

func TestFieldBounds(t *testing.T) {
	c := shiftedCube(16, 16, 3)
	f := Estimate(c, 1, 4, 7)
	for it := int32(0); it < f.NumPositions(); it++ {
		for tt := int32(0); tt < c.Nt; tt++ {
			x, y := f.Pos(it, tt)
			if x < 0 || y < 0 || x+f.BlockSize > c.Nx || y+f.BlockSize > c.Ny {
				t.Fatalf("position %d frame %d out of frame: %d,%d", it, tt, x, y)
			}
		}
	}
}
