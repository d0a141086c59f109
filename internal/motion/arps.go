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

// Package motion implements Adaptive Rood Pattern Search (ARPS) block motion
// estimation over a temporal window.
//
// References:
//
//	"Adaptive rood pattern search for fast block-matching motion
//	estimation", (2002), Nie, Y and Kai-Kuang, M
//	http://dx.doi.org/10.1109/TIP.2002.806251
package motion

import (
	"github.com/pguresvt/pguresvt/internal/cube"
)

// Upper bound on small-pattern refinement steps per block; the
// checked-position matrix already guarantees termination
const maxRefineIters = 256

// Motion-compensated patch positions for every spatial block position and
// every frame of a temporal window. Positions are top-left patch corners,
// clamped to the frame
type Field struct {
	Nx, Ny, Nt int32 // window dimensions
	BlockSize  int32
	Window     int32 // search radius, (arpssize-1)/2
	NumX, NumY int32 // position grid dimensions, Nx-BlockSize+1 etc.

	pos []int32 // 2*numPos*Nt: x,y top-left per (position, frame)
	mot []int32 // 2*numPos*Nt: found motion vector per (position, frame)
}

// Number of block positions in the position grid
func (f *Field) NumPositions() int32 {
	return f.NumX * f.NumY
}

// Grid coordinates of position index it
func (f *Field) Grid(it int32) (px, py int32) {
	return it % f.NumX, it / f.NumX
}

// Motion-compensated top-left corner for position it in frame t
func (f *Field) Pos(it, t int32) (x, y int32) {
	base := 2 * (it + f.NumPositions()*t)
	return f.pos[base], f.pos[base+1]
}

func (f *Field) setPos(it, t, x, y int32) {
	base := 2 * (it + f.NumPositions()*t)
	f.pos[base], f.pos[base+1] = x, y
}

func (f *Field) motion(it, t int32) (mx, my int32) {
	base := 2 * (it + f.NumPositions()*t)
	return f.mot[base], f.mot[base+1]
}

func (f *Field) setMotion(it, t, mx, my int32) {
	base := 2 * (it + f.NumPositions()*t)
	f.mot[base], f.mot[base+1] = mx, my
}

// Estimates motion for every block position of the reference volume,
// chaining outward from the given center frame. arpsSize is the odd side of
// the square search neighborhood. Motion compensation is advisory: where no
// offset improves on zero motion, zero motion is kept
func Estimate(ref *cube.Cube, center, blockSize, arpsSize int32) *Field {
	f := &Field{
		Nx:        ref.Nx,
		Ny:        ref.Ny,
		Nt:        ref.Nt,
		BlockSize: blockSize,
		Window:    (arpsSize - 1) / 2,
		NumX:      ref.Nx - blockSize + 1,
		NumY:      ref.Ny - blockSize + 1,
	}
	numPos := f.NumPositions()
	f.pos = make([]int32, 2*numPos*ref.Nt)
	f.mot = make([]int32, 2*numPos*ref.Nt)

	// center frame blocks sit at their grid positions
	for it := int32(0); it < numPos; it++ {
		px, py := f.Grid(it)
		f.setPos(it, center, px, py)
	}

	// chain forwards, then backwards; the previous pair's motion serves as
	// the adaptive prediction for the next
	for t := center; t < ref.Nt-1; t++ {
		f.estimatePair(ref, t, t+1, t != center)
	}
	for t := center; t > 0; t-- {
		f.estimatePair(ref, t, t-1, t != center)
	}
	return f
}

// Sum of squared differences between the blocks at (ax,ay) in frame a and
// (bx,by) in frame b, normalized by the block area
func (f *Field) blockCost(ref *cube.Cube, a, ax, ay, b, bx, by int32) float64 {
	frameA, frameB := ref.Frame(a), ref.Frame(b)
	bs := f.BlockSize
	sum := float64(0)
	for dy := int32(0); dy < bs; dy++ {
		offA := (ay+dy)*f.Nx + ax
		offB := (by+dy)*f.Nx + bx
		for dx := int32(0); dx < bs; dx++ {
			d := float64(frameA[offA+dx] - frameB[offB+dx])
			sum += d * d
		}
	}
	return sum / float64(bs*bs)
}

// Candidate tracking with the deterministic tie-break: lower cost wins, ties
// prefer the smaller offset magnitude, then the lexicographically smaller
// (dx,dy) offset relative to the grid position
type candidate struct {
	cost   float64
	x, y   int32
	dx, dy int32
}

func (c *candidate) better(than *candidate) bool {
	if c.cost != than.cost {
		return c.cost < than.cost
	}
	cMag := c.dx*c.dx + c.dy*c.dy
	tMag := than.dx*than.dx + than.dy*than.dy
	if cMag != tMag {
		return cMag < tMag
	}
	if c.dx != than.dx {
		return c.dx < than.dx
	}
	return c.dy < than.dy
}

// Estimates one chained frame pair: each block at its grid position in frame
// 'from' is searched for in frame 'to' within the search window. When
// havePred is set, the motion found for the same position in frame 'from' is
// used for adaptive step sizing and as an extra probe
func (f *Field) estimatePair(ref *cube.Cube, from, to int32, havePred bool) {
	wind := f.Window
	side := 2*wind + 1
	checked := make([]bool, side*side)

	for it := int32(0); it < f.NumPositions(); it++ {
		px, py := f.Grid(it)
		for i := range checked {
			checked[i] = false
		}
		mark := func(x, y int32) {
			checked[(y-py+wind)*side+(x-px+wind)] = true
		}
		isChecked := func(x, y int32) bool {
			return checked[(y-py+wind)*side+(x-px+wind)]
		}
		inFrame := func(x, y int32) bool {
			return x >= 0 && x+f.BlockSize <= f.Nx && y >= 0 && y+f.BlockSize <= f.Ny
		}
		inWindow := func(x, y int32) bool {
			return x >= px-wind && x <= px+wind && y >= py-wind && y <= py+wind
		}

		// zero motion is the baseline the search must beat
		best := candidate{cost: f.blockCost(ref, from, px, py, to, px, py), x: px, y: py}
		mark(px, py)

		// large diamond search pattern, with adaptive step size from the
		// predicted motion where available
		stepSize := int32(2)
		probes := [][2]int32{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
		var extra *[2]int32
		if havePred {
			mx, my := f.motion(it, from)
			ax, ay := mx, my
			if ax < 0 {
				ax = -ax
			}
			if ay < 0 {
				ay = -ay
			}
			stepSize = ax
			if ay > ax {
				stepSize = ay
			}
			onRood := (ax == stepSize && ay == 0) || (ax == 0 && ay == stepSize)
			if !onRood && (mx != 0 || my != 0) {
				extra = &[2]int32{mx, my}
			}
		}
		if stepSize > 0 {
			for _, p := range probes {
				x, y := px+p[0]*stepSize, py+p[1]*stepSize
				if !inFrame(x, y) || !inWindow(x, y) {
					continue
				}
				cand := candidate{cost: f.blockCost(ref, from, px, py, to, x, y), x: x, y: y, dx: x - px, dy: y - py}
				if cand.better(&best) {
					best = cand
				}
				mark(x, y)
			}
		}
		if extra != nil {
			x, y := px+extra[0], py+extra[1]
			if inFrame(x, y) && inWindow(x, y) && !isChecked(x, y) {
				cand := candidate{cost: f.blockCost(ref, from, px, py, to, x, y), x: x, y: y, dx: x - px, dy: y - py}
				if cand.better(&best) {
					best = cand
				}
				mark(x, y)
			}
		}

		// small unit rood pattern refinement around the running best
		for iter := 0; iter < maxRefineIters; iter++ {
			improved := false
			cx, cy := best.x, best.y
			for _, p := range probes {
				x, y := cx+p[0], cy+p[1]
				if !inFrame(x, y) || !inWindow(x, y) || isChecked(x, y) {
					continue
				}
				cand := candidate{cost: f.blockCost(ref, from, px, py, to, x, y), x: x, y: y, dx: x - px, dy: y - py}
				if cand.better(&best) {
					best = cand
					improved = true
				}
				mark(x, y)
			}
			if !improved {
				break
			}
		}

		f.setPos(it, to, best.x, best.y)
		f.setMotion(it, to, best.x-px, best.y-py)
	}
}
