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

// Package cube holds the 3D (x,y,t) image sequence type and its frame I/O.
package cube

import (
	"fmt"

	"github.com/pguresvt/pguresvt/internal/stats"
)

// A 3D intensity volume indexed by (x,y,t): x and y spatial, t the frame index.
// Data is stored column-major, x varying fastest, then y, then t; that is,
// sample (x,y,t) lives at Data[x + Nx*(y + Ny*t)]. All frames share the same
// spatial dimensions. This layout is the documented engine contract for both
// inputs and outputs
type Cube struct {
	Nx, Ny, Nt int32
	Data       []float32
}

// Creates a cube of the given dimensions with zeroed data
func NewCube(nx, ny, nt int32) *Cube {
	return &Cube{
		Nx:   nx,
		Ny:   ny,
		Nt:   nt,
		Data: make([]float32, int(nx)*int(ny)*int(nt)),
	}
}

// Creates a cube of the given dimensions wrapping the given data without copying.
// Returns an error if the data length does not match the dimensions
func NewCubeFromData(nx, ny, nt int32, data []float32) (*Cube, error) {
	if int(nx)*int(ny)*int(nt) != len(data) {
		return nil, fmt.Errorf("data length %d does not match dimensions %dx%dx%d", len(data), nx, ny, nt)
	}
	return &Cube{Nx: nx, Ny: ny, Nt: nt, Data: data}, nil
}

// Creates a deep copy of the cube
func (c *Cube) Clone() *Cube {
	d := NewCube(c.Nx, c.Ny, c.Nt)
	copy(d.Data, c.Data)
	return d
}

// Creates a zeroed cube with the same dimensions
func (c *Cube) CloneShape() *Cube {
	return NewCube(c.Nx, c.Ny, c.Nt)
}

// Returns the sample at (x,y,t)
func (c *Cube) At(x, y, t int32) float32 {
	return c.Data[x+c.Nx*(y+c.Ny*t)]
}

// Sets the sample at (x,y,t)
func (c *Cube) Set(x, y, t int32, v float32) {
	c.Data[x+c.Nx*(y+c.Ny*t)] = v
}

// Returns the data of frame t as a slice aliasing the cube storage
func (c *Cube) Frame(t int32) []float32 {
	size := int(c.Nx) * int(c.Ny)
	return c.Data[size*int(t) : size*int(t+1)]
}

// Returns a deep copy of the sub-sequence of frames [from,to)
func (c *Cube) Slice(from, to int32) *Cube {
	d := NewCube(c.Nx, c.Ny, to-from)
	size := int(c.Nx) * int(c.Ny)
	copy(d.Data, c.Data[size*int(from):size*int(to)])
	return d
}

// Returns true if the other cube has identical dimensions
func (c *Cube) EqualShape(d *Cube) bool {
	return c.Nx == d.Nx && c.Ny == d.Ny && c.Nt == d.Nt
}

// Returns the minimum and maximum sample value
func (c *Cube) MinMax() (min, max float32) {
	return stats.MinMax(c.Data)
}

// Returns the mean sample value
func (c *Cube) Mean() float32 {
	return stats.Mean(c.Data)
}

// Returns a human-readable dimension string for log output
func (c *Cube) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", c.Nx, c.Ny, c.Nt)
}
