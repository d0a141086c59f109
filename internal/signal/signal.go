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

// Package signal translates arbitrary-rank scientific signal arrays into
// the 3D (x,y,t) volume layout of the denoising engine and back
package signal

import (
	"fmt"

	"github.com/pguresvt/pguresvt/internal/cube"
)

// Signal is a dense n-dimensional array with the first axis varying fastest
// in Data
type Signal struct {
	Shape []int32
	Data  []float32
}

// New validates that the data length matches the shape
func New(shape []int32, data []float32) (*Signal, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 1 {
			return nil, fmt.Errorf("invalid signal dimension %d in %v", d, shape)
		}
		n *= int64(d)
	}
	if n != int64(len(data)) {
		return nil, fmt.Errorf("signal shape %v needs %d samples, got %d", shape, n, len(data))
	}
	return &Signal{Shape: shape, Data: data}, nil
}

// Squeeze returns the shape with singleton axes removed. Dropping a
// singleton axis never reorders the underlying data
func (s *Signal) Squeeze() []int32 {
	out := make([]int32, 0, len(s.Shape))
	for _, d := range s.Shape {
		if d != 1 {
			out = append(out, d)
		}
	}
	return out
}

// ToCube reinterprets the signal as an (x,y,t) volume. The signal must be
// three-dimensional after squeezing singleton axes
func (s *Signal) ToCube() (*cube.Cube, error) {
	shape := s.Squeeze()
	if len(shape) != 3 {
		return nil, fmt.Errorf("expected a 3D signal, got shape %v", s.Shape)
	}
	return cube.NewCubeFromData(shape[0], shape[1], shape[2], s.Data)
}

// FromCube wraps a volume as a rank-3 signal sharing the same data
func FromCube(c *cube.Cube) *Signal {
	return &Signal{Shape: []int32{c.Nx, c.Ny, c.Nt}, Data: c.Data}
}
