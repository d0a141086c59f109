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

package cube

import (
	"math"
	"path/filepath"
	"testing"
)

func TestNewCubeFromDataChecksLength(t *testing.T) {
	if _, err := NewCubeFromData(4, 4, 2, make([]float32, 31)); err == nil {
		t.Fatal("expected a length mismatch error")
	}
	c, err := NewCubeFromData(4, 4, 2, make([]float32, 32))
	if err != nil {
		t.Fatal(err)
	}
	if c.Nx != 4 || c.Ny != 4 || c.Nt != 2 {
		t.Fatalf("unexpected dimensions %s", c.DimensionsToString())
	}
}

func TestAtSetLayout(t *testing.T) {
	c := NewCube(3, 4, 2)
	c.Set(1, 2, 1, 42)
	if c.At(1, 2, 1) != 42 {
		t.Fatal("At does not read back Set")
	}
	// x varies fastest, then y, then t
	if c.Data[1+3*(2+4*1)] != 42 {
		t.Fatal("unexpected memory layout")
	}
}

func TestFrameAliasesData(t *testing.T) {
	c := NewCube(2, 2, 3)
	frame := c.Frame(1)
	frame[3] = 7
	if c.At(1, 1, 1) != 7 {
		t.Fatal("Frame must alias the cube data")
	}
}

func TestSliceCopies(t *testing.T) {
	c := NewCube(2, 2, 4)
	for i := range c.Data {
		c.Data[i] = float32(i)
	}
	s := c.Slice(1, 3)
	if s.Nt != 2 {
		t.Fatalf("unexpected slice length %d", s.Nt)
	}
	if s.At(0, 0, 0) != c.At(0, 0, 1) {
		t.Fatal("slice content wrong")
	}
	s.Data[0] = -1
	if c.At(0, 0, 1) == -1 {
		t.Fatal("Slice must not alias the cube data")
	}
}

func TestTIFFRoundTrip(t *testing.T) {
	c := NewCube(8, 6, 2)
	for y := int32(0); y < c.Ny; y++ {
		for x := int32(0); x < c.Nx; x++ {
			c.Set(x, y, 0, float32(x+y*8))
			c.Set(x, y, 1, float32(47-x-y*8))
		}
	}

	pattern := filepath.Join(t.TempDir(), "frame%04d.tif")
	if err := c.WriteSequenceTIFF16(pattern, 0, 47, 1.0, nil); err != nil {
		t.Fatal(err)
	}

	fileNames, err := GlobSequence([]string{filepath.Join(filepath.Dir(pattern), "*.tif")})
	if err != nil {
		t.Fatal(err)
	}
	if len(fileNames) != 2 {
		t.Fatalf("expected 2 files, got %d", len(fileNames))
	}

	back, err := LoadSequenceTIFF(fileNames, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !back.EqualShape(c) {
		t.Fatalf("shape %s differs from %s", back.DimensionsToString(), c.DimensionsToString())
	}

	// written values scale [0,47] to the 16-bit range
	scale := float64(65535) / 47
	for i := range c.Data {
		expected := math.Floor(float64(c.Data[i]) * scale)
		if d := math.Abs(float64(back.Data[i]) - expected); d > 1 {
			t.Fatalf("sample %d: got %f expected %f", i, back.Data[i], expected)
		}
	}
}

func TestGlobSequenceRejectsNoMatches(t *testing.T) {
	if _, err := GlobSequence([]string{filepath.Join(t.TempDir(), "*.tif")}); err == nil {
		t.Fatal("expected an error for an empty pattern")
	}
}
