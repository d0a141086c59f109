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

package pre

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/pguresvt/pguresvt/internal/cube"
)

func TestCorrectHotPixels(t *testing.T) {
	c := cube.NewCube(16, 16, 2)
	rng := fastrand.RNG{}
	rng.Seed(123)
	for i := range c.Data {
		c.Data[i] = 10 + float32(rng.Uint32n(100))/100.0 // mild texture around 10
	}
	c.Set(5, 5, 0, 1000) // hot pixel
	c.Set(9, 2, 1, 1000)

	numFixed := CorrectHotPixels(c, 10)
	if numFixed < 2 {
		t.Fatalf("fixed %d pixels, expect at least the 2 hot ones", numFixed)
	}
	if c.At(5, 5, 0) > 12 || c.At(9, 2, 1) > 12 {
		t.Errorf("hot pixels not replaced: %f %f", c.At(5, 5, 0), c.At(9, 2, 1))
	}
}

func TestReferenceLeavesInputUntouched(t *testing.T) {
	c := cube.NewCube(8, 8, 3)
	for i := range c.Data {
		c.Data[i] = float32(i % 7)
	}
	orig := c.Clone()

	ref, err := Reference(c, 3, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ref.EqualShape(c) {
		t.Fatalf("reference shape %s differs from input %s", ref.DimensionsToString(), c.DimensionsToString())
	}
	for i := range c.Data {
		if math.Abs(float64(c.Data[i]-orig.Data[i])) > 0 {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestReferenceRejectsEvenMedian(t *testing.T) {
	c := cube.NewCube(8, 8, 1)
	if _, err := Reference(c, 4, 10, nil); err == nil {
		t.Errorf("expected error for even median window")
	}
}
