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

package signal

import "testing"

func TestNewRejectsMismatchedLength(t *testing.T) {
	if _, err := New([]int32{4, 4, 2}, make([]float32, 31)); err == nil {
		t.Fatal("expected a length mismatch error")
	}
	if _, err := New([]int32{4, 0, 2}, nil); err == nil {
		t.Fatal("expected an invalid dimension error")
	}
}

func TestToCubeSqueezesSingletonAxes(t *testing.T) {
	data := make([]float32, 4*3*2)
	for i := range data {
		data[i] = float32(i)
	}
	s, err := New([]int32{1, 4, 3, 1, 2}, data)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.ToCube()
	if err != nil {
		t.Fatal(err)
	}
	if c.Nx != 4 || c.Ny != 3 || c.Nt != 2 {
		t.Fatalf("unexpected dimensions %s", c.DimensionsToString())
	}
	if c.At(1, 2, 1) != data[1+4*(2+3*1)] {
		t.Fatal("data order changed by squeeze")
	}
}

func TestToCubeRejectsWrongRank(t *testing.T) {
	s, err := New([]int32{4, 4}, make([]float32, 16))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToCube(); err == nil {
		t.Fatal("expected a rank error")
	}
	s, err = New([]int32{2, 2, 2, 2}, make([]float32, 16))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ToCube(); err == nil {
		t.Fatal("expected a rank error")
	}
}

func TestFromCubeRoundTrip(t *testing.T) {
	data := make([]float32, 4*3*2)
	for i := range data {
		data[i] = float32(i) * 0.5
	}
	s, err := New([]int32{4, 3, 2}, data)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.ToCube()
	if err != nil {
		t.Fatal(err)
	}
	back := FromCube(c)
	if len(back.Shape) != 3 || back.Shape[0] != 4 || back.Shape[1] != 3 || back.Shape[2] != 2 {
		t.Fatalf("unexpected shape %v", back.Shape)
	}
	for i := range data {
		if back.Data[i] != data[i] {
			t.Fatalf("sample %d changed", i)
		}
	}
}
