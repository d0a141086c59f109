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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/image/tiff"
)

// Reads a single grayscale TIFF frame. Color images are converted to
// luminance via the Gray16 color model
func ReadFrameTIFF(fileName string) (width, height int32, data []float32, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return 0, 0, nil, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	img, err := tiff.Decode(reader)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%s: %s", fileName, err.Error())
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data = make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			data[y*w+x] = float32(c.Y)
		}
	}
	return int32(w), int32(h), data, nil
}

// Expands glob patterns into a sorted list of frame file names
func GlobSequence(patterns []string) ([]string, error) {
	var fileNames []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %s", pattern, err.Error())
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no files match", pattern)
		}
		fileNames = append(fileNames, matches...)
	}
	sort.Strings(fileNames)
	return fileNames, nil
}

// Loads a sequence of equally sized grayscale TIFF frames into a cube,
// one file per frame, in the given order
func LoadSequenceTIFF(fileNames []string, logWriter io.Writer) (*Cube, error) {
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no input frames given")
	}

	var c *Cube
	for i, fileName := range fileNames {
		w, h, data, err := ReadFrameTIFF(fileName)
		if err != nil {
			return nil, err
		}
		if c == nil {
			c = NewCube(w, h, int32(len(fileNames)))
		} else if w != c.Nx || h != c.Ny {
			return nil, fmt.Errorf("%s: frame dimensions %dx%d differ from first frame %dx%d",
				fileName, w, h, c.Nx, c.Ny)
		}
		copy(c.Frame(int32(i)), data)
		if logWriter != nil {
			fmt.Fprintf(logWriter, "%d: Loaded %dx%d frame from %s\n", i, w, h, fileName)
		}
	}
	return c, nil
}

// Writes frame t to a 16-bit grayscale TIFF, scaling [min,max] to the full
// 16-bit range with the given gamma.
func (c *Cube) WriteFrameTIFF16ToFile(fileName string, t int32, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return c.WriteFrameTIFF16(writer, t, min, max, gamma)
}

// Writes frame t to a 16-bit grayscale TIFF, scaling [min,max] to the full
// 16-bit range with the given gamma.
func (c *Cube) WriteFrameTIFF16(writer io.Writer, t int32, min, max, gamma float32) error {
	width, height := int(c.Nx), int(c.Ny)
	img := image.NewGray16(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1 / (max - min)
	gammaInv := float64(1.0 / gamma)
	frame := c.Frame(t)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := frame[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Writes all frames as 16-bit grayscale TIFFs using the given filename
// pattern, e.g. "out%04d.tif"
func (c *Cube) WriteSequenceTIFF16(pattern string, min, max, gamma float32, logWriter io.Writer) error {
	for t := int32(0); t < c.Nt; t++ {
		fileName := fmt.Sprintf(pattern, t)
		if err := c.WriteFrameTIFF16ToFile(fileName, t, min, max, gamma); err != nil {
			return err
		}
		if logWriter != nil {
			fmt.Fprintf(logWriter, "%d: Wrote %dx%d frame to %s\n", t, c.Nx, c.Ny, fileName)
		}
	}
	return nil
}
