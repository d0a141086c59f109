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
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Endpoints of the perceptual false-color gradient used for JPEG previews
var previewLow = colorful.Color{R: 0.05, G: 0.05, B: 0.35}
var previewHigh = colorful.Color{R: 1.00, G: 0.95, B: 0.30}

// Writes frame t as an 8-bit false-color JPEG preview, scaling [min,max]
// to the color gradient with the given gamma.
func (c *Cube) WritePreviewJPGToFile(fileName string, t int32, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return c.WritePreviewJPG(writer, t, min, max, gamma, quality)
}

// Writes frame t as an 8-bit false-color JPEG preview, scaling [min,max]
// to the color gradient with the given gamma.
func (c *Cube) WritePreviewJPG(writer io.Writer, t int32, min, max, gamma float32, quality int) error {
	width, height := int(c.Nx), int(c.Ny)
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	scale := 1.0 / (max - min)
	gammaInv := float64(1.0 / gamma)
	frame := c.Frame(t)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := frame[yoffset+x]
			gray = (gray - min) * scale
			// replace NaNs with zeros for export, else JPG output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			col := previewLow.BlendLab(previewHigh, float64(gray)).Clamped()
			r, g, b := col.RGB255()
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
