// MIT License
//
// Copyright (c) 2023 EASE lab
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package render lays a tape out along a Hilbert curve and writes it as a
// PPM image, one pixel per 4KiB unit.
package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vhive-serverless/dumpviz/hilbert"
	"github.com/vhive-serverless/dumpviz/ptables"
	"github.com/vhive-serverless/dumpviz/tape"
)

// RGB A packed 0xRRGGBB color
type RGB uint32

const (
	White        RGB = 0xffffff
	Black        RGB = 0x000000
	Green        RGB = 0x00ff00
	PaleGreen    RGB = 0xa9ff52
	CanaryYellow RGB = 0xffff99
	Yellow       RGB = 0xffff00
	Purple       RGB = 0xa020f0
	Mauve        RGB = 0xe0b0ff
	Red          RGB = 0xfe0000
	LightRed     RGB = 0xff7f7f
)

// R Red component
func (c RGB) R() uint8 { return uint8(c >> 16) }

// G Green component
func (c RGB) G() uint8 { return uint8(c >> 8) }

// B Blue component
func (c RGB) B() uint8 { return uint8(c) }

// Color Returns the palette color of a tape cell. Unmapped space is black,
// user mappings get the pale colors, kernel mappings the saturated ones.
func Color(cell tape.Cell) RGB {
	class, ok := cell.Class()
	if !ok {
		return Black
	}

	switch class {
	case ptables.UserRead:
		return PaleGreen
	case ptables.UserReadExec:
		return CanaryYellow
	case ptables.UserReadWrite:
		return Mauve
	case ptables.UserReadWriteExec:
		return LightRed
	case ptables.KernelRead:
		return Green
	case ptables.KernelReadExec:
		return Yellow
	case ptables.KernelReadWrite:
		return Purple
	default:
		return Red
	}
}

// Order Picks the Hilbert curve order whose square best fits n cells
func Order(n int) uint32 {
	if n <= 1 {
		return 1
	}

	log2 := uint32(math.Log2(float64(n)))
	order := log2 / 2
	if order == 0 {
		order = 1
	}

	return order
}

// WritePPM Writes the tape as a plain (P3) PPM image laid out along the
// Hilbert curve. Pixels beyond the end of the tape are white.
func WritePPM(w io.Writer, t *tape.Tape) error {
	order := Order(len(t.Cells))
	width := hilbert.Width(order)
	height := hilbert.Height(order)

	log.Infof("%d cells have been materialized; laying them out on a hilbert curve of order %d (%d pixels)",
		len(t.Cells), order, width*height)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P3\n%d %d\n255\n", width, height); err != nil {
		return errors.Wrap(err, "failed to write the image header")
	}

	for y := uint64(0); y < height; y++ {
		for x := uint64(0); x < width; x++ {
			dist := hilbert.DistanceFromCoordinates(uint32(x), uint32(y), order)

			rgb := White
			if uint64(dist) < uint64(len(t.Cells)) {
				rgb = Color(t.Cells[dist])
			}

			if _, err := fmt.Fprintf(bw, "%d %d %d\n", rgb.R(), rgb.G(), rgb.B()); err != nil {
				return errors.Wrap(err, "failed to write a pixel")
			}
		}

		if _, err := fmt.Fprintln(bw); err != nil {
			return errors.Wrap(err, "failed to write a row separator")
		}
	}

	return bw.Flush()
}

// WritePPMFile Renders the tape into the file at path
func WritePPMFile(path string, t *tape.Tape) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer f.Close()

	return WritePPM(f, t)
}
