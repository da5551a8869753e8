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

// Package hilbert maps distances along a Hilbert space-filling curve to 2D
// coordinates and back, following the bit tricks of Hacker's Delight,
// figure 16-8.
package hilbert

// DistanceFromCoordinates Returns the distance along the curve of order
// `order` at which point (x, y) sits
func DistanceFromCoordinates(x, y, order uint32) uint32 {
	var s uint32
	for i := int(order) - 1; i >= 0; i-- {
		xi := (x >> uint(i)) & 1
		yi := (y >> uint(i)) & 1
		if yi == 0 {
			tmp := x
			x = y ^ (-xi)
			y = tmp ^ (-xi)
		}
		s = 4*s + 2*xi + (xi ^ yi)
	}

	return s
}

// CoordinatesFromDistance Returns the (x, y) point sitting at the given
// distance along the curve of order `order`
func CoordinatesFromDistance(dist, order uint32) (uint32, uint32) {
	s := dist | (uint32(0x55555555) << (2 * order))
	sr := (s >> 1) & 0x55555555
	cs := ((s & 0x55555555) + sr) ^ 0x55555555
	cs ^= cs >> 2
	cs ^= cs >> 4
	cs ^= cs >> 8
	cs ^= cs >> 16
	swap := cs & 0x55555555
	comp := (cs >> 1) & 0x55555555
	t := (s & swap) ^ comp
	s ^= sr ^ t ^ (t << 1)
	s &= (uint32(1) << (2 * order)) - 1
	t = (s ^ (s >> 1)) & 0x22222222
	s ^= t ^ (t << 1)
	t = (s ^ (s >> 2)) & 0x0c0c0c0c
	s ^= t ^ (t << 2)
	t = (s ^ (s >> 4)) & 0x00f000f0
	s ^= t ^ (t << 4)
	t = (s ^ (s >> 8)) & 0x0000ff00
	s ^= t ^ (t << 8)

	return s >> 16, s & 0xffff
}

// Width Side length of a curve of the given order
func Width(order uint32) uint64 { return 1 << order }

// Height Side length of a curve of the given order
func Height(order uint32) uint64 { return 1 << order }

// NumberPoints Number of points a curve of the given order visits
func NumberPoints(order uint32) uint64 { return Width(order) * Height(order) }
