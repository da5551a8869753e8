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

// Package tape linearizes the walker's leaf mappings into a dense sequence
// of per-4KiB-unit classifications, with explicit filler for address-space
// gaps.
package tape

import (
	log "github.com/sirupsen/logrus"

	"github.com/vhive-serverless/dumpviz/ptables"
)

// MaxGapCells Hard cap on the number of filler cells synthesized for a
// single gap. Sparse 64-bit address spaces contain multi-terabyte holes
// that would otherwise exhaust memory.
const MaxGapCells = 10000

// Cell The classification of one 4KiB unit of virtual address space.
// Unmapped is a tape-level sentinel, not a paging attribute: the classifier
// never produces it.
type Cell uint8

// Unmapped Filler for a unit no present mapping covers
const Unmapped Cell = 0

// CellOf Converts an access class into its tape cell
func CellOf(class ptables.AccessClass) Cell {
	return Cell(class) + 1
}

// Class Returns the access class of a mapped cell, or false for Unmapped
func (c Cell) Class() (ptables.AccessClass, bool) {
	if c == Unmapped {
		return 0, false
	}

	return ptables.AccessClass(c - 1), true
}

// Tape The dense, gap-filled sequence of cells covering the span from the
// first present mapping to the last. Cell index i corresponds to virtual
// address FirstVa + i*4096.
type Tape struct {
	Cells         []Cell
	FirstVa       uint64
	FillerCells   uint64
	TruncatedGaps uint64
}

// Builder Accumulates walker output into a Tape. Chains must arrive in
// strictly increasing virtual address order, which the walker guarantees.
type Builder struct {
	cells   []Cell
	firstVa uint64
	lastVa  uint64
	started bool

	fillerCells   uint64
	truncatedGaps uint64
}

// NewBuilder Creates an empty tape builder
func NewBuilder() *Builder {
	return &Builder{
		cells: make([]Cell, 0, 500000),
	}
}

// Append Classifies one translation chain and appends one cell per 4KiB
// unit it maps. A jump in virtual address first synthesizes Unmapped cells,
// one per missing unit, truncated at MaxGapCells; no filler precedes the
// very first chain.
func (b *Builder) Append(chain *ptables.TranslationChain) {
	if !b.started {
		b.started = true
		b.firstVa = chain.Va
	} else if chain.Va != b.lastVa+ptables.PageSize4K {
		b.fillGap(chain.Va)
	}

	cell := CellOf(chain.Class())
	units := chain.Size.Units()
	for idx := uint64(0); idx < units; idx++ {
		b.cells = append(b.cells, cell)
		b.lastVa = ptables.SubPage(chain.Va, idx)
	}
}

// fillGap Emits filler from the last emitted unit up to (excluding) va
func (b *Builder) fillGap(va uint64) {
	n := (va-b.lastVa)/ptables.PageSize4K - 1
	if n > MaxGapCells {
		b.truncatedGaps++
		log.Warnf("Huge gap from %#x to %#x, truncating the fill at %d of %d cells", b.lastVa, va, uint64(MaxGapCells), n)
		n = MaxGapCells
	}

	for i := uint64(0); i < n; i++ {
		b.cells = append(b.cells, Unmapped)
	}

	b.fillerCells += n
}

// Finish Returns the accumulated tape
func (b *Builder) Finish() *Tape {
	return &Tape{
		Cells:         b.cells,
		FirstVa:       b.firstVa,
		FillerCells:   b.fillerCells,
		TruncatedGaps: b.truncatedGaps,
	}
}
