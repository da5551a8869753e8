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

package ptables

import (
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PageProvider Resolves a physical address to the 4KiB page backing it, or
// reports that the page is not resident in the memory image.
type PageProvider interface {
	GetPhysicalPage(physicalAddress uint64) ([]byte, bool)
}

// PageSize The size of a leaf mapping
type PageSize uint8

const (
	// Normal A 4KiB page mapped by a PTE
	Normal PageSize = iota
	// Large A 2MiB page mapped by a PDE with LargePage set
	Large
	// Huge A 1GiB page mapped by a PDPTE with LargePage set
	Huge
)

// Units Number of 4KiB units the mapping spans
func (s PageSize) Units() uint64 {
	switch s {
	case Huge:
		return (1024 * 1024 * 1024) / PageSize4K
	case Large:
		return (1024 * 1024 * 2) / PageSize4K
	default:
		return 1
	}
}

// String Returns the size name
func (s PageSize) String() string {
	switch s {
	case Huge:
		return "huge"
	case Large:
		return "large"
	default:
		return "normal"
	}
}

// TranslationChain The 2-4 paging entries that resolve one leaf mapping,
// each with the physical address it was read from, plus the resulting
// physical and virtual base addresses. Produced fresh by every walker step
// and owned by the caller. Pde/Pte are zero for mappings that terminate
// above their level.
type TranslationChain struct {
	Pml4e        Entry
	Pml4eAddress uint64

	Pdpte        Entry
	PdpteAddress uint64

	Pde        Entry
	PdeAddress uint64

	Pte        Entry
	PteAddress uint64

	Pa   uint64
	Va   uint64
	Size PageSize
}

// Class Classifies the chain's protection attributes
func (c *TranslationChain) Class() AccessClass {
	return Classify(c.Pml4e, c.Pdpte, c.Pde, c.Pte)
}

// level One cursor of the walker: the physical address of the paging
// structure currently loaded at this depth, its decoded entries, and the
// index of the next entry to visit.
type level struct {
	addr    uint64
	entries [EntriesPerTable]Entry
	idx     int
}

func (l *level) entry() Entry {
	return l.entries[l.idx]
}

// entryAddress Physical address the current entry was read from
func (l *level) entryAddress() uint64 {
	return l.addr + uint64(l.idx)*8
}

// Walker A resumable, depth-first iterator over the 4-level paging
// hierarchy rooted at a directory table base. Each Next call yields exactly
// one present leaf mapping, in strictly increasing virtual address order.
// Not safe for concurrent use.
type Walker struct {
	provider PageProvider

	directoryTableBase uint64

	pml4 level
	pdpt level
	pd   level
	pt   level

	skippedTables uint64
}

// invalidAddr Marks a level that has no table loaded yet. Physical address
// zero is a legal table location, so it cannot serve as the sentinel.
const invalidAddr = ^uint64(0)

// NewWalker Fetches the root PML4 table and positions the walker at the
// first entry. A directory table base that is not resident in the memory
// image is fatal since no mapping can be resolved without it.
func NewWalker(provider PageProvider, directoryTableBase uint64) (*Walker, error) {
	w := &Walker{
		provider:           provider,
		directoryTableBase: PageAlign(directoryTableBase),
	}
	w.pdpt.addr = invalidAddr
	w.pd.addr = invalidAddr
	w.pt.addr = invalidAddr

	page, ok := provider.GetPhysicalPage(w.directoryTableBase)
	if !ok {
		return nil, errors.Errorf("PML4 %#x not available in the memory image", w.directoryTableBase)
	}

	w.pml4.addr = w.directoryTableBase
	decodeTable(page, &w.pml4.entries)

	return w, nil
}

// SkippedTables Number of intermediate tables that were not resident and
// whose subtrees therefore contributed no mappings
func (w *Walker) SkippedTables() uint64 {
	return w.skippedTables
}

// Next Advances the walk to the next present leaf mapping and returns its
// translation chain, or false once every table has been exhausted. Missing
// intermediate tables are logged and skipped; the walk goes on with the
// next entry of the parent table.
func (w *Walker) Next() (*TranslationChain, bool) {
	for ; w.pml4.idx < EntriesPerTable; w.pml4.idx++ {
		pml4e := w.pml4.entry()
		if !pml4e.Present() {
			continue
		}

		if !w.loadTable(&w.pdpt, AddressFromPfn(pml4e.PageFrameNumber()), "PDPT") {
			continue
		}

		for ; w.pdpt.idx < EntriesPerTable; w.pdpt.idx++ {
			pdpte := w.pdpt.entry()
			if !pdpte.Present() {
				continue
			}

			if pdpte.LargePage() {
				// Huge page (1GiB).
				chain := w.makeChain(Huge)
				w.pdpt.idx++
				return chain, true
			}

			if !w.loadTable(&w.pd, AddressFromPfn(pdpte.PageFrameNumber()), "PD") {
				continue
			}

			for ; w.pd.idx < EntriesPerTable; w.pd.idx++ {
				pde := w.pd.entry()
				if !pde.Present() {
					continue
				}

				if pde.LargePage() {
					// Large page (2MiB).
					chain := w.makeChain(Large)
					w.pd.idx++
					return chain, true
				}

				if !w.loadTable(&w.pt, AddressFromPfn(pde.PageFrameNumber()), "PT") {
					continue
				}

				for ; w.pt.idx < EntriesPerTable; w.pt.idx++ {
					if !w.pt.entry().Present() {
						continue
					}

					chain := w.makeChain(Normal)
					w.pt.idx++
					return chain, true
				}
			}
		}
	}

	return nil, false
}

// loadTable Loads the paging structure at addr into the given level. The
// level's cursor is reset only when the table differs from the one already
// loaded there, so a walk resumed mid-table picks up where it left off
// instead of re-scanning from index 0.
func (w *Walker) loadTable(l *level, addr uint64, name string) bool {
	if l.addr == addr {
		return true
	}

	page, ok := w.provider.GetPhysicalPage(addr)
	if !ok {
		w.skippedTables++
		log.Warnf("%s:%#x not available in the memory image, skipping", name, addr)
		return false
	}

	l.addr = addr
	l.idx = 0
	decodeTable(page, &l.entries)

	return true
}

func decodeTable(page []byte, entries *[EntriesPerTable]Entry) {
	for i := 0; i < EntriesPerTable; i++ {
		entries[i] = Entry(binary.LittleEndian.Uint64(page[i*8 : i*8+8]))
	}
}

// makeChain Builds the translation chain for the walker's current cursor
// position.
func (w *Walker) makeChain(size PageSize) *TranslationChain {
	chain := &TranslationChain{
		Pml4e:        w.pml4.entry(),
		Pml4eAddress: w.pml4.entryAddress(),
		Pdpte:        w.pdpt.entry(),
		PdpteAddress: w.pdpt.entryAddress(),
		Size:         size,
	}

	switch size {
	case Huge:
		chain.Pa = AddressFromPfn(chain.Pdpte.PageFrameNumber())
		chain.Va = NewVirtualAddress(uint64(w.pml4.idx), uint64(w.pdpt.idx), 0, 0).U64()
	case Large:
		chain.Pde = w.pd.entry()
		chain.PdeAddress = w.pd.entryAddress()
		chain.Pa = AddressFromPfn(chain.Pde.PageFrameNumber())
		chain.Va = NewVirtualAddress(uint64(w.pml4.idx), uint64(w.pdpt.idx), uint64(w.pd.idx), 0).U64()
	default:
		chain.Pde = w.pd.entry()
		chain.PdeAddress = w.pd.entryAddress()
		chain.Pte = w.pt.entry()
		chain.PteAddress = w.pt.entryAddress()
		chain.Pa = AddressFromPfn(chain.Pte.PageFrameNumber())
		chain.Va = NewVirtualAddress(uint64(w.pml4.idx), uint64(w.pdpt.idx), uint64(w.pd.idx), uint64(w.pt.idx)).U64()
	}

	return chain
}
