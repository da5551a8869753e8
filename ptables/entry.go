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

// Package ptables decodes x86-64 4-level paging structures out of a physical
// memory image and walks them into an ordered stream of leaf mappings.
package ptables

const (
	// PageSize4K Size of a normal page and of every paging structure
	PageSize4K = 0x1000

	// EntriesPerTable Number of 64-bit entries per paging structure
	EntriesPerTable = PageSize4K / 8
)

// PageAlign Aligns an address down to a page boundary
func PageAlign(address uint64) uint64 {
	return address &^ (PageSize4K - 1)
}

// PageOffset Extracts the page offset off an address
func PageOffset(address uint64) uint64 {
	return address & (PageSize4K - 1)
}

// AddressFromPfn Converts a page frame number into a physical address
func AddressFromPfn(pfn uint64) uint64 {
	return pfn * PageSize4K
}

// SubPage Returns the address of the idx-th 4KiB unit inside a mapping
// starting at base
func SubPage(base, idx uint64) uint64 {
	return base + idx*PageSize4K
}

// Entry A hardware-format page table entry at any of the four levels (PML4E,
// PDPTE, PDE or PTE). The zero value is a non-present entry.
type Entry uint64

// Present Bit 0
func (e Entry) Present() bool { return e&1 != 0 }

// Write Bit 1
func (e Entry) Write() bool { return (e>>1)&1 != 0 }

// UserAccessible Bit 2
func (e Entry) UserAccessible() bool { return (e>>2)&1 != 0 }

// WriteThrough Bit 3
func (e Entry) WriteThrough() bool { return (e>>3)&1 != 0 }

// CacheDisable Bit 4
func (e Entry) CacheDisable() bool { return (e>>4)&1 != 0 }

// Accessed Bit 5
func (e Entry) Accessed() bool { return (e>>5)&1 != 0 }

// Dirty Bit 6
func (e Entry) Dirty() bool { return (e>>6)&1 != 0 }

// LargePage Bit 7; only meaningful at the PDPT and PD levels
func (e Entry) LargePage() bool { return (e>>7)&1 != 0 }

// Available Bits 8-11, free for software use
func (e Entry) Available() uint64 { return uint64(e>>8) & 0xf }

// PageFrameNumber Bits 12-47; only meaningful when the entry is present
func (e Entry) PageFrameNumber() uint64 { return uint64(e>>12) & 0xfffffffff }

// ReservedForHardware Bits 48-51
func (e Entry) ReservedForHardware() uint64 { return uint64(e>>48) & 0xf }

// ReservedForSoftware Bits 52-62
func (e Entry) ReservedForSoftware() uint64 { return uint64(e>>52) & 0x7ff }

// NoExecute Bit 63
func (e Entry) NoExecute() bool { return (e>>63)&1 != 0 }
