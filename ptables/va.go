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

// VirtualAddress A 64-bit virtual address decomposed into the four 9-bit
// table indices, the 12-bit page offset and the 16 sign-extended upper bits.
type VirtualAddress uint64

// NewVirtualAddress Builds a canonical virtual address from the four table
// indices. The upper 16 bits are the sign extension of bit 47, so any PML4
// index >= 256 lands in the kernel half of the address space.
func NewVirtualAddress(pml4Idx, pdptIdx, pdIdx, ptIdx uint64) VirtualAddress {
	va := (pml4Idx&0x1ff)<<39 | (pdptIdx&0x1ff)<<30 | (pdIdx&0x1ff)<<21 | (ptIdx&0x1ff)<<12
	if (pml4Idx>>8)&1 != 0 {
		va |= 0xffff << 48
	}

	return VirtualAddress(va)
}

// U64 Returns the raw address
func (va VirtualAddress) U64() uint64 { return uint64(va) }

// Offset Bits 0-11
func (va VirtualAddress) Offset() uint64 { return uint64(va) & 0xfff }

// PtIndex Bits 12-20
func (va VirtualAddress) PtIndex() uint64 { return uint64(va>>12) & 0x1ff }

// PdIndex Bits 21-29
func (va VirtualAddress) PdIndex() uint64 { return uint64(va>>21) & 0x1ff }

// PdptIndex Bits 30-38
func (va VirtualAddress) PdptIndex() uint64 { return uint64(va>>30) & 0x1ff }

// Pml4Index Bits 39-47
func (va VirtualAddress) Pml4Index() uint64 { return uint64(va>>39) & 0x1ff }

// Reserved Bits 48-63, the sign extension of bit 47
func (va VirtualAddress) Reserved() uint64 { return uint64(va >> 48) }

// Canonical Reports whether the upper bits are a valid sign extension of
// bit 47
func (va VirtualAddress) Canonical() bool {
	upper := uint64(va) >> 47

	return upper == 0x1ffff || upper == 0
}
