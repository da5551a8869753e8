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

package kdump

import "encoding/binary"

// On-disk layout of a Windows kernel crash dump. The 0x2000-byte HEADER64
// sits at the start of the file; full dumps pack runs of page data right
// after it, bitmap dumps put a BMP_HEADER64 there instead.
const (
	// PageSize Size of one physical page in the dump
	PageSize = 0x1000

	// HeaderSize Size of the HEADER64 structure
	HeaderSize = 0x2000

	headerSignature = 0x45474150 // "PAGE"
	headerValidDump = 0x34365544 // "DU64"

	offSignature          = 0x0
	offValidDump          = 0x4
	offMajorVersion       = 0x8
	offMinorVersion       = 0xc
	offDirectoryTableBase = 0x10
	offPfnDatabase        = 0x18
	offPsLoadedModuleList = 0x20
	offMachineImageType   = 0x30
	offNumberProcessors   = 0x34
	offBugCheckCode       = 0x38
	offBugCheckParams     = 0x40
	offPhysicalMemBlock   = 0x88
	offDumpType           = 0xf98

	// The PHYSICAL_MEMORY_DESCRIPTOR at offPhysicalMemBlock.
	offNumberOfRuns  = offPhysicalMemBlock + 0x0
	offNumberOfPages = offPhysicalMemBlock + 0x8
	offRuns          = offPhysicalMemBlock + 0x10
	runSize          = 0x10

	// BMP_HEADER64, at HeaderSize for bitmap dumps.
	bmpSignatureSlow   = 0x504d4453 // "SDMP"
	bmpSignatureFast   = 0x504d4446 // "FDMP"
	bmpValidDump       = 0x504d5544 // "DUMP"
	offBmpSignature    = HeaderSize + 0x0
	offBmpValidDump    = HeaderSize + 0x4
	offBmpFirstPage    = HeaderSize + 0x20
	offBmpPresentPages = HeaderSize + 0x28
	offBmpPages        = HeaderSize + 0x30
	offBmpBitmap       = HeaderSize + 0x38
)

// DumpType The kind of crash dump
type DumpType uint32

const (
	// FullDump Every physical page is present
	FullDump DumpType = 1
	// KernelDump Kernel address space only; physical page lookups are not
	// supported for this container layout
	KernelDump DumpType = 2
	// BMPDump A bitmap records which physical pages are present
	BMPDump DumpType = 5
)

// String Returns the dump type name
func (t DumpType) String() string {
	switch t {
	case FullDump:
		return "FullDump"
	case KernelDump:
		return "KernelDump"
	case BMPDump:
		return "BMPDump"
	}

	return "Unknown"
}

// Header The fields of HEADER64 the tool consumes
type Header struct {
	MajorVersion       uint32
	MinorVersion       uint32
	DirectoryTableBase uint64
	PfnDatabase        uint64
	PsLoadedModuleList uint64
	MachineImageType   uint32
	NumberProcessors   uint32
	BugCheckCode       uint32
	BugCheckParams     [4]uint64
	DumpType           DumpType
}

func u32(view []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(view[off : off+4])
}

func u64(view []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(view[off : off+8])
}

func decodeHeader(view []byte) Header {
	hdr := Header{
		MajorVersion:       u32(view, offMajorVersion),
		MinorVersion:       u32(view, offMinorVersion),
		DirectoryTableBase: u64(view, offDirectoryTableBase),
		PfnDatabase:        u64(view, offPfnDatabase),
		PsLoadedModuleList: u64(view, offPsLoadedModuleList),
		MachineImageType:   u32(view, offMachineImageType),
		NumberProcessors:   u32(view, offNumberProcessors),
		BugCheckCode:       u32(view, offBugCheckCode),
		DumpType:           DumpType(u32(view, offDumpType)),
	}

	for i := range hdr.BugCheckParams {
		hdr.BugCheckParams[i] = u64(view, offBugCheckParams+i*8)
	}

	return hdr
}
