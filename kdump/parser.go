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

// Package kdump reads Windows kernel crash dumps and exposes their physical
// memory as an address-to-page lookup.
package kdump

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Parser A parsed crash dump. Physical pages are sub-slices of the
// memory-mapped file, so the Parser must stay open for as long as any page
// returned by GetPhysicalPage is in use.
type Parser struct {
	path    string
	fileMap *fileMap
	header  Header

	// physmem Physical address of a page -> its 4KiB of data
	physmem map[uint64][]byte
}

// Parse Maps the dump file at path and builds the physical memory lookup
func Parse(path string) (*Parser, error) {
	m, err := mapFile(path)
	if err != nil {
		return nil, err
	}

	p, err := parseView(m.view)
	if err != nil {
		m.Close()
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}

	p.path = path
	p.fileMap = m

	return p, nil
}

// parseView Parses a dump already laid out in memory. Split out from Parse
// so tests can feed synthetic dumps without a file.
func parseView(view []byte) (*Parser, error) {
	if len(view) < HeaderSize {
		return nil, errors.Errorf("dump is %d bytes, smaller than the %d-byte header", len(view), HeaderSize)
	}

	if sig := u32(view, offSignature); sig != headerSignature {
		return nil, errors.Errorf("invalid header signature %#x", sig)
	}

	if valid := u32(view, offValidDump); valid != headerValidDump {
		return nil, errors.Errorf("invalid header ValidDump %#x", valid)
	}

	p := &Parser{
		header:  decodeHeader(view),
		physmem: make(map[uint64][]byte),
	}

	log.Debugf("Parsing a %s, directory table base %#x", p.header.DumpType, p.header.DirectoryTableBase)

	var err error
	switch p.header.DumpType {
	case FullDump:
		err = p.buildPhysmemFull(view)
	case BMPDump:
		err = p.buildPhysmemBMP(view)
	default:
		err = errors.Errorf("unsupported dump type %s (%d)", p.header.DumpType, uint32(p.header.DumpType))
	}

	if err != nil {
		return nil, err
	}

	log.Debugf("Built the physical memory map, %d pages resident", len(p.physmem))

	return p, nil
}

// buildPhysmemFull Full dumps pack every page of every physical memory run
// back to back right after the header.
func (p *Parser) buildPhysmemFull(view []byte) error {
	numberOfRuns := int(u32(view, offNumberOfRuns))
	numberOfPages := u64(view, offNumberOfPages)

	if offRuns+numberOfRuns*runSize > HeaderSize {
		return errors.Errorf("%d physical memory runs do not fit in the header", numberOfRuns)
	}

	offset := uint64(HeaderSize)
	var seen uint64

	for run := 0; run < numberOfRuns; run++ {
		basePage := u64(view, offRuns+run*runSize)
		pageCount := u64(view, offRuns+run*runSize+8)

		for i := uint64(0); i < pageCount; i++ {
			if offset+PageSize > uint64(len(view)) {
				return errors.Errorf("dump truncated inside run %d (%d of %d pages mapped)", run, seen, numberOfPages)
			}

			pa := (basePage + i) * PageSize
			p.physmem[pa] = view[offset : offset+PageSize]
			offset += PageSize
			seen++
		}
	}

	if seen != numberOfPages {
		log.Warnf("Header advertises %d pages but the runs cover %d", numberOfPages, seen)
	}

	return nil
}

// buildPhysmemBMP Bitmap dumps carry a bitmap of resident physical pages;
// the data of the set pages is packed sequentially starting at FirstPage.
func (p *Parser) buildPhysmemBMP(view []byte) error {
	if len(view) < offBmpBitmap {
		return errors.Errorf("dump is %d bytes, smaller than the %d-byte bitmap header", len(view), offBmpBitmap)
	}

	if sig := u32(view, offBmpSignature); sig != bmpSignatureSlow && sig != bmpSignatureFast {
		return errors.Errorf("invalid bitmap header signature %#x", sig)
	}

	if valid := u32(view, offBmpValidDump); valid != bmpValidDump {
		return errors.Errorf("invalid bitmap header ValidDump %#x", valid)
	}

	firstPage := u64(view, offBmpFirstPage)
	presentPages := u64(view, offBmpPresentPages)
	pages := u64(view, offBmpPages)

	bitmapBytes := (pages + 7) / 8
	if bitmapBytes > uint64(len(view)-offBmpBitmap) {
		return errors.Errorf("bitmap of %d pages does not fit in the dump", pages)
	}

	if firstPage > uint64(len(view)) {
		return errors.Errorf("page data starts at %#x, beyond the %d-byte dump", firstPage, len(view))
	}

	offset := firstPage
	for bit := uint64(0); bit < pages; bit++ {
		if view[uint64(offBmpBitmap)+bit/8]&(1<<(bit%8)) == 0 {
			continue
		}

		if uint64(len(view))-offset < PageSize {
			return errors.Errorf("dump truncated at page data offset %#x", offset)
		}

		p.physmem[bit*PageSize] = view[offset : offset+PageSize]
		offset += PageSize
	}

	if uint64(len(p.physmem)) != presentPages {
		log.Warnf("Bitmap header advertises %d present pages but the bitmap sets %d", presentPages, len(p.physmem))
	}

	return nil
}

// GetPhysicalPage Returns the page backing the given physical address, or
// false when the page is not resident in the dump. The address is aligned
// down to its page.
func (p *Parser) GetPhysicalPage(physicalAddress uint64) ([]byte, bool) {
	page, ok := p.physmem[physicalAddress&^uint64(PageSize-1)]
	return page, ok
}

// GetDirectoryTableBase Returns the CR3 value captured in the dump header
func (p *Parser) GetDirectoryTableBase() uint64 {
	return p.header.DirectoryTableBase
}

// IsFullDump Reports whether every physical page is expected to be resident
func (p *Parser) IsFullDump() bool {
	return p.header.DumpType == FullDump
}

// DumpType Returns the container type of the dump
func (p *Parser) DumpType() DumpType {
	return p.header.DumpType
}

// Header Returns the decoded dump header
func (p *Parser) Header() Header {
	return p.header
}

// ResidentPages Number of physical pages present in the dump
func (p *Parser) ResidentPages() int {
	return len(p.physmem)
}

// Close Unmaps the dump file
func (p *Parser) Close() error {
	if p.fileMap == nil {
		return nil
	}

	return p.fileMap.Close()
}
