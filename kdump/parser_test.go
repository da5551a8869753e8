package kdump

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func putU32(view []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(view[off:], v)
}

func putU64(view []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(view[off:], v)
}

func baseHeader(dumpType DumpType, size int) []byte {
	view := make([]byte, size)
	putU32(view, offSignature, headerSignature)
	putU32(view, offValidDump, headerValidDump)
	putU64(view, offDirectoryTableBase, 0x1000)
	putU32(view, offDumpType, uint32(dumpType))

	return view
}

func TestParseFullDump(t *testing.T) {
	view := baseHeader(FullDump, HeaderSize+2*PageSize)

	// One run: physical pages 1 and 2.
	putU32(view, offNumberOfRuns, 1)
	putU64(view, offNumberOfPages, 2)
	putU64(view, offRuns, 1)   // BasePage
	putU64(view, offRuns+8, 2) // PageCount

	view[HeaderSize] = 0xaa
	view[HeaderSize+PageSize] = 0xbb

	p, err := parseView(view)
	require.NoError(t, err)

	require.True(t, p.IsFullDump())
	require.Equal(t, FullDump, p.DumpType())
	require.Equal(t, uint64(0x1000), p.GetDirectoryTableBase())
	require.Equal(t, 2, p.ResidentPages())

	page, ok := p.GetPhysicalPage(0x1000)
	require.True(t, ok)
	require.Len(t, page, PageSize)
	require.Equal(t, byte(0xaa), page[0])

	page, ok = p.GetPhysicalPage(0x2000)
	require.True(t, ok)
	require.Equal(t, byte(0xbb), page[0])

	// Lookups are page aligned.
	page, ok = p.GetPhysicalPage(0x1fff)
	require.True(t, ok)
	require.Equal(t, byte(0xaa), page[0])

	_, ok = p.GetPhysicalPage(0x3000)
	require.False(t, ok)
	_, ok = p.GetPhysicalPage(0x0)
	require.False(t, ok)
}

func TestParseBMPDump(t *testing.T) {
	firstPage := uint64(HeaderSize + PageSize)
	view := baseHeader(BMPDump, int(firstPage)+2*PageSize)

	putU32(view, offBmpSignature, bmpSignatureSlow)
	putU32(view, offBmpValidDump, bmpValidDump)
	putU64(view, offBmpFirstPage, firstPage)
	putU64(view, offBmpPresentPages, 2)
	putU64(view, offBmpPages, 16)

	// Physical pages 2 and 5 are present.
	view[offBmpBitmap] = 1<<2 | 1<<5

	view[firstPage] = 0xcc
	view[firstPage+PageSize] = 0xdd

	p, err := parseView(view)
	require.NoError(t, err)

	require.False(t, p.IsFullDump())
	require.Equal(t, 2, p.ResidentPages())

	page, ok := p.GetPhysicalPage(2 * PageSize)
	require.True(t, ok)
	require.Equal(t, byte(0xcc), page[0])

	page, ok = p.GetPhysicalPage(5 * PageSize)
	require.True(t, ok)
	require.Equal(t, byte(0xdd), page[0])

	_, ok = p.GetPhysicalPage(3 * PageSize)
	require.False(t, ok)
}

func TestParseBadSignature(t *testing.T) {
	view := baseHeader(FullDump, HeaderSize)
	putU32(view, offSignature, 0xdeadbeef)

	_, err := parseView(view)
	require.Error(t, err)
}

func TestParseBadValidDump(t *testing.T) {
	view := baseHeader(FullDump, HeaderSize)
	putU32(view, offValidDump, 0xdeadbeef)

	_, err := parseView(view)
	require.Error(t, err)
}

func TestParseTooSmall(t *testing.T) {
	_, err := parseView(make([]byte, 0x100))
	require.Error(t, err)
}

func TestParseTruncatedFullDump(t *testing.T) {
	// The run advertises two pages but the file only carries one.
	view := baseHeader(FullDump, HeaderSize+PageSize)
	putU32(view, offNumberOfRuns, 1)
	putU64(view, offNumberOfPages, 2)
	putU64(view, offRuns, 0)
	putU64(view, offRuns+8, 2)

	_, err := parseView(view)
	require.Error(t, err)
}

func TestParseBMPTruncatedHeader(t *testing.T) {
	// The file ends right after the outer header, before the bitmap header.
	view := baseHeader(BMPDump, HeaderSize)

	_, err := parseView(view)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bitmap header")
}

func TestParseBMPFirstPageBeyondDump(t *testing.T) {
	view := baseHeader(BMPDump, offBmpBitmap+1)

	putU32(view, offBmpSignature, bmpSignatureSlow)
	putU32(view, offBmpValidDump, bmpValidDump)
	putU64(view, offBmpFirstPage, ^uint64(0)-0x800)
	putU64(view, offBmpPresentPages, 1)
	putU64(view, offBmpPages, 1)
	view[offBmpBitmap] = 1

	_, err := parseView(view)
	require.Error(t, err)
}

func TestParseBMPTruncatedPageData(t *testing.T) {
	// FirstPage is inside the file but the single present page is not.
	firstPage := uint64(offBmpBitmap + 8)
	view := baseHeader(BMPDump, int(firstPage)+PageSize/2)

	putU32(view, offBmpSignature, bmpSignatureSlow)
	putU32(view, offBmpValidDump, bmpValidDump)
	putU64(view, offBmpFirstPage, firstPage)
	putU64(view, offBmpPresentPages, 1)
	putU64(view, offBmpPages, 1)
	view[offBmpBitmap] = 1

	_, err := parseView(view)
	require.Error(t, err)
	require.Contains(t, err.Error(), "truncated")
}

func TestParseKernelDumpUnsupported(t *testing.T) {
	view := baseHeader(KernelDump, HeaderSize)

	_, err := parseView(view)
	require.Error(t, err)
}

func TestHeaderDecode(t *testing.T) {
	view := baseHeader(FullDump, HeaderSize)
	putU32(view, offNumberOfRuns, 0)
	putU32(view, offBugCheckCode, 0x7e)
	putU64(view, offBugCheckParams, 0xffffffffc0000005)
	putU32(view, offNumberProcessors, 4)

	p, err := parseView(view)
	require.NoError(t, err)

	hdr := p.Header()
	require.Equal(t, uint32(0x7e), hdr.BugCheckCode)
	require.Equal(t, uint64(0xffffffffc0000005), hdr.BugCheckParams[0])
	require.Equal(t, uint32(4), hdr.NumberProcessors)
}
