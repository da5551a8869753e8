package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vhive-serverless/dumpviz/kdump"
	"github.com/vhive-serverless/dumpviz/ptables"
	"github.com/vhive-serverless/dumpviz/tape"
)

// writeSyntheticDump Writes a minimal full dump: a PML4 with one entry, a
// PDPT with one entry, and a PD whose first entry maps a single 2MiB large
// page at PFN 0x100.
func writeSyntheticDump(t *testing.T, path string) {
	const (
		headerSize = 0x2000
		pageSize   = 0x1000
	)

	view := make([]byte, headerSize+3*pageSize)

	binary.LittleEndian.PutUint32(view[0x0:], 0x45474150)  // "PAGE"
	binary.LittleEndian.PutUint32(view[0x4:], 0x34365544)  // "DU64"
	binary.LittleEndian.PutUint64(view[0x10:], 0x1000)     // DirectoryTableBase
	binary.LittleEndian.PutUint32(view[0xf98:], 1)         // FullDump
	binary.LittleEndian.PutUint32(view[0x88:], 1)          // NumberOfRuns
	binary.LittleEndian.PutUint64(view[0x90:], 3)          // NumberOfPages
	binary.LittleEndian.PutUint64(view[0x98:], 1)          // BasePage
	binary.LittleEndian.PutUint64(view[0xa0:], 3)          // PageCount

	pml4 := view[headerSize:]
	pdpt := view[headerSize+pageSize:]
	pd := view[headerSize+2*pageSize:]

	binary.LittleEndian.PutUint64(pml4, 0x3|2<<12)        // present|write -> PDPT at 0x2000
	binary.LittleEndian.PutUint64(pdpt, 0x3|3<<12)        // present|write -> PD at 0x3000
	binary.LittleEndian.PutUint64(pd, 0x3|1<<7|0x100<<12) // present|write|large, PFN 0x100

	require.NoError(t, os.WriteFile(path, view, 0644))
}

func TestEndToEndLargePage(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "mem.dmp")
	writeSyntheticDump(t, dumpPath)

	parser, err := kdump.Parse(dumpPath)
	require.NoError(t, err)
	defer parser.Close()

	require.True(t, parser.IsFullDump())
	require.Equal(t, uint64(0x1000), parser.GetDirectoryTableBase())

	walker, err := ptables.NewWalker(parser, parser.GetDirectoryTableBase())
	require.NoError(t, err)

	builder := tape.NewBuilder()
	var chains int
	for {
		chain, ok := walker.Next()
		if !ok {
			break
		}

		chains++
		require.Equal(t, ptables.Large, chain.Size)
		require.Equal(t, uint64(0), chain.Va)
		require.Equal(t, uint64(0x100000), chain.Pa)
		builder.Append(chain)
	}
	require.Equal(t, 1, chains)

	tp := builder.Finish()
	require.Len(t, tp.Cells, 512)
	require.Equal(t, uint64(0), tp.FirstVa)

	// Kernel (no level user-accessible), writable, executable.
	want := tape.CellOf(ptables.KernelReadWriteExec)
	for idx, cell := range tp.Cells {
		require.Equal(t, want, cell, "cell %d", idx)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "mem.dmp")
	outPath := filepath.Join(dir, "vis.ppm")
	csvPath := filepath.Join(dir, "stats.csv")
	writeSyntheticDump(t, dumpPath)

	require.NoError(t, run(dumpPath, "", outPath, csvPath, false))

	img, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(img), "P3\n"))

	_, err = os.Stat(csvPath)
	require.NoError(t, err)
}

func TestRunDtbOverride(t *testing.T) {
	dir := t.TempDir()
	dumpPath := filepath.Join(dir, "mem.dmp")
	writeSyntheticDump(t, dumpPath)

	require.NoError(t, run(dumpPath, "0x1000", filepath.Join(dir, "vis.ppm"), "", false))

	// An override pointing at a non-resident page must fail before any
	// walk begins.
	require.Error(t, run(dumpPath, "0x99000", filepath.Join(dir, "vis.ppm"), "", false))
}

func TestRunMissingDump(t *testing.T) {
	require.Error(t, run("/nonexistent/mem.dmp", "", "vis.ppm", "", false))
}
