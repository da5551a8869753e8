package ptables

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVirtualAddressRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for pml4Idx := uint64(0); pml4Idx < EntriesPerTable; pml4Idx++ {
		pdptIdx := uint64(r.Intn(EntriesPerTable))
		pdIdx := uint64(r.Intn(EntriesPerTable))
		ptIdx := uint64(r.Intn(EntriesPerTable))

		va := NewVirtualAddress(pml4Idx, pdptIdx, pdIdx, ptIdx)

		require.Equal(t, pml4Idx, va.Pml4Index())
		require.Equal(t, pdptIdx, va.PdptIndex())
		require.Equal(t, pdIdx, va.PdIndex())
		require.Equal(t, ptIdx, va.PtIndex())
		require.Equal(t, uint64(0), va.Offset())

		if pml4Idx >= 256 {
			require.Equal(t, uint64(0xffff), va.Reserved(), "kernel-half address must be sign extended")
		} else {
			require.Equal(t, uint64(0), va.Reserved())
		}

		require.True(t, va.Canonical())
	}
}

func TestVirtualAddressKnownValues(t *testing.T) {
	require.Equal(t, uint64(0), NewVirtualAddress(0, 0, 0, 0).U64())
	require.Equal(t, uint64(1)<<30, NewVirtualAddress(0, 1, 0, 0).U64())
	require.Equal(t, uint64(1)<<21, NewVirtualAddress(0, 0, 1, 0).U64())
	require.Equal(t, uint64(1)<<12, NewVirtualAddress(0, 0, 0, 1).U64())

	// First slot of the kernel half.
	require.Equal(t, uint64(0xffff800000000000), NewVirtualAddress(256, 0, 0, 0).U64())

	// Last possible page.
	require.Equal(t, uint64(0xfffffffffffff000), NewVirtualAddress(511, 511, 511, 511).U64())
}

func TestVirtualAddressDecompose(t *testing.T) {
	va := VirtualAddress(0xfffff68000001234)

	require.Equal(t, uint64(0x234), va.Offset())
	require.True(t, va.Canonical())
	require.Equal(t, va.U64(),
		NewVirtualAddress(va.Pml4Index(), va.PdptIndex(), va.PdIndex(), va.PtIndex()).U64()|va.Offset())
}

func TestNonCanonical(t *testing.T) {
	require.False(t, VirtualAddress(0x0000800000000000).Canonical())
	require.False(t, VirtualAddress(0x1234000000000000).Canonical())
	require.True(t, VirtualAddress(0x00007fffffffffff).Canonical())
	require.True(t, VirtualAddress(0xffff800000000000).Canonical())
}
