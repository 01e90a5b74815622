package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RoundTripU32(t *testing.T) {
	buf := make([]byte, 16)

	PutU32(buf, 4, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), ReadU32(buf, 4))

	// Little-endian byte order
	assert.Equal(t, byte(0xEF), buf[4])
	assert.Equal(t, byte(0xDE), buf[7])
}

func Test_RoundTripU16(t *testing.T) {
	buf := make([]byte, 8)

	PutU16(buf, 2, 0x0102)
	assert.Equal(t, uint16(0x0102), ReadU16(buf, 2))
	assert.Equal(t, byte(0x02), buf[2])
	assert.Equal(t, byte(0x01), buf[3])
}

func Test_RoundTripI64(t *testing.T) {
	buf := make([]byte, 8)

	PutI64(buf, 0, -42)
	assert.Equal(t, int64(-42), ReadI64(buf, 0))
}

func Test_RoundTripF64(t *testing.T) {
	buf := make([]byte, 8)

	PutF64(buf, 0, 3.5)
	assert.InDelta(t, 3.5, ReadF64(buf, 0), 0)
}

func Test_LayoutContracts(t *testing.T) {
	// These sizes are bit-exact contracts with already-compiled artifacts.
	require.Equal(t, 8, FixedHeaderSize)
	require.Equal(t, 16, TypeEntrySize)
	require.Equal(t, 20, DynOverhead)
	require.Equal(t, 8, ElemSize)
	require.Equal(t, 8, RootEntrySize)

	// Scratch area offsets are fixed: two 4-byte pointer slots, one 8-byte
	// integer slot, one 8-byte float slot.
	require.Equal(t, ScratchPtrA+4, ScratchPtrB)
	require.Equal(t, ScratchPtrB+4, ScratchInt)
	require.Equal(t, ScratchInt+8, ScratchFloat)
	require.Equal(t, ScratchFloat+8, ShadowStackBase)
}
