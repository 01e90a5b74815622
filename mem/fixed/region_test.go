package fixed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// newTestRegion creates a fixed region over a fresh memory of the given page count.
func newTestRegion(t testing.TB, pages int) *Region {
	t.Helper()

	m, err := mem.New(pages)
	require.NoError(t, err)

	r, err := New(m)
	require.NoError(t, err)

	return r
}

func Test_RegisterAndLayout(t *testing.T) {
	r := newTestRegion(t, 1)

	pair, err := r.Register(16, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, TypeID(0), pair)

	leaf, err := r.Register(8, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, TypeID(1), leaf)

	assert.Equal(t, uint32(2), r.NumTypes())

	size, ptrs, nested, err := r.Layout(pair)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), size)
	assert.Equal(t, uint32(1), ptrs)
	assert.Equal(t, uint32(1), nested)
}

func Test_RegisterRejectsBadLayout(t *testing.T) {
	r := newTestRegion(t, 1)

	_, err := r.Register(12, 0, 0)
	require.ErrorIs(t, err, ErrBadLayout, "size must be a multiple of the slot width")

	_, err = r.Register(8, 1, 1)
	require.ErrorIs(t, err, ErrBadLayout, "two pointer fields cannot fit one slot")
}

func Test_RegisterRejectsOversizedRecords(t *testing.T) {
	r := newTestRegion(t, 1)

	// One slab of these records could never fit the memory.
	_, err := r.Register(format.PageSize, 0, 0)
	require.ErrorIs(t, err, ErrBadLayout)

	// Sizes and counts chosen so 32-bit arithmetic would wrap into small,
	// plausible values.
	_, err = r.Register(0x20000000, 0, 0)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = r.Register(16, 0x20000000, 0)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = r.Register(16, 0, 0x20000000)
	require.ErrorIs(t, err, ErrBadLayout)

	_, err = r.Register(16, 0x80000000, 0x80000000)
	require.ErrorIs(t, err, ErrBadLayout)

	assert.Zero(t, r.NumTypes(), "rejected registrations leave no table entries")
}

func Test_AllocateSurvivesCorruptRecordSize(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)

	// Clobber the type's record size with a value that wraps in 32 bits.
	format.PutU32(r.Memory().Bytes(),
		format.TypeTableBase+format.TypeEntryRecordSize, 0xFFFFFFF0)

	_, err = r.Allocate(id)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func Test_RegisterSealedAfterAllocate(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)

	_, err = r.Allocate(id)
	require.NoError(t, err)

	_, err = r.Register(8, 0, 0)
	require.ErrorIs(t, err, ErrTableSealed)
}

func Test_AllocateUnknownType(t *testing.T) {
	r := newTestRegion(t, 1)

	_, err := r.Allocate(7)
	require.ErrorIs(t, err, ErrBadTypeID)
}

func Test_AllocateHeaderAndZeroing(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(16, 0, 0)
	require.NoError(t, err)

	p, err := r.Allocate(id)
	require.NoError(t, err)

	data := r.Memory().Bytes()
	hdr := int(p) - format.FixedHeaderSize
	assert.Equal(t, uint16(id), format.ReadU16(data, hdr+format.FixedHeaderType))
	assert.Zero(t, data[hdr+format.FixedHeaderMark]&1, "mark bit is false at rest")

	// Payload is zeroed, including the slot that held the free-list link.
	for i := uint32(0); i < 16; i++ {
		assert.Zero(t, data[p+i], "byte %d of fresh record", i)
	}
}

func Test_AllocateDistinctRecords(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)

	seen := make(map[mem.Ptr]bool)
	for i := 0; i < 64; i++ {
		p, err := r.Allocate(id)
		require.NoError(t, err)
		require.False(t, seen[p], "pointer %#x handed out twice", p)
		seen[p] = true
	}
}

func Test_SlabGrowthAt33rdRecord(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)

	grows := 0
	r.onGrow = func(TypeID) { grows++ }

	for i := 0; i < 32; i++ {
		_, err := r.Allocate(id)
		require.NoError(t, err)
	}
	require.Equal(t, 1, grows, "first 32 records fit one slab")

	_, err = r.Allocate(id)
	require.NoError(t, err)
	assert.Equal(t, 2, grows, "33rd record forces exactly one more slab")
	assert.Zero(t, r.Stats().Collections, "no premature collection while growth succeeds")
}

func Test_ExhaustionWithoutCollectorFails(t *testing.T) {
	r := newTestRegion(t, 1)

	// One slab of these records is 32*(8+1024) bytes; a 64 KiB page holds
	// exactly one slab.
	id, err := r.Register(1024, 0, 0)
	require.NoError(t, err)

	var err2 error
	for i := 0; i < 64; i++ {
		if _, err2 = r.Allocate(id); err2 != nil {
			break
		}
	}
	require.ErrorIs(t, err2, mem.ErrOutOfMemory)
}

func Test_ExhaustionTriggersCollectorAndRetries(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(1024, 0, 0)
	require.NoError(t, err)

	collected := 0
	r.SetCollector(func() error {
		collected++
		// Nothing is marked, so a sweep frees every record.
		return r.Sweep()
	})

	// Far more allocations than the memory can hold live at once; every one
	// must succeed because collection reclaims the garbage.
	for i := 0; i < 256; i++ {
		_, err := r.Allocate(id)
		require.NoError(t, err)
	}
	assert.Positive(t, collected)
	assert.Equal(t, collected, r.Stats().Collections)
}

func Test_SweepFreesUnmarkedAndClearsMarks(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)

	a, err := r.Allocate(id)
	require.NoError(t, err)
	b, err := r.Allocate(id)
	require.NoError(t, err)

	require.NoError(t, r.SetMark(a))
	require.NoError(t, r.Sweep())

	// Marked record survives with its mark cleared for the next cycle.
	marked, err := r.Marked(a)
	require.NoError(t, err)
	assert.False(t, marked, "mark bits are false at rest between collections")

	// The unmarked record is back on the free list; b is among the 31 freed
	// slab records.
	free, err := r.FreeCount(id)
	require.NoError(t, err)
	assert.Equal(t, int(format.SlabRecords)-1, free)

	reused := false
	for i := 0; i < free; i++ {
		p, err := r.Allocate(id)
		require.NoError(t, err)
		if p == b {
			reused = true
		}
		require.NotEqual(t, a, p, "live record must not be reallocated")
	}
	assert.True(t, reused)
}

func Test_FieldAccessAndPointerCounts(t *testing.T) {
	r := newTestRegion(t, 1)

	// Two fixed pointers, one nested-list pointer, one numeric slot.
	id, err := r.Register(32, 2, 1)
	require.NoError(t, err)

	p, err := r.Allocate(id)
	require.NoError(t, err)
	q, err := r.Allocate(id)
	require.NoError(t, err)

	require.NoError(t, r.SetField(p, 0, q))
	require.NoError(t, r.SetFieldU64(p, 3, 0x1122334455667788))

	got, err := r.Field(p, 0)
	require.NoError(t, err)
	assert.Equal(t, q, got)

	n, err := r.FieldU64(p, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), n)

	_, err = r.Field(p, 4)
	require.ErrorIs(t, err, ErrBadPointer, "field index past record size")

	_, err = r.Field(p, 0x20000000)
	require.ErrorIs(t, err, ErrBadPointer, "field index that wraps in 32 bits")

	ptrs, nested, err := r.PointerCounts(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ptrs)
	assert.Equal(t, uint32(1), nested)
}

func Test_MarkIsIdempotent(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)
	p, err := r.Allocate(id)
	require.NoError(t, err)

	require.NoError(t, r.SetMark(p))
	require.NoError(t, r.SetMark(p))

	marked, err := r.Marked(p)
	require.NoError(t, err)
	assert.True(t, marked)
}

func Test_TracerRejectsBadPointers(t *testing.T) {
	r := newTestRegion(t, 1)

	id, err := r.Register(8, 0, 0)
	require.NoError(t, err)
	_, err = r.Allocate(id)
	require.NoError(t, err)

	_, err = r.Marked(2)
	require.ErrorIs(t, err, ErrBadPointer)

	_, err = r.Marked(r.bump() + 64)
	require.ErrorIs(t, err, ErrBadPointer)
}
