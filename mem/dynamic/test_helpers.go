package dynamic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// newTestRegion creates a dynamic region over a fresh memory of the given page count.
func newTestRegion(t testing.TB, pages int) *Region {
	t.Helper()

	m, err := mem.New(pages)
	require.NoError(t, err)

	r, err := New(m)
	require.NoError(t, err)

	return r
}

// charList allocates a char list holding s, one character per element slot.
func charList(t testing.TB, r *Region, s string) mem.Ptr {
	t.Helper()

	p, err := r.Allocate(format.TagCharList, uint32(len(s)))
	require.NoError(t, err)
	for i := 0; i < len(s); i++ {
		require.NoError(t, r.SetElem(p, uint32(i), uint64(s[i])))
	}
	return p
}

// decodeChars reads a char list back into a Go string via the low byte of
// each element slot.
func decodeChars(t testing.TB, r *Region, p mem.Ptr) string {
	t.Helper()

	length, err := r.Length(p)
	require.NoError(t, err)

	buf := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		v, err := r.Elem(p, i)
		require.NoError(t, err)
		buf[i] = byte(v)
	}
	return string(buf)
}

// MockScratch is a spy implementing Scratch for testing the intrinsic
// protocol without a shadow region.
type MockScratch struct {
	Slots    [format.ScratchPtrSlots]mem.Ptr
	Stashes  int
	Releases int
}

func (s *MockScratch) StashPtr(slot int, p mem.Ptr) error {
	if slot < 0 || slot >= format.ScratchPtrSlots {
		return ErrBadRange
	}
	s.Slots[slot] = p
	s.Stashes++
	return nil
}

func (s *MockScratch) PtrAt(slot int) mem.Ptr { return s.Slots[slot] }

func (s *MockScratch) ReleasePtrs() {
	s.Slots = [format.ScratchPtrSlots]mem.Ptr{}
	s.Releases++
}
