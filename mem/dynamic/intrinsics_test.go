package dynamic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

func Test_Concat(t *testing.T) {
	r := newTestRegion(t, 1)

	a := charList(t, r, "hi")
	b := charList(t, r, "!")

	c, err := r.Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, "hi!", decodeChars(t, r, c))

	// Operands are untouched.
	assert.Equal(t, "hi", decodeChars(t, r, a))
	assert.Equal(t, "!", decodeChars(t, r, b))
}

func Test_ConcatRejectsMixedTags(t *testing.T) {
	r := newTestRegion(t, 1)

	chars := charList(t, r, "x")
	ints, err := r.Allocate(format.TagIntList, 1)
	require.NoError(t, err)

	_, err = r.Concat(chars, ints)
	require.ErrorIs(t, err, ErrBadTag)
}

func Test_ConcatEmptyOperand(t *testing.T) {
	r := newTestRegion(t, 1)

	a := charList(t, r, "abc")
	empty, err := r.Allocate(format.TagCharList, 0)
	require.NoError(t, err)

	c, err := r.Concat(a, empty)
	require.NoError(t, err)
	assert.Equal(t, "abc", decodeChars(t, r, c))
}

func Test_Slice(t *testing.T) {
	r := newTestRegion(t, 1)

	p := charList(t, r, "hello")

	s, err := r.Slice(p, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "ell", decodeChars(t, r, s))

	empty, err := r.Slice(p, 2, 2)
	require.NoError(t, err)
	length, err := r.Length(empty)
	require.NoError(t, err)
	assert.Zero(t, length)
}

func Test_SliceRejectsBadRange(t *testing.T) {
	r := newTestRegion(t, 1)

	p := charList(t, r, "hello")

	_, err := r.Slice(p, 3, 2)
	require.ErrorIs(t, err, ErrBadRange)

	_, err = r.Slice(p, 0, 6)
	require.ErrorIs(t, err, ErrBadRange)
}

func Test_IntToString(t *testing.T) {
	r := newTestRegion(t, 1)

	for _, tc := range []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{7, "7"},
		{-1234, "-1234"},
		{9223372036854775807, "9223372036854775807"},
		{-9223372036854775808, "-9223372036854775808"},
	} {
		p, err := r.IntToString(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, decodeChars(t, r, p), "IntToString(%d)", tc.in)
	}
}

func Test_BoolToString(t *testing.T) {
	r := newTestRegion(t, 1)

	p, err := r.BoolToString(true)
	require.NoError(t, err)
	assert.Equal(t, "true", decodeChars(t, r, p))

	p, err = r.BoolToString(false)
	require.NoError(t, err)
	assert.Equal(t, "false", decodeChars(t, r, p))
}

func Test_FloatToString(t *testing.T) {
	r := newTestRegion(t, 1)

	for _, tc := range []struct {
		in   float64
		want string
	}{
		{3.5, "3.500000"},
		{0, "0.000000"},
		{-2.25, "-2.250000"},
		{1.0 / 3.0, "0.333333"},
		// Fraction rounds over six digits and carries into the integer part.
		{0.9999999, "1.000000"},
		{1.9999999, "2.000000"},
		{-0.9999999, "-1.000000"},
	} {
		p, err := r.FloatToString(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, decodeChars(t, r, p), "FloatToString(%g)", tc.in)
	}
}

func Test_Equal(t *testing.T) {
	r := newTestRegion(t, 1)

	a := charList(t, r, "same")
	b := charList(t, r, "same")
	c := charList(t, r, "sane")
	d := charList(t, r, "longer")

	eq, err := r.Equal(a, b)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = r.Equal(a, c)
	require.NoError(t, err)
	assert.False(t, eq)

	eq, err = r.Equal(a, d)
	require.NoError(t, err)
	assert.False(t, eq, "length mismatch is never equal")
}

func Test_Contains(t *testing.T) {
	r := newTestRegion(t, 1)

	p, err := r.Allocate(format.TagIntList, 3)
	require.NoError(t, err)
	for i, v := range []uint64{10, 20, 30} {
		require.NoError(t, r.SetElem(p, uint32(i), v))
	}

	found, err := r.Contains(20, p)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = r.Contains(25, p)
	require.NoError(t, err)
	assert.False(t, found)
}

func Test_IntrinsicsStashOperandsInScratch(t *testing.T) {
	r := newTestRegion(t, 1)
	scratch := &MockScratch{}
	r.SetScratch(scratch)

	a := charList(t, r, "ab")
	b := charList(t, r, "cd")

	_, err := r.Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, scratch.Stashes, "both operands stashed")
	assert.Equal(t, 1, scratch.Releases, "slots released after the call")

	_, err = r.Slice(a, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, scratch.Stashes, "slice stashes its single operand")
	assert.Equal(t, 2, scratch.Releases)
}

// relocatingScratch simulates a collection moving nothing but proving that
// intrinsics re-read their operands from the slots rather than reusing the
// stale values they were called with.
type relocatingScratch struct {
	MockScratch
	redirect map[mem.Ptr]mem.Ptr
}

func (s *relocatingScratch) PtrAt(slot int) mem.Ptr {
	p := s.Slots[slot]
	if q, ok := s.redirect[p]; ok {
		return q
	}
	return p
}

func Test_IntrinsicsRereadOperandsAfterAllocation(t *testing.T) {
	r := newTestRegion(t, 1)

	a := charList(t, r, "old")
	b := charList(t, r, "new")
	scratch := &relocatingScratch{redirect: map[mem.Ptr]mem.Ptr{a: b}}
	r.SetScratch(scratch)

	s, err := r.Slice(a, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "new", decodeChars(t, r, s))
}

// Forces a full collection between the allocations of a single FloatToString
// call. The intermediate records are unreachable from any root, so only the
// scratch slots keep them alive.
func Test_FloatToStringSurvivesMidCallCollection(t *testing.T) {
	r := newTestRegion(t, 1)
	scratch := &MockScratch{}
	r.SetScratch(scratch)

	r.onAlloc = func() {
		// Mark whatever the scratch slots hold, then sweep everything else.
		for slot := 0; slot < format.ScratchPtrSlots; slot++ {
			if p := scratch.Slots[slot]; p != 0 {
				require.NoError(t, r.SetMark(p))
			}
		}
		require.NoError(t, r.DSweep())
	}

	p, err := r.FloatToString(-12.125)
	require.NoError(t, err)
	assert.Equal(t, "-12.125000", decodeChars(t, r, p))
}

// Evaluates concat(concat(a, b), c) with a full collection forced before
// every allocation and checks the output is byte-identical to an undisturbed
// evaluation.
func Test_ConcatChainSurvivesForcedCollections(t *testing.T) {
	control := newTestRegion(t, 1)
	ca := charList(t, control, "ab")
	cb := charList(t, control, "cd")
	cc := charList(t, control, "ef")
	ct1, err := control.Concat(ca, cb)
	require.NoError(t, err)
	ct2, err := control.Concat(ct1, cc)
	require.NoError(t, err)
	want := decodeChars(t, control, ct2)

	r := newTestRegion(t, 1)
	scratch := &MockScratch{}
	r.SetScratch(scratch)

	a := charList(t, r, "ab")
	b := charList(t, r, "cd")
	c := charList(t, r, "ef")

	// Rooted values, as the compiled program would hold them on its root
	// stack across the calls.
	roots := []mem.Ptr{a, b, c}
	forced := 0
	r.onAlloc = func() {
		for _, p := range roots {
			require.NoError(t, r.SetMark(p))
		}
		for slot := 0; slot < format.ScratchPtrSlots; slot++ {
			if p := scratch.Slots[slot]; p != 0 {
				require.NoError(t, r.SetMark(p))
			}
		}
		require.NoError(t, r.DSweep())
		forced++
	}

	t1, err := r.Concat(a, b)
	require.NoError(t, err)
	roots = append(roots, t1)

	t2, err := r.Concat(t1, c)
	require.NoError(t, err)

	assert.Equal(t, want, decodeChars(t, r, t2))
	assert.Positive(t, forced)
}
