package shadow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/dynamic"
	"github.com/joshuapare/memkit/mem/fixed"
)

// newTestTracker creates a tracker over a fresh shadow memory.
func newTestTracker(t testing.TB, pages int) *Tracker {
	t.Helper()

	m, err := mem.New(pages)
	require.NoError(t, err)

	tr, err := New(m)
	require.NoError(t, err)

	return tr
}

// testRig composes a tracker, a collector and both regions the way the
// runtime does, with collection wired to exhaustion on either region.
type testRig struct {
	tracker   *Tracker
	collector *Collector
	fixed     *fixed.Region
	dyn       *dynamic.Region
}

func newTestRig(t testing.TB) *testRig {
	t.Helper()

	fixedMem, err := mem.New(1)
	require.NoError(t, err)
	dynMem, err := mem.New(1)
	require.NoError(t, err)

	fr, err := fixed.New(fixedMem)
	require.NoError(t, err)
	dr, err := dynamic.New(dynMem)
	require.NoError(t, err)

	tracker := newTestTracker(t, 1)
	collector := NewCollector(tracker, fr, dr)

	fr.SetCollector(collector.Collect)
	dr.SetCollector(collector.Collect)
	dr.SetScratch(tracker)

	return &testRig{tracker: tracker, collector: collector, fixed: fr, dyn: dr}
}

// charList allocates a char list holding s in the rig's dynamic region.
func (r *testRig) charList(t testing.TB, s string) mem.Ptr {
	t.Helper()

	p, err := r.dyn.Allocate(format.TagCharList, uint32(len(s)))
	require.NoError(t, err)
	for i := 0; i < len(s); i++ {
		require.NoError(t, r.dyn.SetElem(p, uint32(i), uint64(s[i])))
	}
	return p
}

func (r *testRig) decodeChars(t testing.TB, p mem.Ptr) string {
	t.Helper()

	length, err := r.dyn.Length(p)
	require.NoError(t, err)

	buf := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		v, err := r.dyn.Elem(p, i)
		require.NoError(t, err)
		buf[i] = byte(v)
	}
	return string(buf)
}
