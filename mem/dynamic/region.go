package dynamic

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Runtime debug flag for allocation logging - controlled by MEMKIT_LOG_ALLOC env var.
var logAlloc = env.Bool("MEMKIT_LOG_ALLOC")

// Tag is a dynamic record type tag.
type Tag = uint32

// Scratch is the scratch-cell capability injected by the runtime. The slots
// live in the shadow region at fixed offsets and are traced as additional
// roots during a mark, so operands stashed there survive a mid-intrinsic
// collection. Stashing beyond the reserved slots is a fatal codegen defect.
type Scratch interface {
	// StashPtr stores a dynamic-region pointer in scratch slot 0 or 1.
	StashPtr(slot int, p mem.Ptr) error

	// PtrAt re-reads a scratch slot. Operands must be re-read, not
	// re-derived, once a collection may have occurred.
	PtrAt(slot int) mem.Ptr

	// ReleasePtrs clears both pointer slots at the end of the call window.
	ReleasePtrs()
}

// Stats holds internal allocator statistics.
type Stats struct {
	AllocCalls   int   // Total Allocate() calls
	Splits       int   // Extent splits
	Absorbs      int   // Whole-extent allocations (remainder kept as slack)
	Collections  int   // Collections triggered by exhaustion
	SweepRuns    int   // DSweep() invocations
	ExtentsFreed int   // Records turned into (or merged with) free extents
	BytesFreed   int64 // Payload bytes reclaimed by DSweep()
}

// Region is the first-fit allocator over one linear memory. Like the fixed
// region, all allocator state lives in the memory bytes themselves.
type Region struct {
	m *mem.Memory

	// collect is invoked on exhaustion before the single retry.
	collect func() error

	// scratch is the injected scratch-cell capability; nil disables the
	// protocol (standalone use in tests).
	scratch Scratch

	stats Stats

	// Test hook: called before every raw allocation attempt (nil in
	// production). Used to inject forced collections between the
	// allocations of a single intrinsic call.
	onAlloc func()
}

// New initializes a dynamic region over m with one free extent spanning the
// whole memory.
func New(m *mem.Memory) (*Region, error) {
	size := m.Size()
	if size < format.DynDataStart+format.DynOverhead+format.ElemSize {
		return nil, fmt.Errorf("dynamic: memory too small (%d bytes)", size)
	}
	data := m.Bytes()
	extent := size - format.DynDataStart - format.DynOverhead
	off := format.DynDataStart
	format.PutU32(data, off+format.DynTag, format.TagFree)
	format.PutU32(data, off+format.DynMark, 0)
	format.PutU32(data, off+format.DynSize, extent)
	format.PutU32(data, off+format.DynLength, extent)
	format.PutU32(data, int(size-format.DynFooterSize), extent)
	return &Region{m: m}, nil
}

// Attach wraps an already-initialized memory (e.g. a restored snapshot).
func Attach(m *mem.Memory) *Region {
	return &Region{m: m}
}

// SetCollector wires the collection entry point invoked on exhaustion.
func (r *Region) SetCollector(fn func() error) { r.collect = fn }

// SetScratch wires the scratch-cell capability used by the intrinsics.
func (r *Region) SetScratch(s Scratch) { r.scratch = s }

// Stats returns a copy of the region's counters.
func (r *Region) Stats() Stats { return r.stats }

// Memory returns the backing linear memory.
func (r *Region) Memory() *mem.Memory { return r.m }

func validTag(tag Tag) bool {
	return tag == format.TagIntList || tag == format.TagCharList || tag == format.TagNestedList
}

// Allocate returns a pointer to a zeroed record of length 8-byte elements.
// On exhaustion it signals the collector and retries exactly once; a second
// failure is fatal.
func (r *Region) Allocate(tag Tag, length uint32) (mem.Ptr, error) {
	r.stats.AllocCalls++
	if !validTag(tag) {
		return 0, fmt.Errorf("%w: %d", ErrBadTag, tag)
	}
	if uint64(length)*format.ElemSize+format.DynOverhead > uint64(r.m.Size()) {
		return 0, mem.ErrOutOfMemory
	}

	p, err := r.tryAllocate(tag, length)
	if err != nil {
		return 0, err
	}
	if p == 0 {
		if r.collect == nil {
			return 0, mem.ErrOutOfMemory
		}
		r.stats.Collections++
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[DYN] exhausted on tag=%d length=%d, collecting\n", tag, length)
		}
		if err := r.collect(); err != nil {
			return 0, err
		}
		p, err = r.tryAllocate(tag, length)
		if err != nil {
			return 0, err
		}
		if p == 0 {
			return 0, mem.ErrOutOfMemory
		}
	}

	// Fresh records start zeroed so a nested list traced before the program
	// fills it cannot leak stale element pointers.
	data := r.m.Bytes()
	clear(data[p : p+length*format.ElemSize])
	return p, nil
}

// tryAllocate performs one first-fit scan. Returns 0 with a nil error when
// no extent fits.
func (r *Region) tryAllocate(tag Tag, length uint32) (mem.Ptr, error) {
	if r.onAlloc != nil {
		r.onAlloc()
	}
	data := r.m.Bytes()
	size := length * format.ElemSize
	msize := r.m.Size()

	cur := uint32(format.DynDataStart)
	for cur+format.DynHeaderSize <= msize {
		curTag := format.ReadU32(data, int(cur)+format.DynTag)
		curSize := format.ReadU32(data, int(cur)+format.DynSize)
		if err := r.checkNode(cur, curSize); err != nil {
			return 0, err
		}

		if curTag == format.TagFree {
			switch {
			case size+format.DynOverhead <= curSize:
				// Split: the remainder becomes a new free extent.
				r.stats.Splits++
				r.writeRecord(cur, tag, size, length)

				rem := curSize - size - format.DynOverhead
				next := cur + format.DynOverhead + size
				format.PutU32(data, int(next)+format.DynTag, format.TagFree)
				format.PutU32(data, int(next)+format.DynMark, 0)
				format.PutU32(data, int(next)+format.DynSize, rem)
				format.PutU32(data, int(next)+format.DynLength, rem)
				format.PutU32(data, int(next+format.DynHeaderSize+rem), rem)
				return cur + format.DynHeaderSize, nil

			case size <= curSize:
				// Absorb: the extent's size is kept so the sweep walk still
				// strides to the footer; the tail bytes are slack.
				r.stats.Absorbs++
				format.PutU32(data, int(cur)+format.DynTag, tag)
				format.PutU32(data, int(cur)+format.DynMark, 0)
				format.PutU32(data, int(cur)+format.DynLength, length)
				return cur + format.DynHeaderSize, nil
			}
		}
		cur += curSize + format.DynOverhead
	}
	return 0, nil
}

// writeRecord stamps a record header and footer at extent address addr.
func (r *Region) writeRecord(addr uint32, tag Tag, size, length uint32) {
	data := r.m.Bytes()
	format.PutU32(data, int(addr)+format.DynTag, tag)
	format.PutU32(data, int(addr)+format.DynMark, 0)
	format.PutU32(data, int(addr)+format.DynSize, size)
	format.PutU32(data, int(addr)+format.DynLength, length)
	format.PutU32(data, int(addr+format.DynHeaderSize+size), size)
}

// checkNode verifies that a header/footer pair at addr is self-consistent.
func (r *Region) checkNode(addr, size uint32) error {
	end := uint64(addr) + format.DynOverhead + uint64(size)
	if end > uint64(r.m.Size()) {
		return fmt.Errorf("%w: node at %#x size %d overruns memory", ErrCorruptHeader, addr, size)
	}
	footer := format.ReadU32(r.m.Bytes(), int(addr+format.DynHeaderSize+size))
	if footer != size {
		return fmt.Errorf("%w: node at %#x size %d footer %d", ErrCorruptHeader, addr, size, footer)
	}
	return nil
}

// free turns the record at pointer p into a free extent, coalescing with the
// following and preceding extents when they are free. Returns the address of
// the resulting extent's header. Reclamation is exclusively collector-driven.
func (r *Region) free(p mem.Ptr) (uint32, error) {
	data := r.m.Bytes()
	addr := p - format.DynHeaderSize
	format.PutU32(data, int(addr)+format.DynTag, format.TagFree)
	format.PutU32(data, int(addr)+format.DynMark, 0)

	size := format.ReadU32(data, int(addr)+format.DynSize)
	r.stats.ExtentsFreed++
	r.stats.BytesFreed += int64(size)

	// Coalesce forward.
	end := addr + format.DynOverhead + size
	if end+format.DynHeaderSize <= r.m.Size() {
		if format.ReadU32(data, int(end)+format.DynTag) == format.TagFree {
			nextSize := format.ReadU32(data, int(end)+format.DynSize)
			if err := r.checkNode(end, nextSize); err != nil {
				return 0, err
			}
			size += format.DynOverhead + nextSize
			format.PutU32(data, int(addr)+format.DynSize, size)
			format.PutU32(data, int(addr)+format.DynLength, size)
			format.PutU32(data, int(addr+format.DynHeaderSize+size), size)
		}
	}

	// Coalesce backward via the preceding node's footer.
	if addr > format.DynDataStart {
		prevSize := format.ReadU32(data, int(addr)-format.DynFooterSize)
		if uint64(prevSize)+format.DynOverhead > uint64(addr)-format.DynDataStart {
			return 0, fmt.Errorf("%w: footer %d before %#x reaches past region start",
				ErrCorruptHeader, prevSize, addr)
		}
		prev := addr - format.DynOverhead - prevSize
		if format.ReadU32(data, int(prev)+format.DynSize) != prevSize {
			return 0, fmt.Errorf("%w: node at %#x size field disagrees with footer %d",
				ErrCorruptHeader, prev, prevSize)
		}
		if format.ReadU32(data, int(prev)+format.DynTag) == format.TagFree {
			size = prevSize + format.DynOverhead + size
			format.PutU32(data, int(prev)+format.DynSize, size)
			format.PutU32(data, int(prev)+format.DynLength, size)
			format.PutU32(data, int(prev+format.DynHeaderSize+size), size)
			addr = prev
		}
	}
	return addr, nil
}

// DSweep performs a single linear pass over the region driven by the
// boundary tags: unmarked records become free extents (coalesced with free
// neighbours), live records are skipped with their mark cleared. Invoked
// only by the collector.
func (r *Region) DSweep() error {
	r.stats.SweepRuns++
	data := r.m.Bytes()
	msize := r.m.Size()

	cur := uint32(format.DynDataStart)
	for cur+format.DynHeaderSize <= msize {
		tag := format.ReadU32(data, int(cur)+format.DynTag)
		marked := format.ReadU32(data, int(cur)+format.DynMark)
		size := format.ReadU32(data, int(cur)+format.DynSize)
		if err := r.checkNode(cur, size); err != nil {
			return err
		}

		node := cur
		if tag != format.TagFree && marked == 0 {
			var err error
			node, err = r.free(cur + format.DynHeaderSize)
			if err != nil {
				return err
			}
		} else if marked != 0 {
			format.PutU32(data, int(cur)+format.DynMark, 0)
		}
		cur = node + format.ReadU32(data, int(node)+format.DynSize) + format.DynOverhead
	}
	return nil
}
