package fixed

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Runtime debug flag for allocation logging - controlled by MEMKIT_LOG_ALLOC env var.
var logAlloc = env.Bool("MEMKIT_LOG_ALLOC")

// TypeID is an index into the type table.
type TypeID = uint32

// maxTypes bounds the type table: type ids are stored as u16 in record headers.
const maxTypes = 1 << 16

// Stats holds internal allocator statistics.
type Stats struct {
	AllocCalls   int // Total Allocate() calls
	SlabGrows    int // Slabs carved from the bump area
	Collections  int // Collections triggered by exhaustion
	SweepRuns    int // Sweep() invocations
	RecordsFreed int // Records returned to free lists by Sweep()
}

// Region is the slab allocator over one linear memory. All allocator state
// (type table, free-list heads, bump pointer) lives in the memory itself, so
// a restored snapshot is immediately usable.
type Region struct {
	m *mem.Memory

	// collect is invoked on exhaustion before the single retry. Wired by the
	// runtime to the collector; nil means exhaustion fails immediately.
	collect func() error

	stats Stats

	// Test hook: called after each slab growth (nil in production).
	onGrow func(TypeID)
}

// New initializes a fixed region over m. The type table starts empty.
func New(m *mem.Memory) (*Region, error) {
	data := m.Bytes()
	if !m.CheckRange(0, format.TypeTableBase) {
		return nil, fmt.Errorf("fixed: memory too small (%d bytes)", m.Size())
	}
	format.PutU32(data, format.FixedDataStartAddr, format.TypeTableBase)
	format.PutU32(data, format.FixedBumpAddr, format.TypeTableBase)
	return &Region{m: m}, nil
}

// Attach wraps an already-initialized memory (e.g. a restored snapshot)
// without resetting the bookkeeping words.
func Attach(m *mem.Memory) *Region {
	return &Region{m: m}
}

// SetCollector wires the collection entry point invoked on exhaustion.
func (r *Region) SetCollector(fn func() error) { r.collect = fn }

// Stats returns a copy of the region's counters.
func (r *Region) Stats() Stats { return r.stats }

// Memory returns the backing linear memory.
func (r *Region) Memory() *mem.Memory { return r.m }

func (r *Region) dataStart() uint32 {
	return format.ReadU32(r.m.Bytes(), format.FixedDataStartAddr)
}

func (r *Region) bump() uint32 {
	return format.ReadU32(r.m.Bytes(), format.FixedBumpAddr)
}

// NumTypes returns the number of registered types.
func (r *Region) NumTypes() uint32 {
	return (r.dataStart() - format.TypeTableBase) / format.TypeEntrySize
}

func entryAddr(id TypeID) int {
	return format.TypeTableBase + int(id)*format.TypeEntrySize
}

// Register appends a type table entry and returns its id. recordSize is the
// record payload in bytes; the leading pointerFields field slots hold
// fixed-region pointers and the next nestedListFields slots hold
// dynamic-region pointers (the front end's contiguous-pointer-prefix
// layout). Registration must complete before the first allocation.
func (r *Region) Register(recordSize, pointerFields, nestedListFields uint32) (TypeID, error) {
	if recordSize == 0 || recordSize%format.ElemSize != 0 {
		return 0, fmt.Errorf("%w: record size %d not a multiple of %d",
			ErrBadLayout, recordSize, format.ElemSize)
	}
	// The executing module is untrusted input: counts and sizes are checked
	// in uint64 so oversized values cannot wrap into plausible ones.
	if (uint64(pointerFields)+uint64(nestedListFields))*format.ElemSize > uint64(recordSize) {
		return 0, fmt.Errorf("%w: %d+%d pointer fields exceed %d bytes",
			ErrBadLayout, pointerFields, nestedListFields, recordSize)
	}
	if slab := format.SlabRecords * (format.FixedHeaderSize + uint64(recordSize)); slab > uint64(r.m.Size()) {
		return 0, fmt.Errorf("%w: one slab of %d-byte records (%d bytes) exceeds the %d-byte memory",
			ErrBadLayout, recordSize, slab, r.m.Size())
	}

	data := r.m.Bytes()
	start := r.dataStart()
	if r.bump() != start {
		return 0, ErrTableSealed
	}
	id := r.NumTypes()
	if id >= maxTypes {
		return 0, fmt.Errorf("fixed: type table full (%d entries)", id)
	}
	if !r.m.CheckRange(start, format.TypeEntrySize) {
		return 0, fmt.Errorf("fixed: type table exceeds memory at entry %d", id)
	}

	off := int(start)
	format.PutU32(data, off+format.TypeEntryRecordSize, recordSize)
	format.PutU32(data, off+format.TypeEntryFreeHead, 0)
	format.PutU32(data, off+format.TypeEntryPointerCount, pointerFields)
	format.PutU32(data, off+format.TypeEntryNestedCount, nestedListFields)

	next := start + format.TypeEntrySize
	format.PutU32(data, format.FixedDataStartAddr, next)
	format.PutU32(data, format.FixedBumpAddr, next)
	return id, nil
}

// Layout returns the type table entry for id: record size, pointer field
// count, nested-list field count.
func (r *Region) Layout(id TypeID) (recordSize, pointerFields, nestedListFields uint32, err error) {
	if id >= r.NumTypes() {
		return 0, 0, 0, fmt.Errorf("%w: %d", ErrBadTypeID, id)
	}
	data := r.m.Bytes()
	off := entryAddr(id)
	return format.ReadU32(data, off+format.TypeEntryRecordSize),
		format.ReadU32(data, off+format.TypeEntryPointerCount),
		format.ReadU32(data, off+format.TypeEntryNestedCount),
		nil
}

// Allocate returns a pointer to a zeroed record of the given type. On
// exhaustion it signals the collector and retries exactly once; a second
// failure is fatal.
func (r *Region) Allocate(id TypeID) (mem.Ptr, error) {
	r.stats.AllocCalls++
	if id >= r.NumTypes() {
		return 0, fmt.Errorf("%w: %d", ErrBadTypeID, id)
	}

	p, ok := r.tryAllocate(id)
	if !ok {
		if r.collect == nil {
			return 0, mem.ErrOutOfMemory
		}
		r.stats.Collections++
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[FIXED] exhausted on type %d, collecting\n", id)
		}
		if err := r.collect(); err != nil {
			return 0, err
		}
		p, ok = r.tryAllocate(id)
		if !ok {
			return 0, mem.ErrOutOfMemory
		}
	}

	// Fresh records start zeroed with the mark bit clear. This also erases
	// the free-list link stored in the first field slot, so a record traced
	// before the program initializes it cannot leak a stale pointer.
	data := r.m.Bytes()
	size := format.ReadU32(data, entryAddr(id)+format.TypeEntryRecordSize)
	clear(data[p : p+size])
	data[p-format.FixedHeaderSize+format.FixedHeaderMark] = 0

	return p, nil
}

// tryAllocate pops the type's free list, growing a slab if the list is empty.
func (r *Region) tryAllocate(id TypeID) (mem.Ptr, bool) {
	data := r.m.Bytes()
	off := entryAddr(id)

	head := format.ReadU32(data, off+format.TypeEntryFreeHead)
	if head == 0 {
		var ok bool
		head, ok = r.growSlab(id)
		if !ok {
			return 0, false
		}
	}

	// The free-list next link lives in the first field slot of the record.
	next := format.ReadU32(data, int(head)+format.FixedHeaderSize)
	format.PutU32(data, off+format.TypeEntryFreeHead, next)
	return head + format.FixedHeaderSize, true
}

// growSlab carves a 32-record slab from the bump area and links its blocks
// into a chain. Returns the first block and whether growth succeeded.
func (r *Region) growSlab(id TypeID) (uint32, bool) {
	data := r.m.Bytes()
	size := format.ReadU32(data, entryAddr(id)+format.TypeEntryRecordSize)

	// uint64 arithmetic: a corrupt or hostile record size must fail the
	// bounds check here, not wrap and stamp headers past the buffer.
	bump := r.bump()
	slab64 := format.SlabRecords * (format.FixedHeaderSize + uint64(size))
	if uint64(bump)+slab64 > uint64(r.m.Size()) {
		return 0, false
	}
	block := format.FixedHeaderSize + size
	slab := uint32(slab64)
	format.PutU32(data, format.FixedBumpAddr, bump+slab)

	for i := uint32(0); i < format.SlabRecords; i++ {
		addr := bump + i*block
		format.PutU16(data, int(addr)+format.FixedHeaderType, uint16(id))
		data[addr+format.FixedHeaderMark] = 0
		next := addr + block
		if i == format.SlabRecords-1 {
			next = 0
		}
		format.PutU32(data, int(addr)+format.FixedHeaderSize, next)
	}

	r.stats.SlabGrows++
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[FIXED] slab grow: type=%d block=%d at %#x\n", id, block, bump)
	}
	if r.onGrow != nil {
		r.onGrow(id)
	}
	return bump, true
}

// free links a block (header address) back onto its type's free list.
// Reclamation is exclusively collector-driven, so this stays unexported.
func (r *Region) free(blockAddr uint32) {
	data := r.m.Bytes()
	id := TypeID(format.ReadU16(data, int(blockAddr)+format.FixedHeaderType))
	off := entryAddr(id)

	head := format.ReadU32(data, off+format.TypeEntryFreeHead)
	format.PutU32(data, int(blockAddr)+format.FixedHeaderSize, head)
	format.PutU32(data, off+format.TypeEntryFreeHead, blockAddr)
}

// Sweep rebuilds every free list from the mark bits: unmarked records are
// freed, marked records have their mark cleared for the next cycle. Invoked
// only by the collector.
func (r *Region) Sweep() error {
	r.stats.SweepRuns++
	data := r.m.Bytes()
	n := r.NumTypes()

	for t := TypeID(0); t < n; t++ {
		format.PutU32(data, entryAddr(t)+format.TypeEntryFreeHead, 0)
	}

	cur := r.dataStart()
	bump := r.bump()
	for cur < bump {
		// Slabs are contiguous and type-homogeneous; the first header gives
		// the stride for the whole slab.
		id := TypeID(format.ReadU16(data, int(cur)+format.FixedHeaderType))
		if id >= n {
			return fmt.Errorf("%w: slab at %#x has type %d of %d", ErrBadTypeID, cur, id, n)
		}
		size := format.ReadU32(data, entryAddr(id)+format.TypeEntryRecordSize)
		block := format.FixedHeaderSize + size

		for i := uint32(0); i < format.SlabRecords; i++ {
			addr := cur + i*block
			if data[addr+format.FixedHeaderMark]&1 != 0 {
				data[addr+format.FixedHeaderMark] = 0
			} else {
				r.free(addr)
				r.stats.RecordsFreed++
			}
		}
		cur += format.SlabRecords * block
	}
	return nil
}
