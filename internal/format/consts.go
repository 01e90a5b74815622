// Package format houses the binary layout constants and low-level encoders
// for the three linear memories of the runtime. The goal is to keep the
// layout knowledge in one place, bit-exact with the compiled artifacts that
// address these memories, and independent from the public API so the region
// packages can orchestrate the data in a more ergonomic form.
package format

const (
	// PageSize is the granularity of linear memory sizing. Memories are
	// created as a whole number of 64 KiB pages.
	PageSize = 0x10000

	// ElemSize is the width of one element slot in a dynamic record and one
	// field slot in a fixed record. Elements are uniformly 8 bytes wide
	// regardless of logical element size; a character occupies one slot with
	// only its low byte meaningful.
	ElemSize = 8
)

// Fixed region layout.
//
// The first 12 bytes of the fixed memory are bookkeeping words, followed by
// the type table, followed by the slab area:
//
//	0x00  reserved
//	0x04  data start  (absolute offset of the first slab)
//	0x08  bump pointer (absolute offset of the next slab)
//	0x0C  type table  (16-byte entries, one per registered type)
//	...   slabs       (32 records each, contiguous, type-homogeneous)
const (
	// FixedDataStartAddr holds the offset where the slab area begins
	// (equivalently, where the type table ends).
	FixedDataStartAddr = 4

	// FixedBumpAddr holds the bump pointer for slab growth.
	FixedBumpAddr = 8

	// TypeTableBase is where the first type table entry lives.
	TypeTableBase = 12

	// TypeEntrySize is the size of one type table entry.
	TypeEntrySize = 16

	// Type table entry field offsets.
	TypeEntryRecordSize   = 0x00 // u32: record payload size in bytes
	TypeEntryFreeHead     = 0x04 // u32: head of the type's free list (0 = empty)
	TypeEntryPointerCount = 0x08 // u32: leading fields that are fixed-region pointers
	TypeEntryNestedCount  = 0x0C // u32: following fields that are dynamic-region pointers

	// FixedHeaderSize is the header preceding every fixed record. Pointers
	// returned by the allocator address the first field, so the header is at
	// pointer-FixedHeaderSize.
	FixedHeaderSize = 8

	// Fixed header field offsets (relative to header start).
	FixedHeaderType = 0x00 // u16: type table index
	FixedHeaderMark = 0x02 // u8:  bit 0 is the mark bit

	// SlabRecords is the number of records added per slab growth.
	SlabRecords = 32
)

// Dynamic region layout.
//
// Records and free extents begin at offset 4 and tile the memory end to end.
// Every record carries a 16-byte header and a 4-byte boundary-tag footer
// echoing the payload size, so a sweep can walk forward and a free can find
// its left neighbour:
//
//	-16  type tag   (0 = free extent)
//	-12  mark
//	 -8  size       (payload bytes = length * 8)
//	 -4  length     (element count)
//	  0  elements   (length 8-byte slots)
//	+sz  footer     (u32 echo of size)
const (
	// DynDataStart is where the first dynamic header lives.
	DynDataStart = 4

	// DynHeaderSize is the header preceding every dynamic record payload.
	DynHeaderSize = 16

	// DynFooterSize is the boundary-tag footer following every payload.
	DynFooterSize = 4

	// DynOverhead is the total per-record overhead (header + footer).
	DynOverhead = DynHeaderSize + DynFooterSize

	// Dynamic header field offsets (relative to header start).
	DynTag    = 0x00 // u32
	DynMark   = 0x04 // u32
	DynSize   = 0x08 // u32: payload bytes
	DynLength = 0x0C // u32: element count
)

// Dynamic record type tags.
const (
	TagFree       = 0 // free extent
	TagIntList    = 1 // opaque 64-bit integer elements
	TagCharList   = 2 // character elements, low byte meaningful
	TagNestedList = 3 // elements are dynamic-region pointers
)

// Shadow region layout.
//
// The shadow memory holds the root stack and the scratch area. The stack
// pointer word holds the offset one past the topmost entry:
//
//	0x00  reserved
//	0x04  stack pointer
//	0x08  scratch pointer slot A (dynamic-region pointer, 0 = empty)
//	0x0C  scratch pointer slot B
//	0x10  scratch integer slot (i64)
//	0x18  scratch float slot (f64)
//	0x20  root stack (8-byte entries, grows upward)
const (
	ShadowStackPtrAddr = 4

	ScratchPtrA  = 0x08
	ScratchPtrB  = 0x0C
	ScratchInt   = 0x10
	ScratchFloat = 0x18

	// ScratchPtrSlots is the number of pointer scratch cells. Expression
	// evaluation is strictly inner-to-outer, so at most two not-yet-rooted
	// references are live across any single allocating call.
	ScratchPtrSlots = 2

	ShadowStackBase = 0x20

	// RootEntrySize is the size of one root stack entry.
	RootEntrySize = 8

	// Root entry field offsets.
	RootKind  = 0x00 // u32
	RootValue = 0x04 // u32
)

// Root entry kinds.
const (
	RootPrimitive  = 0 // not traced
	RootFixedPtr   = 1 // fixed-region pointer
	RootDynamicPtr = 2 // dynamic-region pointer
)

// Snapshot image layout. A saved image is a small header followed by the raw
// contents of the three memories in order: fixed, dynamic, shadow.
const (
	ImageHeaderSize = 24

	ImageSignatureOffset   = 0x00 // 4 bytes: "MEMK"
	ImageVersionOffset     = 0x04 // u32
	ImageFixedPagesOffset  = 0x08 // u32
	ImageDynPagesOffset    = 0x0C // u32
	ImageShadowPagesOffset = 0x10 // u32

	ImageVersion = 1
)

// ImageSignature is the four-byte signature at the start of every saved
// memory image.
var ImageSignature = []byte{'M', 'E', 'M', 'K'}
