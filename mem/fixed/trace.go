package fixed

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Tracer support: the collector walks records through these accessors
// without per-field type dispatch beyond the two counts in the type table.

// checkPointer validates that p addresses the first field of a record in the
// slab area and that its header names a registered type.
func (r *Region) checkPointer(p mem.Ptr) error {
	start := r.dataStart()
	if p < start+format.FixedHeaderSize || p >= r.bump() {
		return fmt.Errorf("%w: %#x outside slab area", ErrBadPointer, p)
	}
	id := TypeID(format.ReadU16(r.m.Bytes(), int(p-format.FixedHeaderSize)+format.FixedHeaderType))
	if id >= r.NumTypes() {
		return fmt.Errorf("%w: record at %#x has type %d", ErrBadTypeID, p, id)
	}
	return nil
}

// TypeOf returns the type id from the record's header.
func (r *Region) TypeOf(p mem.Ptr) (TypeID, error) {
	if err := r.checkPointer(p); err != nil {
		return 0, err
	}
	return TypeID(format.ReadU16(r.m.Bytes(), int(p-format.FixedHeaderSize)+format.FixedHeaderType)), nil
}

// Marked reports the record's mark bit.
func (r *Region) Marked(p mem.Ptr) (bool, error) {
	if err := r.checkPointer(p); err != nil {
		return false, err
	}
	return r.m.Bytes()[p-format.FixedHeaderSize+format.FixedHeaderMark]&1 != 0, nil
}

// SetMark sets the record's mark bit. Idempotent.
func (r *Region) SetMark(p mem.Ptr) error {
	if err := r.checkPointer(p); err != nil {
		return err
	}
	r.m.Bytes()[p-format.FixedHeaderSize+format.FixedHeaderMark] |= 1
	return nil
}

// PointerCounts returns how many leading field slots of the record hold
// fixed-region pointers and, after those, dynamic-region pointers.
func (r *Region) PointerCounts(p mem.Ptr) (pointerFields, nestedListFields uint32, err error) {
	id, err := r.TypeOf(p)
	if err != nil {
		return 0, 0, err
	}
	off := entryAddr(id)
	data := r.m.Bytes()
	return format.ReadU32(data, off+format.TypeEntryPointerCount),
		format.ReadU32(data, off+format.TypeEntryNestedCount),
		nil
}

// Field reads the pointer stored in field slot i.
func (r *Region) Field(p mem.Ptr, i uint32) (mem.Ptr, error) {
	if err := r.checkField(p, i); err != nil {
		return 0, err
	}
	return format.ReadU32(r.m.Bytes(), int(p+i*format.ElemSize)), nil
}

// SetField stores a pointer into field slot i.
func (r *Region) SetField(p mem.Ptr, i uint32, v mem.Ptr) error {
	if err := r.checkField(p, i); err != nil {
		return err
	}
	format.PutU32(r.m.Bytes(), int(p+i*format.ElemSize), v)
	return nil
}

// FieldU64 reads the full 8-byte field slot i (numeric fields).
func (r *Region) FieldU64(p mem.Ptr, i uint32) (uint64, error) {
	if err := r.checkField(p, i); err != nil {
		return 0, err
	}
	return format.ReadU64(r.m.Bytes(), int(p+i*format.ElemSize)), nil
}

// SetFieldU64 stores a full 8-byte value into field slot i.
func (r *Region) SetFieldU64(p mem.Ptr, i uint32, v uint64) error {
	if err := r.checkField(p, i); err != nil {
		return err
	}
	format.PutU64(r.m.Bytes(), int(p+i*format.ElemSize), v)
	return nil
}

func (r *Region) checkField(p mem.Ptr, i uint32) error {
	id, err := r.TypeOf(p)
	if err != nil {
		return err
	}
	size := format.ReadU32(r.m.Bytes(), entryAddr(id)+format.TypeEntryRecordSize)
	if (uint64(i)+1)*format.ElemSize > uint64(size) {
		return fmt.Errorf("%w: field %d of %d-byte record at %#x", ErrBadPointer, i, size, p)
	}
	return nil
}

// FreeCount walks the type's free list and returns its length. Introspection
// for debugging and the inspection tool; not used on the allocation path.
func (r *Region) FreeCount(id TypeID) (int, error) {
	if id >= r.NumTypes() {
		return 0, fmt.Errorf("%w: %d", ErrBadTypeID, id)
	}
	data := r.m.Bytes()
	count := 0
	head := format.ReadU32(data, entryAddr(id)+format.TypeEntryFreeHead)
	for head != 0 {
		count++
		if !r.m.CheckRange(head, format.FixedHeaderSize+format.ElemSize) {
			return count, fmt.Errorf("%w: free list of type %d leaves memory at %#x",
				ErrBadPointer, id, head)
		}
		head = format.ReadU32(data, int(head)+format.FixedHeaderSize)
	}
	return count, nil
}
