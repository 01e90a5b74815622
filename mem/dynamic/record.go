package dynamic

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Record accessors and tracer support.

// checkPointer validates that p addresses the payload of a live record.
func (r *Region) checkPointer(p mem.Ptr) error {
	if p < format.DynDataStart+format.DynHeaderSize {
		return fmt.Errorf("%w: %#x before region start", ErrBadPointer, p)
	}
	addr := p - format.DynHeaderSize
	if !r.m.CheckRange(addr, format.DynOverhead) {
		return fmt.Errorf("%w: %#x outside memory", ErrBadPointer, p)
	}
	tag := format.ReadU32(r.m.Bytes(), int(addr)+format.DynTag)
	if !validTag(tag) {
		return fmt.Errorf("%w: %#x has tag %d", ErrBadPointer, p, tag)
	}
	return r.checkNode(addr, format.ReadU32(r.m.Bytes(), int(addr)+format.DynSize))
}

// TagOf returns the record's type tag.
func (r *Region) TagOf(p mem.Ptr) (Tag, error) {
	if err := r.checkPointer(p); err != nil {
		return 0, err
	}
	return format.ReadU32(r.m.Bytes(), int(p-format.DynHeaderSize)+format.DynTag), nil
}

// Length returns the record's element count.
func (r *Region) Length(p mem.Ptr) (uint32, error) {
	if err := r.checkPointer(p); err != nil {
		return 0, err
	}
	return format.ReadU32(r.m.Bytes(), int(p-format.DynHeaderSize)+format.DynLength), nil
}

// Traced reports whether the record's elements are followed as pointers by
// the tracer: true only for nested lists.
func (r *Region) Traced(p mem.Ptr) (bool, error) {
	tag, err := r.TagOf(p)
	if err != nil {
		return false, err
	}
	return tag == format.TagNestedList, nil
}

// Marked reports the record's mark.
func (r *Region) Marked(p mem.Ptr) (bool, error) {
	if err := r.checkPointer(p); err != nil {
		return false, err
	}
	return format.ReadU32(r.m.Bytes(), int(p-format.DynHeaderSize)+format.DynMark) != 0, nil
}

// SetMark sets the record's mark. Idempotent.
func (r *Region) SetMark(p mem.Ptr) error {
	if err := r.checkPointer(p); err != nil {
		return err
	}
	format.PutU32(r.m.Bytes(), int(p-format.DynHeaderSize)+format.DynMark, 1)
	return nil
}

// Elem reads the full 8-byte element slot i.
func (r *Region) Elem(p mem.Ptr, i uint32) (uint64, error) {
	if err := r.checkElem(p, i); err != nil {
		return 0, err
	}
	return format.ReadU64(r.m.Bytes(), int(p+i*format.ElemSize)), nil
}

// SetElem stores a full 8-byte value into element slot i.
func (r *Region) SetElem(p mem.Ptr, i uint32, v uint64) error {
	if err := r.checkElem(p, i); err != nil {
		return err
	}
	format.PutU64(r.m.Bytes(), int(p+i*format.ElemSize), v)
	return nil
}

// ElemPtr reads element slot i as a pointer (low 4 bytes). Used by the
// tracer on nested lists.
func (r *Region) ElemPtr(p mem.Ptr, i uint32) (mem.Ptr, error) {
	if err := r.checkElem(p, i); err != nil {
		return 0, err
	}
	return format.ReadU32(r.m.Bytes(), int(p+i*format.ElemSize)), nil
}

func (r *Region) checkElem(p mem.Ptr, i uint32) error {
	length, err := r.Length(p)
	if err != nil {
		return err
	}
	if i >= length {
		return fmt.Errorf("%w: element %d of %d at %#x", ErrBadRange, i, length, p)
	}
	return nil
}

// Node describes one entry of the region tiling, for inspection and tests.
type Node struct {
	Off    uint32 // header address
	Tag    Tag    // TagFree for free extents
	Size   uint32 // payload bytes
	Length uint32 // element count (mirrors Size for free extents)
	Marked bool
}

// Nodes walks the whole region and returns every record and free extent in
// address order. Introspection for debugging and the inspection tool.
func (r *Region) Nodes() ([]Node, error) {
	data := r.m.Bytes()
	msize := r.m.Size()

	var nodes []Node
	cur := uint32(format.DynDataStart)
	for cur+format.DynHeaderSize <= msize {
		size := format.ReadU32(data, int(cur)+format.DynSize)
		if err := r.checkNode(cur, size); err != nil {
			return nodes, err
		}
		nodes = append(nodes, Node{
			Off:    cur,
			Tag:    format.ReadU32(data, int(cur)+format.DynTag),
			Size:   size,
			Length: format.ReadU32(data, int(cur)+format.DynLength),
			Marked: format.ReadU32(data, int(cur)+format.DynMark) != 0,
		})
		cur += size + format.DynOverhead
	}
	return nodes, nil
}
