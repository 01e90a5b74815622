package dynamic

import "errors"

var (
	// ErrBadTag indicates an allocation or intrinsic with a type tag that is
	// not int_list, char_list or nested_list.
	ErrBadTag = errors.New("dynamic: invalid type tag")

	// ErrBadPointer indicates a pointer that does not address a live record
	// header in the region.
	ErrBadPointer = errors.New("dynamic: bad record pointer")

	// ErrBadRange indicates slice bounds outside the source record.
	ErrBadRange = errors.New("dynamic: slice bounds out of range")

	// ErrCorruptHeader indicates a boundary-tag mismatch during sweep or
	// coalescing. Fatal: the allocator structures are corrupt.
	ErrCorruptHeader = errors.New("dynamic: boundary tag mismatch")
)
