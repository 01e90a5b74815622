package fixed

import "errors"

var (
	// ErrBadTypeID indicates a type id with no type table entry. The
	// executing module is untrusted input, so this is checked defensively
	// and is fatal.
	ErrBadTypeID = errors.New("fixed: unknown type id")

	// ErrBadPointer indicates a pointer outside the slab area or not
	// addressing a record.
	ErrBadPointer = errors.New("fixed: bad record pointer")

	// ErrBadLayout indicates a type registration whose record size cannot
	// hold the declared pointer fields, or whose records are too large for
	// one slab to fit the memory.
	ErrBadLayout = errors.New("fixed: unusable record layout")

	// ErrTableSealed indicates a type registration after the first slab was
	// carved. The table precedes the slab area, so it cannot grow once
	// allocation has begun.
	ErrTableSealed = errors.New("fixed: type table sealed after first allocation")
)
