// Package dynamic implements the first-fit allocator with coalescing for
// variable-length records: character lists (strings), integer lists, and
// nested lists.
//
// # Overview
//
// Records and free extents tile the memory end to end, each carrying a
// 16-byte header {type_tag, mark, size, length} and a 4-byte boundary-tag
// footer echoing the size, so the sweep can walk forward and a free can find
// its left neighbour for coalescing. Allocation is a first-fit scan over the
// tiling; the remainder of a chosen extent is split back off when it can
// hold at least a header and footer, and absorbed as slack otherwise.
//
// Elements occupy uniform 8-byte slots regardless of logical width (a
// character uses one slot with only its low byte meaningful), which keeps
// indexing and tracing tag-agnostic. Only nested_list elements are followed
// by the tracer as pointers; int_list and char_list elements are opaque.
//
// # Intrinsics
//
// Concat, Slice, IntToString, FloatToString and BoolToString allocate fresh
// destination records and copy. Any allocation performed while an earlier
// operand of the same call is not yet rooted goes through the scratch-cell
// protocol: the live operands are stashed in the shadow region's fixed
// scratch slots, re-read after the allocation (which may have collected),
// and the slots are released before returning.
//
// # Thread Safety
//
// Region instances are not thread-safe; there is exactly one mutator.
package dynamic
