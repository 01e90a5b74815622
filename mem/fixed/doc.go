// Package fixed implements the slab allocator for fixed-size, statically
// typed records (structs and closure environment frames).
//
// # Overview
//
// Records of a given type all share one size, recorded in the type table at
// the base of the fixed memory. Allocation pops from the type's free list;
// when the list is empty a new 32-record slab is carved from the bump area.
// There is no explicit free: reclamation is exclusively collector-driven via
// Sweep.
//
// # Memory layout
//
//	0x04  data start (end of type table, start of slab area)
//	0x08  bump pointer
//	0x0C  type table, 16-byte entries:
//	        record_size, free_list_head, pointer_field_count, nested_list_field_count
//	...   slabs: 32 blocks of (8-byte header + record_size) each
//
// Record pointers address the first field; the 8-byte header (u16 type id,
// packed mark bit) sits immediately before it. Free records reuse their
// first field slot as the free-list next link.
//
// # Tracing contract
//
// The front end lays out pointer fields contiguously from the start of the
// record: pointer_field_count fixed-region pointers first, then
// nested_list_field_count dynamic-region pointers. The tracer recurses into
// children using only these two counts.
//
// # Thread Safety
//
// Region instances are not thread-safe. There is exactly one mutator and
// collection is synchronous.
package fixed
