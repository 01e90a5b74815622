// Package mem provides the linear memory abstraction underlying the three
// runtime regions.
//
// # Overview
//
// A Memory is a flat byte buffer sized in 64 KiB pages at creation, matching
// the sandboxed execution target's addressing model. The fixed region, the
// dynamic region, and the shadow stack each own one independent Memory;
// pointers are uint32 offsets into the owning memory, never Go pointers, so
// the regions and the collector hold no references into each other.
//
// # Sizing
//
// Memories are sized once, at module instantiation. The fixed region grows
// internally by carving slabs from its bump area, and the dynamic region
// carves records from its free extents, but neither acquires new pages at
// runtime: exhaustion triggers collection, and a post-collection failure is
// an out-of-memory condition.
//
// # Thread Safety
//
// Memory is not thread-safe. The runtime has exactly one mutator and the
// collector runs synchronously on the same thread.
package mem
