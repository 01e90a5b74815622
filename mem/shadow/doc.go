// Package shadow implements the root tracker and the collector.
//
// # Overview
//
// The sandboxed execution environment gives the runtime no view of a native
// call stack, so the compiled program maintains an explicit shadow of its
// live locally-scoped references: it pushes a root entry when a value enters
// a traced slot and pops it on scope exit. The stack, its pointer word and
// the scratch cells all live in the shadow linear memory at fixed offsets
// the compiled code addresses directly.
//
// The collector is the one component that sees both heap regions. It
// consumes them as injected capability sets (FixedHeap, DynamicHeap) so the
// regions stay decoupled from each other, and runs a mark-and-sweep cycle
// only when a region reports exhaustion: mark from the root stack plus any
// populated scratch slots, then Sweep the fixed region, then DSweep the
// dynamic region. The triggering region retries its allocation exactly once
// afterwards.
//
// # Scratch cells
//
// Intrinsics that allocate more than once before their result is rooted
// stash their in-flight operands in two reserved pointer slots (plus one
// integer and one float slot for non-pointer temporaries). The mark phase
// treats populated slots as additional roots. Needing a third pointer slot
// means the front end violated its evaluation-order contract; that is
// surfaced as a fatal ErrScratchOverflow rather than silently widening the
// budget.
package shadow
