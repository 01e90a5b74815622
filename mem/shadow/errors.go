package shadow

import "errors"

var (
	// ErrScratchOverflow indicates an intrinsic tried to stash more pointers
	// than the reserved scratch slots can hold. The slot budget is part of the
	// codegen contract, so this is fatal and points at the front end, not at
	// the running program's data.
	ErrScratchOverflow = errors.New("shadow: scratch slots exceeded")

	// ErrStackOverflow indicates a root push beyond the shadow memory's
	// capacity.
	ErrStackOverflow = errors.New("shadow: root stack full")

	// ErrStackUnderflow indicates a pop from an empty root stack.
	ErrStackUnderflow = errors.New("shadow: root stack empty")

	// ErrBadKind indicates a root entry kind outside the known set.
	ErrBadKind = errors.New("shadow: unknown root entry kind")

	// ErrReentrantCollect indicates Collect was entered while a collection
	// was already in progress. Host callbacks must not allocate through the
	// runtime, so this is checked defensively and is fatal.
	ErrReentrantCollect = errors.New("shadow: reentrant collection")
)
