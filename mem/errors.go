package mem

import "errors"

var (
	// ErrOutOfMemory indicates an allocation that still fails after one
	// collection. Fatal: the running program must be aborted.
	ErrOutOfMemory = errors.New("mem: out of memory after collection")
)
