package shadow

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Kind is a root entry kind.
type Kind = uint32

// Entry is one root stack entry: a kind and a 32-bit value. For pointer
// kinds the value is an offset into the matching region's memory; primitive
// entries are carried for scope bookkeeping and never traced.
type Entry struct {
	Kind  Kind
	Value uint32
}

// Tracker owns the shadow memory: the root stack mirroring the compiled
// program's live locally-scoped references, and the scratch cells. Like the
// two heap regions, all state lives in the memory bytes themselves; the
// stack pointer word holds the offset one past the topmost entry.
type Tracker struct {
	m *mem.Memory
}

// New initializes a tracker over m with an empty root stack.
func New(m *mem.Memory) (*Tracker, error) {
	if m.Size() < format.ShadowStackBase+format.RootEntrySize {
		return nil, fmt.Errorf("shadow: memory too small (%d bytes)", m.Size())
	}
	format.PutU32(m.Bytes(), format.ShadowStackPtrAddr, format.ShadowStackBase)
	return &Tracker{m: m}, nil
}

// Attach wraps an already-initialized memory (e.g. a restored snapshot).
func Attach(m *mem.Memory) *Tracker {
	return &Tracker{m: m}
}

// Memory returns the backing linear memory.
func (t *Tracker) Memory() *mem.Memory { return t.m }

func (t *Tracker) sp() uint32 {
	return format.ReadU32(t.m.Bytes(), format.ShadowStackPtrAddr)
}

func (t *Tracker) setSP(sp uint32) {
	format.PutU32(t.m.Bytes(), format.ShadowStackPtrAddr, sp)
}

// Push appends a root entry. The stack lives in the fixed-size shadow
// memory, so a push past its end fails rather than growing.
func (t *Tracker) Push(e Entry) error {
	if e.Kind > format.RootDynamicPtr {
		return fmt.Errorf("%w: %d", ErrBadKind, e.Kind)
	}
	sp := t.sp()
	if uint64(sp)+format.RootEntrySize > uint64(t.m.Size()) {
		return fmt.Errorf("%w: %d entries", ErrStackOverflow, t.Depth())
	}
	data := t.m.Bytes()
	format.PutU32(data, int(sp)+format.RootKind, e.Kind)
	format.PutU32(data, int(sp)+format.RootValue, e.Value)
	t.setSP(sp + format.RootEntrySize)
	return nil
}

// Pop removes and returns the topmost root entry.
func (t *Tracker) Pop() (Entry, error) {
	sp := t.sp()
	if sp <= format.ShadowStackBase {
		return Entry{}, ErrStackUnderflow
	}
	sp -= format.RootEntrySize
	t.setSP(sp)
	data := t.m.Bytes()
	return Entry{
		Kind:  format.ReadU32(data, int(sp)+format.RootKind),
		Value: format.ReadU32(data, int(sp)+format.RootValue),
	}, nil
}

// Depth returns the number of entries on the root stack.
func (t *Tracker) Depth() int {
	return int(t.sp()-format.ShadowStackBase) / format.RootEntrySize
}

// EntryAt returns entry i, counted from the bottom of the stack.
func (t *Tracker) EntryAt(i int) (Entry, error) {
	if i < 0 || i >= t.Depth() {
		return Entry{}, fmt.Errorf("shadow: entry %d of %d", i, t.Depth())
	}
	off := format.ShadowStackBase + i*format.RootEntrySize
	data := t.m.Bytes()
	return Entry{
		Kind:  format.ReadU32(data, off+format.RootKind),
		Value: format.ReadU32(data, off+format.RootValue),
	}, nil
}

// StashPtr stores a dynamic-region pointer in scratch slot 0 or 1. Any other
// slot exceeds the reserved budget and is a fatal codegen defect.
func (t *Tracker) StashPtr(slot int, p mem.Ptr) error {
	switch slot {
	case 0:
		format.PutU32(t.m.Bytes(), format.ScratchPtrA, p)
	case 1:
		format.PutU32(t.m.Bytes(), format.ScratchPtrB, p)
	default:
		return fmt.Errorf("%w: pointer slot %d", ErrScratchOverflow, slot)
	}
	return nil
}

// PtrAt re-reads a scratch pointer slot. Slots outside the budget read as 0.
func (t *Tracker) PtrAt(slot int) mem.Ptr {
	switch slot {
	case 0:
		return format.ReadU32(t.m.Bytes(), format.ScratchPtrA)
	case 1:
		return format.ReadU32(t.m.Bytes(), format.ScratchPtrB)
	}
	return 0
}

// ReleasePtrs clears both pointer slots at the end of an intrinsic's call
// window. A stale slot would keep a dead record alive through the next
// collection.
func (t *Tracker) ReleasePtrs() {
	format.PutU32(t.m.Bytes(), format.ScratchPtrA, 0)
	format.PutU32(t.m.Bytes(), format.ScratchPtrB, 0)
}

// SetScratchInt stores the integer scratch cell.
func (t *Tracker) SetScratchInt(v int64) {
	format.PutI64(t.m.Bytes(), format.ScratchInt, v)
}

// ScratchInt reads the integer scratch cell.
func (t *Tracker) ScratchInt() int64 {
	return format.ReadI64(t.m.Bytes(), format.ScratchInt)
}

// SetScratchFloat stores the float scratch cell.
func (t *Tracker) SetScratchFloat(v float64) {
	format.PutF64(t.m.Bytes(), format.ScratchFloat, v)
}

// ScratchFloat reads the float scratch cell.
func (t *Tracker) ScratchFloat() float64 {
	return format.ReadF64(t.m.Bytes(), format.ScratchFloat)
}
