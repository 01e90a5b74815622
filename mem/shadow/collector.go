package shadow

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Runtime debug flag for collection logging - controlled by MEMKIT_LOG_GC env var.
var logGC = env.Bool("MEMKIT_LOG_GC")

// FixedHeap is the capability set the collector needs from the fixed region.
// The collector is the only component that sees both regions; neither region
// references the other.
type FixedHeap interface {
	Marked(p mem.Ptr) (bool, error)
	SetMark(p mem.Ptr) error

	// PointerCounts returns the record's leading fixed-pointer field count
	// and the nested-list field count that follows it.
	PointerCounts(p mem.Ptr) (pointerFields, nestedListFields uint32, err error)

	// Field reads the pointer in field slot i. Zero is nil.
	Field(p mem.Ptr, i uint32) (mem.Ptr, error)

	Sweep() error
}

// DynamicHeap is the capability set the collector needs from the dynamic
// region.
type DynamicHeap interface {
	Marked(p mem.Ptr) (bool, error)
	SetMark(p mem.Ptr) error

	// Traced reports whether the record's elements are pointers to follow.
	Traced(p mem.Ptr) (bool, error)

	Length(p mem.Ptr) (uint32, error)

	// ElemPtr reads element slot i as a pointer. Zero is nil.
	ElemPtr(p mem.Ptr, i uint32) (mem.Ptr, error)

	DSweep() error
}

// Phase is the collector's state. Collection is synchronous, so the phase
// only ever advances within one Collect call; observing anything but
// PhaseIdle from outside means a collection is in progress on this thread,
// which is the reentrancy hazard Collect guards against.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseMarking
	PhaseSweepingFixed
	PhaseSweepingDynamic
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMarking:
		return "marking"
	case PhaseSweepingFixed:
		return "sweeping-fixed"
	case PhaseSweepingDynamic:
		return "sweeping-dynamic"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// CollectStats holds counters for the collector.
type CollectStats struct {
	Collections   int // Completed Collect() calls
	RootsScanned  int // Root stack entries visited across all collections
	FixedMarked   int // Fixed records marked across all collections
	DynamicMarked int // Dynamic records marked across all collections
}

// workItem is an arena-tagged pointer on the mark worklist. Tagging the
// arena here keeps the two regions decoupled: a bare offset is meaningless
// without knowing which memory it indexes.
type workItem struct {
	dynamic bool
	ptr     mem.Ptr
}

// Collector coordinates mark, sweep and dsweep over both regions, rooted in
// the tracker's stack and scratch cells.
type Collector struct {
	roots *Tracker
	fixed FixedHeap
	dyn   DynamicHeap

	phase Phase
	stats CollectStats

	// Test hook: observes every phase transition (nil in production).
	onPhase func(Phase)
}

// NewCollector wires a collector over the tracker and the two heap
// capability sets.
func NewCollector(roots *Tracker, fixed FixedHeap, dyn DynamicHeap) *Collector {
	return &Collector{roots: roots, fixed: fixed, dyn: dyn}
}

// Phase returns the collector's current phase.
func (c *Collector) Phase() Phase { return c.phase }

// Stats returns a copy of the collector's counters.
func (c *Collector) Stats() CollectStats { return c.stats }

func (c *Collector) setPhase(p Phase) {
	c.phase = p
	if c.onPhase != nil {
		c.onPhase(p)
	}
	if logGC {
		fmt.Fprintf(os.Stderr, "[GC] phase=%s\n", p)
	}
}

// Collect runs one full mark/sweep/dsweep cycle. It is triggered only by an
// allocation failure in one of the regions, never spontaneously, and blocks
// that allocation until it completes. Errors are fatal to the running
// program; the phase still returns to idle so the corruption is reported
// once rather than compounded by a wedged collector.
func (c *Collector) Collect() error {
	if c.phase != PhaseIdle {
		return fmt.Errorf("%w: collector is %s", ErrReentrantCollect, c.phase)
	}
	defer c.setPhase(PhaseIdle)

	c.setPhase(PhaseMarking)
	if err := c.mark(); err != nil {
		return err
	}

	c.setPhase(PhaseSweepingFixed)
	if err := c.fixed.Sweep(); err != nil {
		return err
	}

	c.setPhase(PhaseSweepingDynamic)
	if err := c.dyn.DSweep(); err != nil {
		return err
	}

	c.stats.Collections++
	if logGC {
		fmt.Fprintf(os.Stderr, "[GC] collection %d complete, %d roots\n",
			c.stats.Collections, c.roots.Depth())
	}
	return nil
}

// mark visits everything reachable from the root stack and the populated
// scratch slots, setting each header's mark exactly once. Idempotent
// revisits guard against cycles and bound the work to the live set.
func (c *Collector) mark() error {
	var work []workItem

	depth := c.roots.Depth()
	for i := 0; i < depth; i++ {
		e, err := c.roots.EntryAt(i)
		if err != nil {
			return err
		}
		c.stats.RootsScanned++
		switch e.Kind {
		case format.RootPrimitive:
		case format.RootFixedPtr:
			work = append(work, workItem{dynamic: false, ptr: e.Value})
		case format.RootDynamicPtr:
			work = append(work, workItem{dynamic: true, ptr: e.Value})
		default:
			return fmt.Errorf("%w: %d at root %d", ErrBadKind, e.Kind, i)
		}
	}

	// Operands of an in-flight intrinsic are not yet rooted; the scratch
	// slots are their only tether.
	for slot := 0; slot < format.ScratchPtrSlots; slot++ {
		if p := c.roots.PtrAt(slot); p != 0 {
			work = append(work, workItem{dynamic: true, ptr: p})
		}
	}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		if item.ptr == 0 {
			continue
		}

		var err error
		if item.dynamic {
			work, err = c.markDynamic(item.ptr, work)
		} else {
			work, err = c.markFixed(item.ptr, work)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// markFixed marks one fixed record and queues its pointer fields.
func (c *Collector) markFixed(p mem.Ptr, work []workItem) ([]workItem, error) {
	marked, err := c.fixed.Marked(p)
	if err != nil {
		return work, err
	}
	if marked {
		return work, nil
	}
	if err := c.fixed.SetMark(p); err != nil {
		return work, err
	}
	c.stats.FixedMarked++

	pointerFields, nestedFields, err := c.fixed.PointerCounts(p)
	if err != nil {
		return work, err
	}
	for i := uint32(0); i < pointerFields+nestedFields; i++ {
		child, err := c.fixed.Field(p, i)
		if err != nil {
			return work, err
		}
		if child == 0 {
			continue
		}
		work = append(work, workItem{dynamic: i >= pointerFields, ptr: child})
	}
	return work, nil
}

// markDynamic marks one dynamic record and, for nested lists, queues its
// element pointers.
func (c *Collector) markDynamic(p mem.Ptr, work []workItem) ([]workItem, error) {
	marked, err := c.dyn.Marked(p)
	if err != nil {
		return work, err
	}
	if marked {
		return work, nil
	}
	if err := c.dyn.SetMark(p); err != nil {
		return work, err
	}
	c.stats.DynamicMarked++

	traced, err := c.dyn.Traced(p)
	if err != nil {
		return work, err
	}
	if !traced {
		return work, nil
	}
	length, err := c.dyn.Length(p)
	if err != nil {
		return work, err
	}
	for i := uint32(0); i < length; i++ {
		child, err := c.dyn.ElemPtr(p, i)
		if err != nil {
			return work, err
		}
		if child != 0 {
			work = append(work, workItem{dynamic: true, ptr: child})
		}
	}
	return work, nil
}
