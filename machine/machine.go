// Package machine composes the three regions, the root tracker and the
// collector into one once-initialized runtime instance, the way the host
// environment instantiates them for a compiled program. Regions are sized at
// construction and never re-initialized; constructing a fresh instance per
// program (or per test) replaces any notion of global allocator state.
package machine

import (
	"fmt"
	"os"

	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/dynamic"
	"github.com/joshuapare/memkit/mem/fixed"
	"github.com/joshuapare/memkit/mem/shadow"
	"github.com/joshuapare/memkit/snapshot"
)

// Config sizes the three memories and supplies the host capabilities.
type Config struct {
	FixedPages   int
	DynamicPages int
	ShadowPages  int

	// Print is the host text-output capability. It is invoked synchronously
	// and must not allocate through the runtime or trigger collection. Nil
	// falls back to standard output.
	Print func(s string)
}

// Machine is one runtime instance: two heap regions, the root tracker and
// the collector wired together. Not thread-safe; there is exactly one
// mutator.
type Machine struct {
	fixed     *fixed.Region
	dyn       *dynamic.Region
	tracker   *shadow.Tracker
	collector *shadow.Collector

	print func(string)
}

// New instantiates a machine with freshly initialized memories.
func New(cfg Config) (*Machine, error) {
	fixedMem, err := mem.New(cfg.FixedPages)
	if err != nil {
		return nil, fmt.Errorf("machine: fixed region: %w", err)
	}
	dynMem, err := mem.New(cfg.DynamicPages)
	if err != nil {
		return nil, fmt.Errorf("machine: dynamic region: %w", err)
	}
	shadowMem, err := mem.New(cfg.ShadowPages)
	if err != nil {
		return nil, fmt.Errorf("machine: shadow region: %w", err)
	}

	fr, err := fixed.New(fixedMem)
	if err != nil {
		return nil, err
	}
	dr, err := dynamic.New(dynMem)
	if err != nil {
		return nil, err
	}
	tracker, err := shadow.New(shadowMem)
	if err != nil {
		return nil, err
	}

	return compose(fr, dr, tracker, cfg.Print), nil
}

// Restore loads a saved image into a fresh machine. The image bytes are
// copied, so the machine stays valid after the source file goes away.
func Restore(path string, cfg Config) (*Machine, error) {
	img, err := snapshot.Open(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	regions := make([]*mem.Memory, 3)
	for i, src := range []*mem.Memory{img.Fixed, img.Dynamic, img.Shadow} {
		buf := make([]byte, src.Size())
		copy(buf, src.Bytes())
		m, err := mem.FromBytes(buf)
		if err != nil {
			return nil, err
		}
		regions[i] = m
	}

	return compose(
		fixed.Attach(regions[0]),
		dynamic.Attach(regions[1]),
		shadow.Attach(regions[2]),
		cfg.Print,
	), nil
}

// compose wires the collaborators: collection on exhaustion for both
// regions, and the tracker's scratch cells behind the dynamic intrinsics.
func compose(fr *fixed.Region, dr *dynamic.Region, tracker *shadow.Tracker, print func(string)) *Machine {
	collector := shadow.NewCollector(tracker, fr, dr)
	fr.SetCollector(collector.Collect)
	dr.SetCollector(collector.Collect)
	dr.SetScratch(tracker)

	if print == nil {
		print = func(s string) { fmt.Fprint(os.Stdout, s) }
	}
	return &Machine{fixed: fr, dyn: dr, tracker: tracker, collector: collector, print: print}
}

// Fixed returns the slab allocator region.
func (m *Machine) Fixed() *fixed.Region { return m.fixed }

// Dynamic returns the first-fit allocator region.
func (m *Machine) Dynamic() *dynamic.Region { return m.dyn }

// Roots returns the root tracker.
func (m *Machine) Roots() *shadow.Tracker { return m.tracker }

// Collector returns the collector.
func (m *Machine) Collector() *shadow.Collector { return m.collector }

// DecodeString reads a char list into a Go string. Element low bytes are
// character codes in Latin-1, the byte-transparent single-byte encoding, so
// codes above 0x7F survive the round trip into UTF-8.
func (m *Machine) DecodeString(p mem.Ptr) (string, error) {
	length, err := m.dyn.Length(p)
	if err != nil {
		return "", err
	}
	raw := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		v, err := m.dyn.Elem(p, i)
		if err != nil {
			return "", err
		}
		raw[i] = byte(v)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("machine: decode string: %w", err)
	}
	return string(decoded), nil
}

// PrintString decodes the char list at p and hands it to the host print
// capability.
func (m *Machine) PrintString(p mem.Ptr) error {
	s, err := m.DecodeString(p)
	if err != nil {
		return err
	}
	m.print(s)
	return nil
}

// Save writes an image of the machine's memories to path. Collection state
// is never saved mid-cycle: Collect runs synchronously, so the collector is
// idle whenever the mutator can reach Save.
func (m *Machine) Save(path string) error {
	return snapshot.WriteFile(path, m.fixed.Memory(), m.dyn.Memory(), m.tracker.Memory())
}
