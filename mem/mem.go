package mem

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/format"
)

// Ptr is an offset into one of the linear memories. Pointers are
// region-relative; the entry holding one records which region it addresses.
// The zero value is the null pointer.
type Ptr = uint32

// Memory is a fixed-size linear memory addressed by uint32 offsets.
type Memory struct {
	data []byte
}

// New creates a linear memory of the given number of 64 KiB pages.
func New(pages int) (*Memory, error) {
	if pages < 1 {
		return nil, fmt.Errorf("mem: invalid page count %d", pages)
	}
	return &Memory{data: make([]byte, pages*format.PageSize)}, nil
}

// FromBytes adopts an existing buffer as a linear memory. The buffer length
// must be a whole number of pages. Used when restoring a saved image.
func FromBytes(data []byte) (*Memory, error) {
	if len(data) == 0 || len(data)%format.PageSize != 0 {
		return nil, fmt.Errorf("mem: buffer length %d is not a whole number of pages", len(data))
	}
	return &Memory{data: data}, nil
}

// Bytes returns the backing buffer. Callers read and write through the
// format package's encoding helpers.
func (m *Memory) Bytes() []byte { return m.data }

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 { return uint32(len(m.data)) }

// Pages returns the memory size in 64 KiB pages.
func (m *Memory) Pages() int { return len(m.data) / format.PageSize }

// CheckRange reports whether [off, off+n) lies within the memory.
func (m *Memory) CheckRange(off, n uint32) bool {
	end := uint64(off) + uint64(n)
	return end <= uint64(len(m.data))
}
