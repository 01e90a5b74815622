package format

import (
	"encoding/binary"
	"math"
)

// Binary encoding utilities for little-endian integers.
//
// The linear memories use little-endian byte order throughout, matching the
// sandboxed execution target. Go's standard library implementation is
// already highly optimized; binary.LittleEndian calls inline cleanly.

// PutU16 writes a uint16 value to the buffer at the specified offset in little-endian format.
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// PutU32 writes a uint32 value to the buffer at the specified offset in little-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// PutI64 writes an int64 value to the buffer at the specified offset in little-endian format.
func PutI64(b []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

// PutF64 writes a float64 value to the buffer at the specified offset in
// little-endian IEEE 754 format.
func PutF64(b []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(b[off:off+8], math.Float64bits(v))
}

// ReadU16 reads a uint16 value from the buffer at the specified offset in little-endian format.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// ReadI64 reads an int64 value from the buffer at the specified offset in little-endian format.
func ReadI64(b []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

// ReadF64 reads a float64 value from the buffer at the specified offset in
// little-endian IEEE 754 format.
func ReadF64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}
