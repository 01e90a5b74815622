package dynamic

import (
	"fmt"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

// Intrinsics called directly by compiled code. Each allocates a fresh
// destination record and copies; none mutates its operands.

// allocScratch allocates while the pointers at a and b (either may be nil)
// are live but not yet rooted. The operands are stashed in the scratch
// cells, where the mark phase sees them, and re-read after the allocation in
// case a collection ran. The slots are released before returning.
func (r *Region) allocScratch(tag Tag, length uint32, a, b *mem.Ptr) (mem.Ptr, error) {
	if r.scratch != nil {
		if a != nil {
			if err := r.scratch.StashPtr(0, *a); err != nil {
				return 0, err
			}
		}
		if b != nil {
			if err := r.scratch.StashPtr(1, *b); err != nil {
				return 0, err
			}
		}
	}
	p, err := r.Allocate(tag, length)
	if r.scratch != nil {
		if a != nil {
			*a = r.scratch.PtrAt(0)
		}
		if b != nil {
			*b = r.scratch.PtrAt(1)
		}
		r.scratch.ReleasePtrs()
	}
	return p, err
}

// Concat returns a new record holding the elements of a followed by the
// elements of b. Both operands must carry the same type tag.
func (r *Region) Concat(a, b mem.Ptr) (mem.Ptr, error) {
	tagA, err := r.TagOf(a)
	if err != nil {
		return 0, err
	}
	tagB, err := r.TagOf(b)
	if err != nil {
		return 0, err
	}
	if tagA != tagB {
		return 0, fmt.Errorf("%w: concat of tag %d with tag %d", ErrBadTag, tagA, tagB)
	}

	lenA, err := r.Length(a)
	if err != nil {
		return 0, err
	}
	lenB, err := r.Length(b)
	if err != nil {
		return 0, err
	}

	dest, err := r.allocScratch(tagA, lenA+lenB, &a, &b)
	if err != nil {
		return 0, err
	}

	data := r.m.Bytes()
	copy(data[dest:dest+lenA*format.ElemSize], data[a:a+lenA*format.ElemSize])
	copy(data[dest+lenA*format.ElemSize:dest+(lenA+lenB)*format.ElemSize],
		data[b:b+lenB*format.ElemSize])
	return dest, nil
}

// Slice returns a new record holding elements [start, end) of p.
func (r *Region) Slice(p mem.Ptr, start, end uint32) (mem.Ptr, error) {
	tag, err := r.TagOf(p)
	if err != nil {
		return 0, err
	}
	length, err := r.Length(p)
	if err != nil {
		return 0, err
	}
	if start > end || end > length {
		return 0, fmt.Errorf("%w: [%d:%d] of length %d", ErrBadRange, start, end, length)
	}

	n := end - start
	dest, err := r.allocScratch(tag, n, &p, nil)
	if err != nil {
		return 0, err
	}

	data := r.m.Bytes()
	copy(data[dest:dest+n*format.ElemSize],
		data[p+start*format.ElemSize:p+end*format.ElemSize])
	return dest, nil
}

// IntToString returns a char list with the decimal representation of i.
func (r *Region) IntToString(i int64) (mem.Ptr, error) {
	num := uint64(i)
	if i < 0 {
		num = uint64(-(i + 1)) + 1
	}
	digits := decimalDigits(num)
	length := uint32(digits)
	if i < 0 {
		length++
	}

	// Single allocation with no live operands: no scratch needed.
	dest, err := r.Allocate(format.TagCharList, length)
	if err != nil {
		return 0, err
	}
	r.writeDecimal(dest, 0, length, num, i < 0)
	return dest, nil
}

// BoolToString returns the char list "true" or "false".
func (r *Region) BoolToString(b bool) (mem.Ptr, error) {
	s := "false"
	if b {
		s = "true"
	}
	dest, err := r.Allocate(format.TagCharList, uint32(len(s)))
	if err != nil {
		return 0, err
	}
	data := r.m.Bytes()
	for i := 0; i < len(s); i++ {
		format.PutU64(data, int(dest)+i*format.ElemSize, uint64(s[i]))
	}
	return dest, nil
}

// FloatToString returns a char list of the form "<int>.<6 fractional
// digits>", with the fraction rounded and zero-padded to six places.
func (r *Region) FloatToString(f float64) (mem.Ptr, error) {
	intPart := int64(f)
	frac := f - float64(intPart)
	if frac < 0 {
		frac = -frac
	}
	fracPart := uint64(frac*1e6 + 0.5)
	// Rounding can spill the fraction over six digits; carry into the
	// integer part instead of widening the fraction.
	if fracPart >= 1000000 {
		fracPart = 0
		if f < 0 {
			intPart--
		} else {
			intPart++
		}
	}

	// Fraction first: one allocation, nothing live yet.
	fracDigits := decimalDigits(fracPart)
	fracLen := uint32(max(6, fracDigits))
	fracStr, err := r.Allocate(format.TagCharList, fracLen)
	if err != nil {
		return 0, err
	}
	r.writeDecimal(fracStr, 0, fracLen, fracPart, false)

	// Integer part plus the '.' in one record, keeping at most two
	// not-yet-rooted pointers live across each allocation.
	num := uint64(intPart)
	if intPart < 0 {
		num = uint64(-(intPart + 1)) + 1
	}
	headLen := uint32(decimalDigits(num)) + 1
	if intPart < 0 {
		headLen++
	}
	head, err := r.allocScratch(format.TagCharList, headLen, &fracStr, nil)
	if err != nil {
		return 0, err
	}
	r.writeDecimal(head, 0, headLen-1, num, intPart < 0)
	format.PutU64(r.m.Bytes(), int(head)+int(headLen-1)*format.ElemSize, uint64('.'))

	dest, err := r.allocScratch(format.TagCharList, headLen+fracLen, &head, &fracStr)
	if err != nil {
		return 0, err
	}
	data := r.m.Bytes()
	copy(data[dest:dest+headLen*format.ElemSize], data[head:head+headLen*format.ElemSize])
	copy(data[dest+headLen*format.ElemSize:dest+(headLen+fracLen)*format.ElemSize],
		data[fracStr:fracStr+fracLen*format.ElemSize])
	return dest, nil
}

// Equal reports element-wise equality of two records.
func (r *Region) Equal(a, b mem.Ptr) (bool, error) {
	lenA, err := r.Length(a)
	if err != nil {
		return false, err
	}
	lenB, err := r.Length(b)
	if err != nil {
		return false, err
	}
	if lenA != lenB {
		return false, nil
	}
	data := r.m.Bytes()
	for i := uint32(0); i < lenA; i++ {
		va := format.ReadU64(data, int(a)+int(i)*format.ElemSize)
		vb := format.ReadU64(data, int(b)+int(i)*format.ElemSize)
		if va != vb {
			return false, nil
		}
	}
	return true, nil
}

// Contains reports whether any element of the record equals elem.
func (r *Region) Contains(elem uint64, p mem.Ptr) (bool, error) {
	length, err := r.Length(p)
	if err != nil {
		return false, err
	}
	data := r.m.Bytes()
	for i := uint32(0); i < length; i++ {
		if format.ReadU64(data, int(p)+int(i)*format.ElemSize) == elem {
			return true, nil
		}
	}
	return false, nil
}

// writeDecimal writes num as width decimal digit characters into element
// slots [off, off+width) of dest, zero-padded on the left, with an optional
// leading '-'.
func (r *Region) writeDecimal(dest mem.Ptr, off, width uint32, num uint64, negative bool) {
	data := r.m.Bytes()
	start := off
	if negative {
		format.PutU64(data, int(dest)+int(off)*format.ElemSize, uint64('-'))
		start++
	}
	for i := int(width) - 1; i >= int(start); i-- {
		format.PutU64(data, int(dest)+i*format.ElemSize, uint64('0'+num%10))
		num /= 10
	}
}

// decimalDigits returns the number of decimal digits of n (1 for zero).
func decimalDigits(n uint64) int {
	d := 1
	for n >= 10 {
		d++
		n /= 10
	}
	return d
}
