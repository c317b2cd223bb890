// Package fixbuf provides zero-copy views over raw ASCII byte slices.
//
// A CharSeq is a flyweight: it never copies or owns the bytes it wraps.
// It is only valid while the backing slice is live — once a pooled buffer
// is released or a ring-buffer slot is reclaimed, any CharSeq built over it
// must not be dereferenced. Every accessor except String is allocation-free.
package fixbuf

import "errors"

// Parsing errors returned by Int64/errors surfaced through ParseInt64.
var (
	ErrEmpty        = errors.New("fixbuf: empty sequence")
	ErrInvalidDigit = errors.New("fixbuf: invalid digit")
)

// CharSeq is a flyweight view (backing, offset, length) over ASCII bytes.
// The zero value is an empty sequence.
type CharSeq struct {
	backing []byte
	offset  int
	length  int
}

// Wrap returns a CharSeq over backing[offset : offset+length]. It does not
// copy backing; the caller is responsible for keeping it alive for as long
// as the returned CharSeq is used.
func Wrap(backing []byte, offset, length int) CharSeq {
	return CharSeq{backing: backing, offset: offset, length: length}
}

// WrapBytes returns a CharSeq over the whole of b.
func WrapBytes(b []byte) CharSeq {
	return CharSeq{backing: b, offset: 0, length: len(b)}
}

// Len returns the number of bytes in the sequence.
func (c CharSeq) Len() int {
	return c.length
}

// IsEmpty reports whether the sequence has zero length.
func (c CharSeq) IsEmpty() bool {
	return c.length == 0
}

// At returns the byte at index i. It panics if i is out of range, mirroring
// slice indexing semantics.
func (c CharSeq) At(i int) byte {
	if i < 0 || i >= c.length {
		panic("fixbuf: index out of range")
	}
	return c.backing[c.offset+i]
}

// Bytes returns the underlying byte slice for the sequence without copying.
// The slice aliases the backing buffer and must not be retained past the
// buffer's lifetime or mutated by the caller.
func (c CharSeq) Bytes() []byte {
	if c.length == 0 {
		return nil
	}
	return c.backing[c.offset : c.offset+c.length]
}

// String allocates and returns a copy of the sequence as a Go string. This
// is the only CharSeq accessor that allocates.
func (c CharSeq) String() string {
	return string(c.Bytes())
}

// Equals reports whether c and other contain the same bytes.
func (c CharSeq) Equals(other CharSeq) bool {
	if c.length != other.length {
		return false
	}
	for i := 0; i < c.length; i++ {
		if c.backing[c.offset+i] != other.backing[other.offset+i] {
			return false
		}
	}
	return true
}

// EqualsBytes reports whether c contains exactly the bytes of b.
func (c CharSeq) EqualsBytes(b []byte) bool {
	if c.length != len(b) {
		return false
	}
	for i := 0; i < c.length; i++ {
		if c.backing[c.offset+i] != b[i] {
			return false
		}
	}
	return true
}

// EqualsString reports whether c contains exactly the bytes of s.
func (c CharSeq) EqualsString(s string) bool {
	if c.length != len(s) {
		return false
	}
	for i := 0; i < c.length; i++ {
		if c.backing[c.offset+i] != s[i] {
			return false
		}
	}
	return true
}

// Hash computes a java.lang.String-compatible hash: h = 31*h + (b & 0xFF)
// over every byte. Kept compatible with the teacher's hash-field-table
// style so dictionaries keyed by CharSeq behave the same as one keyed by
// a plain string.
func (c CharSeq) Hash() int32 {
	var h int32
	for i := 0; i < c.length; i++ {
		h = 31*h + int32(c.backing[c.offset+i]&0xFF)
	}
	return h
}

// SubSeq returns a sub-view [start, end) of c. It panics if the range is
// out of bounds, same as slicing.
func (c CharSeq) SubSeq(start, end int) CharSeq {
	if start < 0 || end > c.length || start > end {
		panic("fixbuf: sub-sequence out of range")
	}
	return CharSeq{backing: c.backing, offset: c.offset + start, length: end - start}
}

// Int64 parses the sequence as a signed decimal integer, accepting an
// optional leading '+' or '-'. It never allocates.
func (c CharSeq) Int64() (int64, error) {
	return ParseInt64(c.Bytes())
}

// Int parses the sequence as a signed decimal integer and returns it as an
// int. It never allocates.
func (c CharSeq) Int() (int, error) {
	v, err := c.Int64()
	return int(v), err
}

// ParseInt64 parses b as a signed decimal integer, accepting an optional
// leading '+' or '-'. It is the allocation-free primitive used by both
// CharSeq.Int64 and the codec's direct-buffer fast paths.
func ParseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, ErrEmpty
	}

	neg := false
	i := 0
	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}
	if i == len(b) {
		return 0, ErrInvalidDigit
	}

	var v int64
	for ; i < len(b); i++ {
		d := b[i]
		if d < '0' || d > '9' {
			return 0, ErrInvalidDigit
		}
		v = v*10 + int64(d-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}
