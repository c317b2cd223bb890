package binarycodec

import (
	"encoding/binary"
	"errors"
)

// Errors specific to SBE decoding.
var (
	ErrGroupTooShort    = errors.New("binarycodec: truncated repeating group header")
	ErrGroupEntryShort  = errors.New("binarycodec: truncated repeating group entry")
	ErrInvalidCountSize = errors.New("binarycodec: numInGroup count size must be 1 or 2 bytes")
)

// sbeHeaderLen is the size of the standard SBE message header: two bytes
// each of blockLength, templateId, schemaId, and version, little-endian.
const sbeHeaderLen = 8

// Header is the fixed 8-byte SBE message header.
type Header struct {
	BlockLength uint16
	TemplateID  uint16
	SchemaID    uint16
	Version     uint16
}

// ParseHeader reads the 8-byte little-endian SBE header from the start of
// buf and returns the header alongside the offset of the first byte past
// it, where the message body (root block, then repeating groups) begins.
func ParseHeader(buf []byte) (Header, int, error) {
	if len(buf) < sbeHeaderLen {
		return Header{}, 0, ErrMessageTooShort
	}
	h := Header{
		BlockLength: binary.LittleEndian.Uint16(buf[0:2]),
		TemplateID:  binary.LittleEndian.Uint16(buf[2:4]),
		SchemaID:    binary.LittleEndian.Uint16(buf[4:6]),
		Version:     binary.LittleEndian.Uint16(buf[6:8]),
	}
	return h, sbeHeaderLen, nil
}

// CountSize selects the width of a repeating group's numInGroup field.
type CountSize int

const (
	// CountSize8 is a 1-byte numInGroup (groups with at most 255 entries).
	CountSize8 CountSize = 1
	// CountSize16 is a 2-byte little-endian numInGroup.
	CountSize16 CountSize = 2
)

// GroupIterator walks a repeating group's fixed-size entries without
// allocating: Next advances a single reusable entry flyweight over the
// underlying buffer instead of constructing a new value each time.
type GroupIterator struct {
	buf         []byte
	blockLength int
	numInGroup  int
	entryOffset int // offset of the group-header's first entry within buf
	index       int
	entry       GroupEntry
}

// GroupEntry is the reusable flyweight handed back by GroupIterator.Next;
// its view is only valid until the next call to Next.
type GroupEntry struct {
	buf []byte
}

// Bytes returns the current entry's raw bytes.
func (e GroupEntry) Bytes() []byte { return e.buf }

// Uint32At reads a little-endian uint32 at the given offset within the
// current entry.
func (e GroupEntry) Uint32At(off int) uint32 {
	return binary.LittleEndian.Uint32(e.buf[off : off+4])
}

// Uint64At reads a little-endian uint64 at the given offset within the
// current entry.
func (e GroupEntry) Uint64At(off int) uint64 {
	return binary.LittleEndian.Uint64(e.buf[off : off+8])
}

// ByteAt returns the byte at the given offset within the current entry.
func (e GroupEntry) ByteAt(off int) byte { return e.buf[off] }

// NewGroupIterator parses a repeating group's sub-header — blockLength (a
// 2-byte little-endian entry size) followed by numInGroup in either 1 or
// 2 bytes — starting at offset within buf, and returns an iterator over
// its entries plus the offset immediately following the whole group
// (header and entries), so callers can continue parsing sibling fields
// or nested groups.
func NewGroupIterator(buf []byte, offset int, countSize CountSize) (*GroupIterator, int, error) {
	if countSize != CountSize8 && countSize != CountSize16 {
		return nil, 0, ErrInvalidCountSize
	}
	headerLen := 2 + int(countSize)
	if offset+headerLen > len(buf) {
		return nil, 0, ErrGroupTooShort
	}
	blockLength := int(binary.LittleEndian.Uint16(buf[offset : offset+2]))

	var numInGroup int
	if countSize == CountSize8 {
		numInGroup = int(buf[offset+2])
	} else {
		numInGroup = int(binary.LittleEndian.Uint16(buf[offset+2 : offset+4]))
	}

	entryOffset := offset + headerLen
	groupEnd := entryOffset + blockLength*numInGroup
	if groupEnd > len(buf) {
		return nil, 0, ErrGroupEntryShort
	}

	it := &GroupIterator{
		buf:         buf,
		blockLength: blockLength,
		numInGroup:  numInGroup,
		entryOffset: entryOffset,
	}
	return it, groupEnd, nil
}

// Len returns the number of entries in the group.
func (it *GroupIterator) Len() int { return it.numInGroup }

// Next advances the iterator and returns its reusable entry flyweight. The
// second return value is false once all entries have been consumed.
func (it *GroupIterator) Next() (GroupEntry, bool) {
	if it.index >= it.numInGroup {
		return GroupEntry{}, false
	}
	start := it.entryOffset + it.index*it.blockLength
	it.entry.buf = it.buf[start : start+it.blockLength]
	it.index++
	return it.entry, true
}

// Reset rewinds the iterator to its first entry, allowing a second pass
// over the same group without reparsing the sub-header.
func (it *GroupIterator) Reset() {
	it.index = 0
}
