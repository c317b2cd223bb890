// Package logstore persists every inbound and outbound FIX message for a
// session to an append-only, memory-mapped log, so a session can replay a
// sequence-number range on a resend request, recover its last sequence
// number after a restart, and be tailed for monitoring or cold archival.
//
// File Format:
//
//	File header (64 bytes, little-endian — bookkeeping internal to this
//	package, not part of the wire entry format below):
//	  - Magic: "FLOG" (4 bytes)
//	  - Version: uint16 (2 bytes)
//	  - Entry count: uint32 (4 bytes)
//	  - Next write offset: uint64 (8 bytes)
//	  - Last entry offset: uint64 (8 bytes)
//	  - Reserved: 38 bytes
//
//	Entries (variable, big-endian — matches the documented LogEntry wire
//	layout exactly, so a record is portable byte-for-byte regardless of the
//	host's own endianness):
//	  - Timestamp: int64 nanoseconds since epoch (8 bytes)
//	  - Direction: uint8 (1 byte) - 0=inbound, 1=outbound
//	  - SeqNum: int32 (4 bytes)
//	  - Metadata length: uint16 (2 bytes)
//	  - Metadata: variable (opaque; see Metadata)
//	  - Raw length: int32 (4 bytes)
//	  - Raw: variable (the raw frame bytes)
package logstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	magic        = "FLOG"
	formatVersion = uint16(1)
	headerSize   = 64
	initialSize  = 16 * 1024 * 1024 // 16MB
	growthFactor = 2

	// entryFixedSize is the byte count of an entry's fixed-width fields,
	// before its variable-length metadata and raw sections:
	// timestamp(8) + direction(1) + seqNum(4) + metadataLen(2) + rawLen(4).
	entryFixedSize = 8 + 1 + 4 + 2 + 4
)

// Direction marks whether an entry was received from, or sent to, the
// counterparty.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

// Errors returned by Store.
var (
	ErrClosed         = errors.New("logstore: store is closed")
	ErrCorrupted      = errors.New("logstore: file corrupted")
	ErrVersionMismatch = errors.New("logstore: file version mismatch")
	ErrNotFound       = errors.New("logstore: no entry found")
	ErrFieldTooLarge  = errors.New("logstore: field exceeds wire encoding width")
)

// Metadata is the opaque per-entry payload the LogEntry entity carries
// alongside its raw frame bytes: a short message-type marker — used to tag
// entries that don't wrap an actual wire frame, like the EOD boundary
// marker — plus arbitrary free-form trailing bytes. On the wire this is
// just "metadata:bytes"; MsgType/Extra is this package's own self-describing
// encoding of that opaque span.
type Metadata struct {
	MsgType string
	Extra   []byte
}

// MsgTypeEOD marks the LogEntry an EOD reset appends: "an entry with
// seqNum=0 and msgType=EOD marks an end-of-day boundary".
const MsgTypeEOD = "EOD"

// EncodeEODExtra packs the prior sequence counters an EOD reset captured
// into Metadata.Extra.
func EncodeEODExtra(priorOut, priorIn int64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(priorOut))
	binary.BigEndian.PutUint64(b[8:16], uint64(priorIn))
	return b
}

// DecodeEODExtra unpacks EncodeEODExtra's output.
func DecodeEODExtra(extra []byte) (priorOut, priorIn int64, ok bool) {
	if len(extra) < 16 {
		return 0, 0, false
	}
	return int64(binary.BigEndian.Uint64(extra[0:8])), int64(binary.BigEndian.Uint64(extra[8:16])), true
}

func (m Metadata) encode() []byte {
	if m.MsgType == "" && len(m.Extra) == 0 {
		return nil
	}
	b := make([]byte, 1+len(m.MsgType)+len(m.Extra))
	b[0] = byte(len(m.MsgType))
	copy(b[1:], m.MsgType)
	copy(b[1+len(m.MsgType):], m.Extra)
	return b
}

func decodeMetadata(b []byte) Metadata {
	if len(b) == 0 {
		return Metadata{}
	}
	n := int(b[0])
	if 1+n > len(b) {
		// Corrupt or foreign encoding: surface the raw bytes rather than
		// failing the whole replay over one unparsed entry.
		return Metadata{Extra: b}
	}
	return Metadata{MsgType: string(b[1 : 1+n]), Extra: b[1+n:]}
}

// Entry is one logged FIX message.
type Entry struct {
	Seq       int64
	Timestamp time.Time
	Direction Direction
	Metadata  Metadata
	Data      []byte
}

// IsEOD reports whether e is an end-of-day boundary marker rather than a
// logged frame.
func (e Entry) IsEOD() bool {
	return e.Seq == 0 && e.Metadata.MsgType == MsgTypeEOD
}

type header struct {
	EntryCount      uint32
	NextOffset      uint64
	LastEntryOffset uint64
}

// Store is an append-only, memory-mapped log for a single session stream
// (one Store per session, typically named after SenderCompID-TargetCompID).
type Store struct {
	mu     sync.Mutex
	file   *os.File
	data   []byte
	size   uint64
	header header
	closed bool
}

// Open opens (or creates) the log file for streamName under dir.
func Open(dir, streamName string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("logstore: create directory: %w", err)
	}
	path := filepath.Join(dir, streamName+".flog")

	s := &Store{}
	if _, err := os.Stat(path); err == nil {
		if err := s.openExisting(path); err != nil {
			return nil, err
		}
	} else {
		if err := s.createNew(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) createNew(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("logstore: create file: %w", err)
	}
	if err := f.Truncate(int64(initialSize)); err != nil {
		f.Close()
		return fmt.Errorf("logstore: truncate file: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, initialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("logstore: mmap: %w", err)
	}

	s.file = f
	s.data = data
	s.size = initialSize
	s.header = header{NextOffset: headerSize}
	s.writeHeader()
	return nil
}

func (s *Store) openExisting(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("logstore: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logstore: stat file: %w", err)
	}
	size := uint64(info.Size())
	if size < headerSize {
		f.Close()
		return ErrCorrupted
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("logstore: mmap: %w", err)
	}

	if string(data[0:4]) != magic {
		unix.Munmap(data)
		f.Close()
		return ErrCorrupted
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != formatVersion {
		unix.Munmap(data)
		f.Close()
		return ErrVersionMismatch
	}

	s.file = f
	s.data = data
	s.size = size
	s.header = header{
		EntryCount:      binary.LittleEndian.Uint32(data[6:10]),
		NextOffset:      binary.LittleEndian.Uint64(data[10:18]),
		LastEntryOffset: binary.LittleEndian.Uint64(data[18:26]),
	}
	return nil
}

func (s *Store) writeHeader() {
	copy(s.data[0:4], magic)
	binary.LittleEndian.PutUint16(s.data[4:6], formatVersion)
	binary.LittleEndian.PutUint32(s.data[6:10], s.header.EntryCount)
	binary.LittleEndian.PutUint64(s.data[10:18], s.header.NextOffset)
	binary.LittleEndian.PutUint64(s.data[18:26], s.header.LastEntryOffset)
}

// Append writes one entry to the log: timestamp, direction, seqNum,
// metadata, then the raw frame bytes, in the documented entry wire order.
func (s *Store) Append(seq int64, ts time.Time, dir Direction, metadata Metadata, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if seq < math.MinInt32 || seq > math.MaxInt32 {
		return fmt.Errorf("%w: seq %d does not fit in the entry's int32 seqNum field", ErrFieldTooLarge, seq)
	}
	meta := metadata.encode()
	if len(meta) > math.MaxUint16 {
		return fmt.Errorf("%w: metadata length %d does not fit in the entry's uint16 metadataLen field", ErrFieldTooLarge, len(meta))
	}
	if len(data) > math.MaxInt32 {
		return fmt.Errorf("%w: raw length %d does not fit in the entry's int32 rawLen field", ErrFieldTooLarge, len(data))
	}

	entrySize := uint64(entryFixedSize + len(meta) + len(data))
	if err := s.ensureSpace(entrySize); err != nil {
		return err
	}

	offset := s.header.NextOffset
	entryStart := offset

	binary.BigEndian.PutUint64(s.data[offset:], uint64(ts.UnixNano()))
	offset += 8
	s.data[offset] = uint8(dir)
	offset++
	binary.BigEndian.PutUint32(s.data[offset:], uint32(int32(seq)))
	offset += 4
	binary.BigEndian.PutUint16(s.data[offset:], uint16(len(meta)))
	offset += 2
	copy(s.data[offset:], meta)
	offset += uint64(len(meta))
	binary.BigEndian.PutUint32(s.data[offset:], uint32(len(data)))
	offset += 4
	copy(s.data[offset:], data)
	offset += uint64(len(data))

	s.header.NextOffset = offset
	s.header.LastEntryOffset = entryStart
	s.header.EntryCount++
	s.writeHeader()

	return nil
}

func (s *Store) ensureSpace(needed uint64) error {
	if s.header.NextOffset+needed <= s.size {
		return nil
	}
	newSize := s.size * growthFactor
	for s.header.NextOffset+needed > newSize {
		newSize *= growthFactor
	}
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("logstore: munmap: %w", err)
	}
	if err := s.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("logstore: truncate: %w", err)
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("logstore: mmap: %w", err)
	}
	s.data = data
	s.size = newSize
	return nil
}

// readEntryAt parses one entry starting at offset, returning it plus the
// offset of the entry immediately following it.
func (s *Store) readEntryAt(offset uint64) (Entry, uint64, error) {
	if offset+entryFixedSize > s.size {
		return Entry{}, 0, ErrCorrupted
	}
	ts := int64(binary.BigEndian.Uint64(s.data[offset:]))
	offset += 8
	dir := Direction(s.data[offset])
	offset++
	seq := int64(int32(binary.BigEndian.Uint32(s.data[offset:])))
	offset += 4
	metaLen := binary.BigEndian.Uint16(s.data[offset:])
	offset += 2
	if offset+uint64(metaLen)+4 > s.size {
		return Entry{}, 0, ErrCorrupted
	}
	meta := make([]byte, metaLen)
	copy(meta, s.data[offset:offset+uint64(metaLen)])
	offset += uint64(metaLen)

	length := binary.BigEndian.Uint32(s.data[offset:])
	offset += 4
	if offset+uint64(length) > s.size {
		return Entry{}, 0, ErrCorrupted
	}
	data := make([]byte, length)
	copy(data, s.data[offset:offset+uint64(length)])
	offset += uint64(length)

	return Entry{
		Seq:       seq,
		Timestamp: time.Unix(0, ts),
		Direction: dir,
		Metadata:  decodeMetadata(meta),
		Data:      data,
	}, offset, nil
}

// Replay returns every entry with fromSeq <= Seq <= toSeq, in log order. A
// toSeq of 0 means "through the end of the log."
func (s *Store) Replay(fromSeq, toSeq int64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	offset := uint64(headerSize)
	end := s.header.NextOffset
	for offset < end {
		entry, next, err := s.readEntryAt(offset)
		if err != nil {
			return nil, err
		}
		if entry.Seq >= fromSeq && (toSeq == 0 || entry.Seq <= toSeq) {
			entries = append(entries, entry)
		}
		offset = next
	}
	return entries, nil
}

// ReplayTimeRange returns every entry with from <= Timestamp <= to.
func (s *Store) ReplayTimeRange(from, to time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	offset := uint64(headerSize)
	end := s.header.NextOffset
	for offset < end {
		entry, next, err := s.readEntryAt(offset)
		if err != nil {
			return nil, err
		}
		if !entry.Timestamp.Before(from) && !entry.Timestamp.After(to) {
			entries = append(entries, entry)
		}
		offset = next
	}
	return entries, nil
}

// GetLatest returns the most recently appended entry. The header tracks
// the last entry's offset directly, so this is O(1) rather than a full
// log scan.
func (s *Store) GetLatest() (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, ErrClosed
	}
	if s.header.EntryCount == 0 {
		return Entry{}, ErrNotFound
	}
	entry, _, err := s.readEntryAt(s.header.LastEntryOffset)
	return entry, err
}

// Len returns the number of entries written to the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.header.EntryCount)
}

// Path returns the backing file's path, for callers (cold archival) that
// need to read the raw segment off disk.
func (s *Store) Path() string {
	return s.file.Name()
}

// WriteOffset returns the log's current write position, for callers (a
// positioned Reader's HasNext) that need to know whether new data exists
// past some earlier-recorded offset without reading it.
func (s *Store) WriteOffset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header.NextOffset
}

// Sync flushes pending mmap writes asynchronously; data is already
// crash-safe in the mapped region, so MS_ASYNC (queue the flush and
// return) is sufficient here.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return unix.Msync(s.data, unix.MS_ASYNC)
}

// Close syncs and unmaps the log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	unix.Msync(s.data, unix.MS_SYNC)
	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("logstore: munmap: %w", err)
	}
	return s.file.Close()
}

// ReadFrom returns every entry between offset (inclusive) and the current
// write position, plus the offset to resume from on the next call. Tailer
// uses this to poll incrementally instead of rescanning the whole log.
func (s *Store) ReadFrom(offset uint64) ([]Entry, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, offset, ErrClosed
	}
	if offset < headerSize {
		offset = headerSize
	}

	var entries []Entry
	end := s.header.NextOffset
	for offset < end {
		entry, next, err := s.readEntryAt(offset)
		if err != nil {
			return nil, offset, err
		}
		entries = append(entries, entry)
		offset = next
	}
	return entries, offset, nil
}
