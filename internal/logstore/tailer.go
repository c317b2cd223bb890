package logstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StreamEntry is one entry delivered by a Tailer or Reader, tagged with
// which stream (session) it came from.
type StreamEntry struct {
	StreamName string
	Entry      Entry
}

// namedStore pairs a Store with the stream name it was opened under and the
// offset a reader has consumed up to.
type namedStore struct {
	name   string
	store  *Store
	cursor uint64
}

// pollRound reads every named store once from its cursor, merges the new
// entries in timestamp order (stable on ties by insertion order — streams
// are iterated in a fixed, name-sorted order and each stream's own entries
// stay in their log order), and advances each cursor past what it returned.
func pollRound(stores []*namedStore) ([]StreamEntry, error) {
	var round []StreamEntry
	for _, ns := range stores {
		entries, next, err := ns.store.ReadFrom(ns.cursor)
		if err != nil {
			return nil, err
		}
		ns.cursor = next
		for _, e := range entries {
			round = append(round, StreamEntry{StreamName: ns.name, Entry: e})
		}
	}
	sort.SliceStable(round, func(i, j int) bool {
		return round[i].Entry.Timestamp.Before(round[j].Entry.Timestamp)
	})
	return round, nil
}

func sortedNamedStores(streams map[string]*Store, cursor uint64) []*namedStore {
	stores := make([]*namedStore, 0, len(streams))
	for name, store := range streams {
		stores = append(stores, &namedStore{name: name, store: store, cursor: cursor})
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].name < stores[j].name })
	return stores
}

// Tailer polls a set of Store instances — typically one per active
// session — and delivers newly appended entries merged into a single,
// time-ordered stream. There is no fsnotify equivalent for a
// memory-mapped file (writes never touch the directory entry), so new
// data is detected by polling each store's write offset; ParkNanos
// controls how long the tailer sleeps between polls that find nothing
// new, trading latency for CPU when streams are quiet.
type Tailer struct {
	ID        uuid.UUID
	ParkNanos int64

	stores []*namedStore
}

// NewTailer constructs a tailer over the given named stores, starting from
// the beginning of each. parkNanos is the base sleep duration between empty
// polls; 0 selects a 1ms default.
func NewTailer(streams map[string]*Store, parkNanos int64) *Tailer {
	if parkNanos <= 0 {
		parkNanos = int64(time.Millisecond)
	}
	return &Tailer{ID: uuid.New(), ParkNanos: parkNanos, stores: sortedNamedStores(streams, 0)}
}

// Run polls every stream until ctx is done, invoking handler for each new
// entry in timestamp order across the merged set found in a given poll
// round. Backoff doubles (capped at 64x ParkNanos) on consecutive empty
// rounds and resets to ParkNanos the moment any entry is found.
func (t *Tailer) Run(ctx context.Context, handler func(StreamEntry)) error {
	backoff := t.ParkNanos
	const maxBackoffMultiplier = 64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		round, err := pollRound(t.stores)
		if err != nil {
			return err
		}

		if len(round) == 0 {
			time.Sleep(time.Duration(backoff))
			if backoff < t.ParkNanos*maxBackoffMultiplier {
				backoff *= 2
			}
			continue
		}
		backoff = t.ParkNanos

		for _, se := range round {
			handler(se)
		}
	}
}

// Reader is a positioned, pollable cursor over one or more log streams,
// merged by timestamp when more than one stream is selected. It implements
// the createReader(stream?, startPosition) tailer handle: a reader opened at
// a previously recorded offset resumes from exactly that point instead of
// rescanning the whole log, and a fresh reader started at offset 0 replays
// every entry from the beginning byte-for-byte.
type Reader struct {
	stores []*namedStore
	closed bool
}

// CreateReader builds a positioned Reader. An empty stream name selects
// every store in streams, merged ("streamName=null means all streams
// merged"); a non-empty name selects just that one stream. startPosition
// seeds the selected stream(s)' starting read offset.
func CreateReader(streams map[string]*Store, stream string, startPosition uint64) (*Reader, error) {
	if stream == "" {
		return &Reader{stores: sortedNamedStores(streams, startPosition)}, nil
	}
	store, ok := streams[stream]
	if !ok {
		return nil, fmt.Errorf("logstore: create reader: unknown stream %q", stream)
	}
	return &Reader{stores: []*namedStore{{name: stream, store: store, cursor: startPosition}}}, nil
}

// HasNext reports whether any selected stream has data past the reader's
// current position, without consuming it.
func (r *Reader) HasNext() bool {
	for _, ns := range r.stores {
		if ns.store.WriteOffset() > ns.cursor {
			return true
		}
	}
	return false
}

// Position returns the current read offset of each selected stream, for a
// caller that wants to persist it and resume later via CreateReader.
func (r *Reader) Position() map[string]uint64 {
	pos := make(map[string]uint64, len(r.stores))
	for _, ns := range r.stores {
		pos[ns.name] = ns.cursor
	}
	return pos
}

// Seek repositions named streams' cursors; streams not present in positions
// are left untouched.
func (r *Reader) Seek(positions map[string]uint64) {
	for _, ns := range r.stores {
		if p, ok := positions[ns.name]; ok {
			ns.cursor = p
		}
	}
}

// Poll returns whatever new entries are currently available across the
// selected streams, merged in timestamp order (stable on ties), blocking up
// to timeout if none are yet available. A timeout of 0 polls once without
// blocking — the "batched poll" entry point alongside blocking poll.
func (r *Reader) Poll(ctx context.Context, timeout time.Duration) ([]StreamEntry, error) {
	if r.closed {
		return nil, ErrClosed
	}

	const pollInterval = time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		round, err := pollRound(r.stores)
		if err != nil {
			return nil, err
		}
		if len(round) > 0 || timeout <= 0 || !time.Now().Before(deadline) {
			return round, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Close marks the reader closed; subsequent Poll calls return ErrClosed.
// The underlying Stores are owned by the caller and are not closed here.
func (r *Reader) Close() error {
	r.closed = true
	return nil
}
