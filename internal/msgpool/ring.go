package msgpool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrCapacityNotPowerOfTwo is returned by NewRing when capacity isn't a
// power of two, which the index-masking arithmetic requires.
var ErrCapacityNotPowerOfTwo = errors.New("msgpool: ring capacity must be a power of two")

// Backpressure selects what Offer does when the ring is full.
type Backpressure int

const (
	// SyncFallback (the default) returns false on a full ring; the caller
	// is expected to fall back to handling the message synchronously,
	// off the ring, rather than waiting for space.
	SyncFallback Backpressure = iota
	// Block waits for space to open up, applying backpressure to the
	// producer goroutine.
	Block
	// DropAndResend returns false on a full ring; the caller is expected
	// to drop the inbound message and rely on the counterparty's resend
	// mechanism (FIX gap fill / resend request) to redeliver it later.
	DropAndResend
)

// Ring is a single-producer/single-consumer ring buffer of pre-allocated
// T values. The producer claims a slot, writes into it, and commits it;
// the consumer drains committed slots in order. Capacity must be a power
// of two so slot indices can be computed with a mask instead of a modulo.
type Ring[T any] struct {
	buf          []T
	mask         uint64
	capacity     uint64
	backpressure Backpressure

	writePos  atomic.Uint64 // next sequence to claim (producer-owned)
	commitPos atomic.Uint64 // next sequence visible to the consumer
	readPos   atomic.Uint64 // next sequence to read (consumer-owned)
}

// NewRing constructs a ring of the given power-of-two capacity.
func NewRing[T any](capacity int, backpressure Backpressure) (*Ring[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacityNotPowerOfTwo
	}
	return &Ring[T]{
		buf:          make([]T, capacity),
		mask:         uint64(capacity - 1),
		capacity:     uint64(capacity),
		backpressure: backpressure,
	}, nil
}

// TryClaim reserves the next slot without blocking. ok is false if the
// ring is full. The caller must pass seq to Commit once it has finished
// writing into the returned slot.
func (r *Ring[T]) TryClaim() (slot *T, seq uint64, ok bool) {
	pos := r.writePos.Load()
	if pos-r.readPos.Load() >= r.capacity {
		return nil, 0, false
	}
	r.writePos.Store(pos + 1)
	return &r.buf[pos&r.mask], pos, true
}

// Claim blocks (spinning with Gosched, since contention is expected to be
// brief relative to a context switch) until a slot is free or ctx is done.
func (r *Ring[T]) Claim(ctx context.Context) (slot *T, seq uint64, err error) {
	for {
		if slot, seq, ok := r.TryClaim(); ok {
			return slot, seq, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
			runtime.Gosched()
		}
	}
}

// Commit marks seq's slot as visible to the consumer. Commits must
// complete in claim order: a later seq spins until every earlier seq has
// committed, so the consumer never observes a gap.
func (r *Ring[T]) Commit(seq uint64) {
	for !r.commitPos.CompareAndSwap(seq, seq+1) {
		runtime.Gosched()
	}
}

// Offer claims a slot, lets write populate it, and commits it, applying
// the ring's configured Backpressure policy when the ring is full. The
// bool result reports whether the message was placed on the ring; under
// SyncFallback and DropAndResend it is false when full, and the caller
// decides what that means (handle synchronously, or drop and await
// resend). Under Block it blocks until space is available or ctx is done.
func (r *Ring[T]) Offer(ctx context.Context, write func(*T)) (bool, error) {
	switch r.backpressure {
	case Block:
		slot, seq, err := r.Claim(ctx)
		if err != nil {
			return false, err
		}
		write(slot)
		r.Commit(seq)
		return true, nil
	default: // SyncFallback, DropAndResend
		slot, seq, ok := r.TryClaim()
		if !ok {
			return false, nil
		}
		write(slot)
		r.Commit(seq)
		return true, nil
	}
}

// Read drains up to limit committed slots in order, invoking handler for
// each. A limit of 0 drains every currently-committed slot. It returns
// the number of slots read.
func (r *Ring[T]) Read(handler func(*T), limit int) int {
	avail := r.commitPos.Load() - r.readPos.Load()
	n := avail
	if limit > 0 && uint64(limit) < n {
		n = uint64(limit)
	}
	pos := r.readPos.Load()
	for i := uint64(0); i < n; i++ {
		handler(&r.buf[pos&r.mask])
		pos++
	}
	r.readPos.Store(pos)
	return int(n)
}

// Len returns the number of committed-but-unread slots.
func (r *Ring[T]) Len() int {
	return int(r.commitPos.Load() - r.readPos.Load())
}

// Capacity returns the ring's fixed size.
func (r *Ring[T]) Capacity() int {
	return int(r.capacity)
}
