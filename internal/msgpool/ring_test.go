package msgpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Construction
// ===========================================================================

func TestNewRing_RejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewRing[int](3, SyncFallback)
	assert.ErrorIs(t, err, ErrCapacityNotPowerOfTwo)
}

func TestNewRing_AcceptsPowerOfTwo(t *testing.T) {
	r, err := NewRing[int](8, SyncFallback)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Capacity())
}

// ===========================================================================
// TryClaim / Commit / Read
// ===========================================================================

func TestRing_ClaimCommitReadInOrder(t *testing.T) {
	r, err := NewRing[int](4, SyncFallback)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		slot, seq, ok := r.TryClaim()
		require.True(t, ok)
		*slot = i * 10
		r.Commit(seq)
	}

	var got []int
	n := r.Read(func(v *int) { got = append(got, *v) }, 0)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{0, 10, 20}, got)
	assert.Equal(t, 0, r.Len())
}

func TestRing_ReadRespectsLimit(t *testing.T) {
	r, err := NewRing[int](4, SyncFallback)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		slot, seq, ok := r.TryClaim()
		require.True(t, ok)
		*slot = i
		r.Commit(seq)
	}

	var got []int
	n := r.Read(func(v *int) { got = append(got, *v) }, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, r.Len())
}

func TestRing_TryClaimFailsWhenFull(t *testing.T) {
	r, err := NewRing[int](2, SyncFallback)
	require.NoError(t, err)

	_, seq0, ok := r.TryClaim()
	require.True(t, ok)
	r.Commit(seq0)
	_, seq1, ok := r.TryClaim()
	require.True(t, ok)
	r.Commit(seq1)

	_, _, ok = r.TryClaim()
	assert.False(t, ok)
}

func TestRing_SpaceFreesAfterRead(t *testing.T) {
	r, err := NewRing[int](2, SyncFallback)
	require.NoError(t, err)

	slot, seq, ok := r.TryClaim()
	require.True(t, ok)
	*slot = 1
	r.Commit(seq)
	slot, seq, ok = r.TryClaim()
	require.True(t, ok)
	*slot = 2
	r.Commit(seq)

	r.Read(func(v *int) {}, 1)

	_, _, ok = r.TryClaim()
	assert.True(t, ok)
}

// ===========================================================================
// Offer / Backpressure
// ===========================================================================

func TestRing_OfferSyncFallbackReturnsFalseWhenFull(t *testing.T) {
	r, err := NewRing[int](1, SyncFallback)
	require.NoError(t, err)

	ok, err := r.Offer(context.Background(), func(v *int) { *v = 1 })
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Offer(context.Background(), func(v *int) { *v = 2 })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRing_OfferDropAndResendReturnsFalseWhenFull(t *testing.T) {
	r, err := NewRing[int](1, DropAndResend)
	require.NoError(t, err)

	_, _ = r.Offer(context.Background(), func(v *int) { *v = 1 })
	ok, err := r.Offer(context.Background(), func(v *int) { *v = 2 })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRing_OfferBlockWaitsForSpace(t *testing.T) {
	r, err := NewRing[int](1, Block)
	require.NoError(t, err)

	ok, err := r.Offer(context.Background(), func(v *int) { *v = 1 })
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		r.Read(func(v *int) {}, 1)
	}()

	ok, err = r.Offer(context.Background(), func(v *int) { *v = 2 })
	require.NoError(t, err)
	assert.True(t, ok)
	wg.Wait()
}

func TestRing_OfferBlockRespectsContextCancellation(t *testing.T) {
	r, err := NewRing[int](1, Block)
	require.NoError(t, err)
	_, _ = r.Offer(context.Background(), func(v *int) { *v = 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Offer(ctx, func(v *int) { *v = 2 })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ===========================================================================
// Single-producer/single-consumer concurrency
// ===========================================================================

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	r, err := NewRing[int](16, SyncFallback)
	require.NoError(t, err)

	const total = 1000
	var produced, consumed []int
	var mu sync.Mutex

	done := make(chan struct{})
	go func() {
		for len(consumed) < total {
			r.Read(func(v *int) {
				mu.Lock()
				consumed = append(consumed, *v)
				mu.Unlock()
			}, 0)
		}
		close(done)
	}()

	for i := 0; i < total; i++ {
		for {
			ok, _ := r.Offer(context.Background(), func(v *int) { *v = i })
			if ok {
				mu.Lock()
				produced = append(produced, i)
				mu.Unlock()
				break
			}
		}
	}
	<-done

	assert.Equal(t, total, len(produced))
	assert.Equal(t, total, len(consumed))
	assert.Equal(t, produced, consumed)
}
