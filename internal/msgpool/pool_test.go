package msgpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMsg struct {
	Seq int64
}

// ===========================================================================
// Acquire / Release
// ===========================================================================

func TestPool_AcquireReleaseRoundTrip(t *testing.T) {
	p := New[testMsg](4, func(m *testMsg) { m.Seq = 0 })

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Value.Seq = 42
	assert.Equal(t, 3, p.Available())

	h.Release()
	assert.Equal(t, 4, p.Available())
}

func TestPool_ResetAppliedOnRelease(t *testing.T) {
	p := New[testMsg](1, func(m *testMsg) { m.Seq = -1 })

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Value.Seq = 99
	h.Release()

	h2, ok := p.TryAcquire()
	require.True(t, ok)
	assert.Equal(t, int64(-1), h2.Value.Seq)
}

func TestPool_DoubleReleaseIsIdempotent(t *testing.T) {
	p := New[testMsg](1, nil)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	h.Release()
	h.Release() // must not push the slot back twice
	assert.Equal(t, 1, p.Available())
}

func TestPool_TryAcquireFailsWhenExhausted(t *testing.T) {
	p := New[testMsg](1, nil)

	_, ok := p.TryAcquire()
	require.True(t, ok)

	_, ok = p.TryAcquire()
	assert.False(t, ok)
}

func TestPool_TryAcquireTimeoutExpires(t *testing.T) {
	p := New[testMsg](1, nil)
	_, ok := p.TryAcquire()
	require.True(t, ok)

	start := time.Now()
	_, ok = p.TryAcquireTimeout(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	p := New[testMsg](1, nil)
	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		h.Release()
		close(released)
	}()

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	<-released
	assert.NotNil(t, h2)
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	p := New[testMsg](1, nil)
	_, ok := p.TryAcquire()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_CapacityReportsFixedSize(t *testing.T) {
	p := New[testMsg](8, nil)
	assert.Equal(t, 8, p.Capacity())
}
