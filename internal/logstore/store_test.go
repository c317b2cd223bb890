package logstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Append / Replay
// ===========================================================================

func TestStore_AppendAndReplayBySeq(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "CLIENT-SERVER")
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Append(i, base.Add(time.Duration(i)*time.Second), Outbound, Metadata{}, []byte("msg")))
	}

	entries, err := s.Replay(2, 4)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[0].Seq)
	assert.Equal(t, int64(4), entries[2].Seq)
}

func TestStore_ReplayOpenEndedToSeqZero(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s.Close()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Append(i, time.Now(), Inbound, Metadata{}, []byte("x")))
	}

	entries, err := s.Replay(2, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_ReplayTimeRange(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Append(i, base.Add(time.Duration(i)*time.Minute), Outbound, Metadata{}, []byte("x")))
	}

	entries, err := s.ReplayTimeRange(base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, int64(3), entries[2].Seq)
}

func TestStore_GetLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetLatest()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Append(1, time.Now(), Outbound, Metadata{}, []byte("first")))
	require.NoError(t, s.Append(2, time.Now(), Outbound, Metadata{}, []byte("second")))

	latest, err := s.GetLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Seq)
	assert.Equal(t, "second", string(latest.Data))
}

func TestStore_GrowsBeyondInitialSize(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s.Close()

	big := make([]byte, 1024)
	for i := int64(0); i < initialSize/1024+10; i++ {
		require.NoError(t, s.Append(i, time.Now(), Outbound, Metadata{}, big))
	}
	assert.Greater(t, s.size, uint64(initialSize))

	latest, err := s.GetLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(initialSize/1024+9), latest.Seq)
}

// ===========================================================================
// Reopen / persistence
// ===========================================================================

func TestStore_ReopenRecoversEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	require.NoError(t, s.Append(1, time.Now(), Outbound, Metadata{}, []byte("persisted")))
	require.NoError(t, s.Close())

	s2, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s2.Close()

	entries, err := s2.Replay(1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", string(entries[0].Data))
}

func TestStore_OperationsFailAfterClose(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(1, time.Now(), Outbound, Metadata{}, []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

// ===========================================================================
// ReadFrom (tailer primitive)
// ===========================================================================

func TestStore_ReadFromIncrementalCursor(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "stream")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(1, time.Now(), Outbound, Metadata{}, []byte("a")))

	entries, cursor, err := s.ReadFrom(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, _, err = s.ReadFrom(cursor)
	require.NoError(t, err)
	assert.Len(t, entries, 0)

	require.NoError(t, s.Append(2, time.Now(), Outbound, Metadata{}, []byte("b")))
	entries, _, err = s.ReadFrom(cursor)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Seq)
}
