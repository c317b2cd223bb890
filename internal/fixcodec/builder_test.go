package fixcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BasicRoundTrip(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))
	require.NoError(t, b.SetField(11, "ORDER-001"))
	require.NoError(t, b.SetField(55, "AAPL"))
	require.NoError(t, b.PrepareForSend(12345, 1718462400000))

	out := string(b.Bytes())
	assert.True(t, strings.HasPrefix(out, "8=FIX.4.4\x01"))
	assert.Contains(t, out, "\x0135=D\x01")
	assert.Contains(t, out, "\x0111=ORDER-001\x01")
	assert.Contains(t, out, "\x0134=00012345\x01")
	assert.True(t, strings.HasSuffix(out, "\x01") && strings.Contains(out, "10="))
}

func TestBuilder_DuplicateTagFails(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))
	require.NoError(t, b.SetField(11, "ORDER-001"))

	err := b.SetField(11, "ORDER-002")
	assert.ErrorIs(t, err, ErrDuplicateTag)
}

func TestBuilder_NullValueIsNoOp(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))
	require.NoError(t, b.SetField(11, ""))
	// Setting it again with a real value must succeed since the null call
	// never marked the tag as seen.
	require.NoError(t, b.SetField(11, "ORDER-001"))
}

func TestBuilder_ResetPreservesHeader(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))
	require.NoError(t, b.SetField(11, "ORDER-001"))
	require.NoError(t, b.PrepareForSend(1, 1718462400000))

	b.Reset()
	out := string(b.Bytes())
	assert.True(t, strings.HasPrefix(out, "8=FIX.4.4\x01"))
	assert.NotContains(t, out, "11=ORDER-001")

	// the bitmap was cleared too: the same tag can be set again
	require.NoError(t, b.SetMsgType("0"))
	require.NoError(t, b.SetField(11, "ORDER-002"))
}

func TestBuilder_ChecksumMatchesParser(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))
	require.NoError(t, b.SetField(11, "ORDER-001"))
	require.NoError(t, b.PrepareForSend(42, 1718462400000))

	p := NewParser()
	p.AddData(b.Bytes())
	frame, status := p.TryReadFrame()
	require.Greater(t, int(status), 0)
	assert.Equal(t, b.Bytes(), frame)
}

func TestBuilder_SeqNumBoundary(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	require.NoError(t, b.SetMsgType("D"))

	err := b.PrepareForSend(100000000, 1718462400000)
	assert.Error(t, err)
}

func TestBuilder_PrepareWithoutMsgTypeFails(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 200)
	err := b.PrepareForSend(1, 1718462400000)
	assert.Error(t, err)
}

func TestBuilder_TagOutOfRange(t *testing.T) {
	b := NewBuilder("FIX.4.4", "CLIENT", "SERVER", 10)
	err := b.SetField(999, "x")
	assert.ErrorIs(t, err, ErrTagOutOfRange)
}
