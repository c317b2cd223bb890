package fixcodec

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRawFrame constructs a syntactically valid frame with a correct
// checksum, for feeding to the Parser in tests.
func buildRawFrame(t *testing.T, body string) []byte {
	t.Helper()
	const beginString = "FIX.4.4"

	bodyLenField := fmt.Sprintf("9=%d\x01", len(body))
	head := fmt.Sprintf("8=%s\x01%s", beginString, bodyLenField)
	prefix := head + body

	var sum int
	for _, c := range []byte(prefix) {
		sum += int(c)
	}
	trailer := fmt.Sprintf("10=%03d\x01", sum%256)
	return []byte(prefix + trailer)
}

func sampleBody() string {
	return "35=D\x0149=CLIENT\x0156=SERVER\x0134=1\x0152=20240615-14:30:45.123\x01"
}

func TestParser_WholeFrameAtOnce(t *testing.T) {
	p := NewParser()
	raw := buildRawFrame(t, sampleBody())
	p.AddData(raw)

	frame, status := p.TryReadFrame()
	require.Equal(t, FrameStatus(len(raw)), status)
	assert.Equal(t, raw, frame)
}

func TestParser_ByteAtATime(t *testing.T) {
	p := NewParser()
	raw := buildRawFrame(t, sampleBody())

	var got []byte
	for i := 0; i < len(raw); i++ {
		p.AddData(raw[i : i+1])
		frame, status := p.TryReadFrame()
		if status > 0 {
			got = frame
			break
		}
		assert.Equal(t, FrameNeedMoreData, status)
	}
	assert.Equal(t, raw, got)
}

func TestParser_LargerThanOneFrame(t *testing.T) {
	p := NewParser()
	frame1 := buildRawFrame(t, sampleBody())
	frame2 := buildRawFrame(t, "35=0\x0149=CLIENT\x0156=SERVER\x0134=2\x0152=20240615-14:30:46.000\x01")

	p.AddData(append(append([]byte{}, frame1...), frame2...))

	got1, status1 := p.TryReadFrame()
	require.Equal(t, FrameStatus(len(frame1)), status1)
	assert.Equal(t, frame1, got1)

	got2, status2 := p.TryReadFrame()
	require.Equal(t, FrameStatus(len(frame2)), status2)
	assert.Equal(t, frame2, got2)
}

func TestParser_DiscardsGarbagePrefix(t *testing.T) {
	p := NewParser()
	raw := buildRawFrame(t, sampleBody())
	garbage := []byte("\x00\x00junk-before-frame")
	p.AddData(append(garbage, raw...))

	frame, status := p.TryReadFrame()
	require.Equal(t, FrameStatus(len(raw)), status)
	assert.Equal(t, raw, frame)
}

func TestParser_ChecksumMismatch(t *testing.T) {
	p := NewParser()
	raw := buildRawFrame(t, sampleBody())
	raw[len(raw)-2] = '0' + (raw[len(raw)-2]-'0'+1)%10 // change a checksum digit to a different digit

	p.AddData(raw)
	_, status := p.TryReadFrame()
	assert.Equal(t, FrameErrChecksumMismatch, status)
}

func TestParser_NeedMoreData(t *testing.T) {
	p := NewParser()
	p.AddData([]byte("8=FIX.4.4\x019=12\x01"))
	_, status := p.TryReadFrame()
	assert.Equal(t, FrameNeedMoreData, status)
	assert.Greater(t, p.BytesNeeded(), 0)
}

func TestParser_BytesNeededBeforeHeader(t *testing.T) {
	p := NewParser()
	assert.Equal(t, minHeaderSize, p.BytesNeeded())
}

func TestParser_InvalidHeaderMissingBodyLengthTag(t *testing.T) {
	p := NewParser()
	p.AddData([]byte("8=FIX.4.4\x01" + strings.Repeat("x", 30)))
	_, status := p.TryReadFrame()
	assert.Equal(t, FrameErrNoHeader, status)
}
