package fixcodec

import (
	"bytes"

	"fixengine/internal/fixbuf"
)

// beginStringPrefix is scanned for at the start of every frame; any bytes
// preceding it in the accumulation buffer are discarded as garbage.
var beginStringPrefix = []byte("8=FIX")

// Parser owns a growable accumulation buffer and extracts complete FIX
// frames from a byte stream that may arrive in arbitrarily small or large
// chunks. It is not safe for concurrent use — one Parser per connection,
// driven from that connection's I/O goroutine.
type Parser struct {
	buf []byte

	haveHeader bool
	bodyStart  int // offset of the byte after BodyLength's SOH (start of tag 35=...)
	frameLen   int // total frame length including the "10=NNN"+SOH trailer
}

// NewParser returns a Parser with an empty accumulation buffer.
func NewParser() *Parser {
	return &Parser{}
}

// AddData appends newly received bytes to the accumulation buffer.
func (p *Parser) AddData(data []byte) {
	p.buf = append(p.buf, data...)
}

// BytesNeeded reports how many more bytes the parser needs before it can
// attempt to complete the current frame: the minimal header size if no
// header has been parsed yet, otherwise the remaining bytes to reach the
// end of the frame currently being assembled.
func (p *Parser) BytesNeeded() int {
	if !p.haveHeader {
		return minHeaderSize
	}
	needed := p.frameLen - len(p.buf)
	if needed < 0 {
		return 0
	}
	return needed
}

// TryReadFrame attempts to extract one complete frame from the
// accumulation buffer. The returned slice aliases the parser's internal
// buffer and is only valid until the next call to AddData or
// TryReadFrame — callers that need to retain it must copy it (typically
// into a pooled buffer) before calling either again.
//
// status > 0 on success (and equals len(frame)); status == 0 means more
// data is needed; status < 0 is one of the FrameErr* codes.
func (p *Parser) TryReadFrame() (frame []byte, status FrameStatus) {
	if !p.haveHeader {
		ok, st := p.parseHeader()
		if !ok {
			return nil, st
		}
	}

	if len(p.buf) < p.frameLen {
		return nil, FrameNeedMoreData
	}

	checksumFieldStart := p.frameLen - trailerLen
	if !bytes.HasPrefix(p.buf[checksumFieldStart:], []byte("10=")) {
		return nil, FrameErrChecksumMisaligned
	}

	digits := p.buf[checksumFieldStart+3 : checksumFieldStart+6]
	for _, d := range digits {
		if d < '0' || d > '9' {
			return nil, FrameErrChecksumMalformed
		}
	}
	if p.buf[checksumFieldStart+6] != SOH {
		return nil, FrameErrChecksumMalformed
	}

	wireChecksum, err := fixbuf.ParseInt64(digits)
	if err != nil {
		return nil, FrameErrChecksumMalformed
	}

	var sum int
	for _, b := range p.buf[:checksumFieldStart] {
		sum += int(b)
	}
	if int64(sum%256) != wireChecksum {
		return nil, FrameErrChecksumMismatch
	}

	n := p.frameLen
	result := p.buf[:n]

	// Compact: drop the consumed frame, keep any bytes of the next one
	// that already arrived. Reslicing past the frame, rather than copying
	// the remainder down over it, leaves the returned bytes intact.
	p.buf = p.buf[n:]
	p.haveHeader = false
	p.bodyStart = 0
	p.frameLen = 0

	return result, FrameStatus(n)
}

// parseHeader scans for "8=FIX" and, if a complete BeginString+BodyLength
// header is present, records bodyStart and frameLen and returns true. It
// returns false with FrameNeedMoreData if more bytes are required, or a
// negative FrameStatus if the header is structurally invalid.
func (p *Parser) parseHeader() (bool, FrameStatus) {
	idx := bytes.Index(p.buf, beginStringPrefix)
	if idx == -1 {
		// Keep only a tail that could still be a partial prefix match.
		keep := len(beginStringPrefix) - 1
		if len(p.buf) > keep {
			p.buf = p.buf[len(p.buf)-keep:]
		}
		return false, FrameNeedMoreData
	}
	if idx > 0 {
		p.buf = p.buf[idx:]
	}

	sohPos := bytes.IndexByte(p.buf[len(beginStringPrefix):], SOH)
	if sohPos == -1 {
		return false, FrameNeedMoreData
	}
	beginStringEnd := len(beginStringPrefix) + sohPos + 1

	rest := p.buf[beginStringEnd:]
	if len(rest) < 2 && bytes.HasPrefix([]byte("9="), rest) {
		return false, FrameNeedMoreData
	}
	if !bytes.HasPrefix(rest, []byte("9=")) {
		return false, FrameErrNoHeader
	}

	valueStart := beginStringEnd + 2
	if valueStart > len(p.buf) {
		return false, FrameNeedMoreData
	}
	bodyLenSOH := bytes.IndexByte(p.buf[valueStart:], SOH)
	if bodyLenSOH == -1 {
		return false, FrameNeedMoreData
	}

	bodyLength, err := fixbuf.ParseInt64(p.buf[valueStart : valueStart+bodyLenSOH])
	if err != nil || bodyLength < 0 {
		return false, FrameErrNoHeader
	}

	bodyStart := valueStart + bodyLenSOH + 1
	p.bodyStart = bodyStart
	p.frameLen = bodyStart + int(bodyLength) + trailerLen
	p.haveHeader = true
	return true, 0
}
