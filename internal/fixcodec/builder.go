package fixcodec

import (
	"fmt"
	"strconv"
	"time"
)

// initialBuilderCapacity is how much initial capacity to reserve for the fixed
// prefix plus a modestly sized body, to keep growth rare on the hot path.
const initialBuilderCapacity = 256

// OutgoingBuilder constructs one FIX message at a time into a single
// reused, growable buffer. The fixed header prefix (BeginString,
// placeholder BodyLength, SenderCompID, TargetCompID) is written once at
// construction; Reset clears only the body and the per-build tag bitmap.
//
// Not safe for concurrent use: builders are meant to be pool-owned and
// used by exactly one goroutine between Acquire and Release.
type OutgoingBuilder struct {
	buf []byte

	bodyLenValueOffset int // offset of the 5-digit BodyLength placeholder
	headerEnd           int // offset where the body starts (right after TargetCompID's SOH)

	maxTag       int
	seen         []uint64 // bitmap, one bit per tag
	inUse        bool
	msgType      bool
	msgTypeValue string
}

// NewBuilder allocates a builder with its fixed header prefix pre-written.
// maxTag bounds the duplicate-tag bitmap.
func NewBuilder(beginString, senderCompID, targetCompID string, maxTag int) *OutgoingBuilder {
	b := &OutgoingBuilder{
		maxTag: maxTag,
		seen:   make([]uint64, maxTag/64+1),
	}
	b.buf = make([]byte, 0, initialBuilderCapacity)
	b.writeHeader(beginString, senderCompID, targetCompID)
	return b
}

func (b *OutgoingBuilder) writeHeader(beginString, senderCompID, targetCompID string) {
	b.buf = append(b.buf, "8="...)
	b.buf = append(b.buf, beginString...)
	b.buf = append(b.buf, SOH)

	b.buf = append(b.buf, "9="...)
	b.bodyLenValueOffset = len(b.buf)
	b.buf = append(b.buf, "00000"...)
	b.buf = append(b.buf, SOH)

	b.buf = append(b.buf, "49="...)
	b.buf = append(b.buf, senderCompID...)
	b.buf = append(b.buf, SOH)

	b.buf = append(b.buf, "56="...)
	b.buf = append(b.buf, targetCompID...)
	b.buf = append(b.buf, SOH)

	b.headerEnd = len(b.buf)
	b.inUse = true
}

// SetMsgType writes tag 35 at the start of the body. It must be called
// before any other SetField call in a given build.
func (b *OutgoingBuilder) SetMsgType(msgType string) error {
	if err := b.SetField(TagMsgType, msgType); err != nil {
		return err
	}
	b.msgType = true
	b.msgTypeValue = msgType
	return nil
}

// MsgType returns the value last passed to SetMsgType, or "" if it has not
// been set since the last Reset.
func (b *OutgoingBuilder) MsgType() string {
	return b.msgTypeValue
}

// SetField appends "tag=value<SOH>" to the body. Setting the same tag
// twice within one build fails with ErrDuplicateTag. An empty value is a
// no-op (a null field is simply not written).
func (b *OutgoingBuilder) SetField(tag int, value string) error {
	if !b.inUse {
		return ErrBuilderNotInUse
	}
	if tag < 0 || tag > b.maxTag {
		return ErrTagOutOfRange
	}
	if value == "" {
		return nil
	}

	word, bit := tag/64, uint(tag%64)
	if b.seen[word]&(1<<bit) != 0 {
		return ErrDuplicateTag
	}
	b.seen[word] |= 1 << bit

	b.buf = append(b.buf, strconv.Itoa(tag)...)
	b.buf = append(b.buf, '=')
	b.buf = append(b.buf, value...)
	b.buf = append(b.buf, SOH)
	return nil
}

// SetInt is a convenience wrapper over SetField for integer-valued tags.
func (b *OutgoingBuilder) SetInt(tag int, value int64) error {
	return b.SetField(tag, strconv.FormatInt(value, 10))
}

// PrepareForSend writes SeqNum (tag 34, zero-padded to 8 digits) and
// SendingTime (tag 52, YYYYMMDD-HH:MM:SS.sss UTC) for epochMs, fills in
// the BodyLength placeholder with the byte count from just after the
// BodyLength SOH to just before the checksum field, and appends the
// checksum trailer (tag 10, 3-digit zero-padded, sum of all preceding
// bytes mod 256). seq must be in [1, 99999999].
func (b *OutgoingBuilder) PrepareForSend(seq int64, epochMs int64) error {
	if !b.inUse {
		return ErrBuilderNotInUse
	}
	if !b.msgType {
		return fmt.Errorf("fixcodec: prepareForSend: MsgType not set")
	}
	if seq < 1 || seq > 99999999 {
		return fmt.Errorf("fixcodec: prepareForSend: seq %d out of range", seq)
	}

	if err := b.SetField(TagSeqNum, fmt.Sprintf("%08d", seq)); err != nil {
		return err
	}
	if err := b.SetField(TagSendingTime, formatSendingTime(epochMs)); err != nil {
		return err
	}

	bodyLength := len(b.buf) - (b.bodyLenValueOffset + len("00000") + 1)
	bodyLenStr := fmt.Sprintf("%05d", bodyLength)
	copy(b.buf[b.bodyLenValueOffset:b.bodyLenValueOffset+5], bodyLenStr)

	var sum int
	for _, c := range b.buf {
		sum += int(c)
	}
	checksum := sum % 256

	b.buf = append(b.buf, "10="...)
	b.buf = append(b.buf, fmt.Sprintf("%03d", checksum)...)
	b.buf = append(b.buf, SOH)
	return nil
}

// formatSendingTime renders epochMs as YYYYMMDD-HH:MM:SS.sss in UTC.
func formatSendingTime(epochMs int64) string {
	t := time.UnixMilli(epochMs).UTC()
	return t.Format("20060102-15:04:05.000")
}

// Bytes returns the built frame. Valid until the next Reset or Release.
func (b *OutgoingBuilder) Bytes() []byte {
	return b.buf
}

// Reset clears the body and the tag bitmap, preserving the header prefix
// so the builder can be reused for the next message.
func (b *OutgoingBuilder) Reset() {
	b.buf = b.buf[:b.headerEnd]
	for i := range b.seen {
		b.seen[i] = 0
	}
	b.msgType = false
	b.msgTypeValue = ""
}

// Release marks the builder as no longer in use. A pool calling this must
// have already reset it; further SetField/PrepareForSend calls fail until
// the pool re-acquires it (which should call Reset again defensively).
func (b *OutgoingBuilder) Release() {
	b.inUse = false
}

// Reacquire marks a released builder as back in use, for pool Acquire
// paths that keep builders rather than reallocating them.
func (b *OutgoingBuilder) Reacquire() {
	b.inUse = true
}
