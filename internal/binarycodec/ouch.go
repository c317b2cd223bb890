// Package binarycodec implements fixed-offset flyweight codecs for the
// binary order-entry wire formats: OUCH (1-byte type prefix, fixed field
// offsets, optional TLV appendages) and SBE (8-byte header, repeating
// groups iterable without allocation).
package binarycodec

import (
	"encoding/binary"
	"errors"
	"strings"
)

// Errors returned by the OUCH and SBE flyweights.
var (
	ErrMessageTooShort  = errors.New("binarycodec: message too short")
	ErrUnknownType      = errors.New("binarycodec: unknown message type")
	ErrAppendageTooShort = errors.New("binarycodec: truncated appendage TLV")
)

// OUCH message type codes. Inbound and outbound codes are looked up in
// separate tables (direction, not byte value, disambiguates 'U' between
// ReplaceOrder and OrderReplaced).
const (
	TypeEnterOrder    = 'O'
	TypeReplaceOrder  = 'U'
	TypeCancelOrder   = 'X'
	TypeOrderAccepted = 'A'
	TypeOrderReplaced = 'U'
	TypeOrderCanceled = 'C'
	TypeOrderRejected = 'J'
)

// ouchBase is embedded by every OUCH flyweight; it owns the raw bytes and
// provides the fixed-offset primitive accessors shared by all layouts.
type ouchBase struct {
	buf []byte
}

func (b ouchBase) byteAt(off int) byte {
	return b.buf[off]
}

func (b ouchBase) uint32At(off int) uint32 {
	return binary.BigEndian.Uint32(b.buf[off : off+4])
}

func (b ouchBase) uint64At(off int) uint64 {
	return binary.BigEndian.Uint64(b.buf[off : off+8])
}

// asciiAt returns a space-right-padded fixed ASCII field with the padding
// trimmed. It allocates (unlike fixbuf.CharSeq) because OUCH fields are
// small, fixed, and typically copied into an application-level order
// object immediately; the zero-copy discipline is reserved for the FIX
// hot path where message volume is far higher.
func (b ouchBase) asciiAt(off, length int) string {
	return strings.TrimRight(string(b.buf[off:off+length]), " ")
}

// Bytes returns the raw message bytes.
func (b ouchBase) Bytes() []byte {
	return b.buf
}

// Appendage is one (tag, data) pair from a variable-length OUCH message's
// trailing TLV block.
type Appendage struct {
	Tag  byte
	Data []byte
}

// parseAppendages reads an 8-bit appendage count at offset, followed by
// that many (tag:1, length:u16 BE, data) TLVs.
func parseAppendages(buf []byte, offset int) ([]Appendage, error) {
	if offset >= len(buf) {
		return nil, ErrAppendageTooShort
	}
	count := int(buf[offset])
	pos := offset + 1

	appendages := make([]Appendage, 0, count)
	for i := 0; i < count; i++ {
		if pos+3 > len(buf) {
			return nil, ErrAppendageTooShort
		}
		tag := buf[pos]
		length := int(binary.BigEndian.Uint16(buf[pos+1 : pos+3]))
		dataStart := pos + 3
		if dataStart+length > len(buf) {
			return nil, ErrAppendageTooShort
		}
		appendages = append(appendages, Appendage{Tag: tag, Data: buf[dataStart : dataStart+length]})
		pos = dataStart + length
	}
	return appendages, nil
}

// appendagesTotalLen returns the byte count of the appendage count field
// plus all of its TLVs, given the buffer starts the appendage block at
// offset. Used by callers that need the total message length.
func appendagesTotalLen(buf []byte, offset int) (int, error) {
	if offset >= len(buf) {
		return 0, ErrAppendageTooShort
	}
	count := int(buf[offset])
	pos := offset + 1
	for i := 0; i < count; i++ {
		if pos+3 > len(buf) {
			return 0, ErrAppendageTooShort
		}
		length := int(binary.BigEndian.Uint16(buf[pos+1 : pos+3]))
		pos += 3 + length
		if pos > len(buf) {
			return 0, ErrAppendageTooShort
		}
	}
	return pos - offset, nil
}

// ----------------------------------------------------------------------
// EnterOrder (inbound, 'O') — base layout 46 bytes plus appendages.
// ----------------------------------------------------------------------

const enterOrderBaseLen = 46

// EnterOrder is the inbound new-order message.
type EnterOrder struct{ ouchBase }

func wrapEnterOrder(buf []byte) (*EnterOrder, error) {
	if len(buf) < enterOrderBaseLen+1 {
		return nil, ErrMessageTooShort
	}
	total, err := appendagesTotalLen(buf, enterOrderBaseLen)
	if err != nil {
		return nil, err
	}
	if len(buf) < enterOrderBaseLen+total {
		return nil, ErrMessageTooShort
	}
	return &EnterOrder{ouchBase{buf: buf[:enterOrderBaseLen+total]}}, nil
}

func (m *EnterOrder) Type() byte                { return m.byteAt(0) }
func (m *EnterOrder) OrderToken() string        { return m.asciiAt(1, 14) }
func (m *EnterOrder) BuySellIndicator() byte    { return m.byteAt(15) }
func (m *EnterOrder) Shares() uint32            { return m.uint32At(16) }
func (m *EnterOrder) Symbol() string            { return m.asciiAt(20, 8) }
func (m *EnterOrder) PriceTicks() uint32        { return m.uint32At(28) } // scaled by 10000
func (m *EnterOrder) TimeInForce() byte         { return m.byteAt(32) }
func (m *EnterOrder) Firm() string              { return m.asciiAt(33, 4) }
func (m *EnterOrder) Display() byte             { return m.byteAt(37) }
func (m *EnterOrder) Capacity() byte            { return m.byteAt(38) }
func (m *EnterOrder) Appendages() ([]Appendage, error) {
	return parseAppendages(m.buf, enterOrderBaseLen)
}

// ----------------------------------------------------------------------
// ReplaceOrder (inbound, 'U') — base layout 44 bytes plus appendages.
// ----------------------------------------------------------------------

const replaceOrderBaseLen = 44

// ReplaceOrder is the inbound order-replace message.
type ReplaceOrder struct{ ouchBase }

func wrapReplaceOrder(buf []byte) (*ReplaceOrder, error) {
	if len(buf) < replaceOrderBaseLen+1 {
		return nil, ErrMessageTooShort
	}
	total, err := appendagesTotalLen(buf, replaceOrderBaseLen)
	if err != nil {
		return nil, err
	}
	if len(buf) < replaceOrderBaseLen+total {
		return nil, ErrMessageTooShort
	}
	return &ReplaceOrder{ouchBase{buf: buf[:replaceOrderBaseLen+total]}}, nil
}

func (m *ReplaceOrder) Type() byte                     { return m.byteAt(0) }
func (m *ReplaceOrder) ExistingOrderToken() string     { return m.asciiAt(1, 14) }
func (m *ReplaceOrder) ReplacementOrderToken() string  { return m.asciiAt(15, 14) }
func (m *ReplaceOrder) Shares() uint32                 { return m.uint32At(29) }
func (m *ReplaceOrder) PriceTicks() uint32             { return m.uint32At(33) }
func (m *ReplaceOrder) TimeInForce() byte              { return m.byteAt(37) }
func (m *ReplaceOrder) Display() byte                  { return m.byteAt(38) }
func (m *ReplaceOrder) Appendages() ([]Appendage, error) {
	return parseAppendages(m.buf, replaceOrderBaseLen)
}

// ----------------------------------------------------------------------
// CancelOrder (inbound, 'X') — fixed, 19 bytes, no appendages.
// ----------------------------------------------------------------------

const cancelOrderLen = 19

// CancelOrder is the inbound order-cancel message.
type CancelOrder struct{ ouchBase }

func wrapCancelOrder(buf []byte) (*CancelOrder, error) {
	if len(buf) < cancelOrderLen {
		return nil, ErrMessageTooShort
	}
	return &CancelOrder{ouchBase{buf: buf[:cancelOrderLen]}}, nil
}

func (m *CancelOrder) Type() byte         { return m.byteAt(0) }
func (m *CancelOrder) OrderToken() string { return m.asciiAt(1, 14) }
func (m *CancelOrder) Shares() uint32     { return m.uint32At(15) }

// ----------------------------------------------------------------------
// OrderAccepted (outbound, 'A') — base layout 62 bytes plus appendages.
// ----------------------------------------------------------------------

const orderAcceptedBaseLen = 62

// OrderAccepted is the outbound order-acknowledgement message.
type OrderAccepted struct{ ouchBase }

func wrapOrderAccepted(buf []byte) (*OrderAccepted, error) {
	if len(buf) < orderAcceptedBaseLen+1 {
		return nil, ErrMessageTooShort
	}
	total, err := appendagesTotalLen(buf, orderAcceptedBaseLen)
	if err != nil {
		return nil, err
	}
	if len(buf) < orderAcceptedBaseLen+total {
		return nil, ErrMessageTooShort
	}
	return &OrderAccepted{ouchBase{buf: buf[:orderAcceptedBaseLen+total]}}, nil
}

func (m *OrderAccepted) Type() byte                    { return m.byteAt(0) }
func (m *OrderAccepted) Timestamp() uint64             { return m.uint64At(1) }
func (m *OrderAccepted) OrderToken() string            { return m.asciiAt(9, 14) }
func (m *OrderAccepted) BuySellIndicator() byte        { return m.byteAt(23) }
func (m *OrderAccepted) Shares() uint32                { return m.uint32At(24) }
func (m *OrderAccepted) Symbol() string                { return m.asciiAt(28, 8) }
func (m *OrderAccepted) PriceTicks() uint32            { return m.uint32At(36) }
func (m *OrderAccepted) TimeInForce() byte             { return m.byteAt(40) }
func (m *OrderAccepted) Firm() string                  { return m.asciiAt(41, 4) }
func (m *OrderAccepted) Display() byte                 { return m.byteAt(45) }
func (m *OrderAccepted) OrderReferenceNumber() uint64  { return m.uint64At(46) }
func (m *OrderAccepted) Appendages() ([]Appendage, error) {
	return parseAppendages(m.buf, orderAcceptedBaseLen)
}

// ----------------------------------------------------------------------
// OrderReplaced (outbound, 'U') — base layout 76 bytes plus appendages.
// ----------------------------------------------------------------------

const orderReplacedBaseLen = 76

// OrderReplaced is the outbound order-replace-confirmation message.
type OrderReplaced struct{ ouchBase }

func wrapOrderReplaced(buf []byte) (*OrderReplaced, error) {
	if len(buf) < orderReplacedBaseLen+1 {
		return nil, ErrMessageTooShort
	}
	total, err := appendagesTotalLen(buf, orderReplacedBaseLen)
	if err != nil {
		return nil, err
	}
	if len(buf) < orderReplacedBaseLen+total {
		return nil, ErrMessageTooShort
	}
	return &OrderReplaced{ouchBase{buf: buf[:orderReplacedBaseLen+total]}}, nil
}

func (m *OrderReplaced) Type() byte                   { return m.byteAt(0) }
func (m *OrderReplaced) Timestamp() uint64            { return m.uint64At(1) }
func (m *OrderReplaced) ReplacementOrderToken() string { return m.asciiAt(9, 14) }
func (m *OrderReplaced) BuySellIndicator() byte       { return m.byteAt(23) }
func (m *OrderReplaced) Shares() uint32               { return m.uint32At(24) }
func (m *OrderReplaced) Symbol() string               { return m.asciiAt(28, 8) }
func (m *OrderReplaced) PriceTicks() uint32           { return m.uint32At(36) }
func (m *OrderReplaced) TimeInForce() byte            { return m.byteAt(40) }
func (m *OrderReplaced) Firm() string                 { return m.asciiAt(41, 4) }
func (m *OrderReplaced) OrderReferenceNumber() uint64 { return m.uint64At(46) }
func (m *OrderReplaced) PreviousOrderToken() string   { return m.asciiAt(54, 14) }
func (m *OrderReplaced) Appendages() ([]Appendage, error) {
	return parseAppendages(m.buf, orderReplacedBaseLen)
}

// ----------------------------------------------------------------------
// OrderCanceled (outbound, 'C') — fixed, 28 bytes, no appendages.
// ----------------------------------------------------------------------

const orderCanceledLen = 28

// OrderCanceled is the outbound order-cancel-confirmation message.
type OrderCanceled struct{ ouchBase }

func wrapOrderCanceled(buf []byte) (*OrderCanceled, error) {
	if len(buf) < orderCanceledLen {
		return nil, ErrMessageTooShort
	}
	return &OrderCanceled{ouchBase{buf: buf[:orderCanceledLen]}}, nil
}

func (m *OrderCanceled) Type() byte             { return m.byteAt(0) }
func (m *OrderCanceled) Timestamp() uint64      { return m.uint64At(1) }
func (m *OrderCanceled) OrderToken() string     { return m.asciiAt(9, 14) }
func (m *OrderCanceled) DecrementShares() uint32 { return m.uint32At(23) }
func (m *OrderCanceled) Reason() byte           { return m.byteAt(27) }

// ----------------------------------------------------------------------
// OrderRejected (outbound, 'J') — fixed, 27 bytes, no appendages.
// ----------------------------------------------------------------------

const orderRejectedLen = 27

// OrderRejected is the outbound order-rejection message.
type OrderRejected struct{ ouchBase }

func wrapOrderRejected(buf []byte) (*OrderRejected, error) {
	if len(buf) < orderRejectedLen {
		return nil, ErrMessageTooShort
	}
	return &OrderRejected{ouchBase{buf: buf[:orderRejectedLen]}}, nil
}

func (m *OrderRejected) Type() byte         { return m.byteAt(0) }
func (m *OrderRejected) Timestamp() uint64  { return m.uint64At(1) }
func (m *OrderRejected) OrderToken() string { return m.asciiAt(9, 14) }
func (m *OrderRejected) RejectReasonCode() uint32 { return m.uint32At(23) }
