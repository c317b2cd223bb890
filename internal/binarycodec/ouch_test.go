package binarycodec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEnterOrder constructs a syntactically valid EnterOrder with no
// appendages for use across tests.
func buildEnterOrder(t *testing.T, token, symbol string, shares, priceTicks uint32) []byte {
	t.Helper()
	buf := make([]byte, enterOrderBaseLen+1) // +1 for appendage count = 0
	buf[0] = TypeEnterOrder
	copy(buf[1:15], padRight(token, 14))
	buf[15] = 'B'
	binary.BigEndian.PutUint32(buf[16:20], shares)
	copy(buf[20:28], padRight(symbol, 8))
	binary.BigEndian.PutUint32(buf[28:32], priceTicks)
	buf[32] = '0'
	copy(buf[33:37], padRight("ABCD", 4))
	buf[37] = 'Y'
	buf[38] = 'A'
	buf[enterOrderBaseLen] = 0 // appendage count
	return buf
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s[:n]
}

// ===========================================================================
// EnterOrder
// ===========================================================================

func TestEnterOrder_FixedFields(t *testing.T) {
	buf := buildEnterOrder(t, "TOKEN1", "AAPL", 100, 1502500)

	reader := NewInboundReader()
	msg, err := reader.Read(buf, 0, len(buf))
	require.NoError(t, err)

	eo, ok := msg.(*EnterOrder)
	require.True(t, ok)
	assert.Equal(t, byte(TypeEnterOrder), eo.Type())
	assert.Equal(t, "TOKEN1", eo.OrderToken())
	assert.Equal(t, "AAPL", eo.Symbol())
	assert.Equal(t, uint32(100), eo.Shares())
	assert.Equal(t, uint32(1502500), eo.PriceTicks())
}

func TestEnterOrder_WithAppendages(t *testing.T) {
	base := buildEnterOrder(t, "TOKEN2", "MSFT", 200, 3000000)
	buf := base[:enterOrderBaseLen]

	// one appendage: tag 1, data "FIRM-X"
	buf = append(buf, 1) // appendage count
	buf = append(buf, 1) // tag
	lenField := make([]byte, 2)
	binary.BigEndian.PutUint16(lenField, uint16(len("FIRM-X")))
	buf = append(buf, lenField...)
	buf = append(buf, []byte("FIRM-X")...)

	reader := NewInboundReader()
	msg, err := reader.Read(buf, 0, len(buf))
	require.NoError(t, err)

	eo := msg.(*EnterOrder)
	appendages, err := eo.Appendages()
	require.NoError(t, err)
	require.Len(t, appendages, 1)
	assert.Equal(t, byte(1), appendages[0].Tag)
	assert.Equal(t, "FIRM-X", string(appendages[0].Data))
}

func TestEnterOrder_TruncatedAppendageFails(t *testing.T) {
	base := buildEnterOrder(t, "TOKEN3", "GOOG", 50, 1000000)
	buf := base[:enterOrderBaseLen]
	buf = append(buf, 1, 1, 0, 10) // claims 10 bytes of data that aren't there

	reader := NewInboundReader()
	_, err := reader.Read(buf, 0, len(buf))
	assert.ErrorIs(t, err, ErrAppendageTooShort)
}

// ===========================================================================
// CancelOrder
// ===========================================================================

func TestCancelOrder_RoundTrip(t *testing.T) {
	buf := make([]byte, cancelOrderLen)
	buf[0] = TypeCancelOrder
	copy(buf[1:15], padRight("TOKEN4", 14))
	binary.BigEndian.PutUint32(buf[15:19], 25)

	reader := NewInboundReader()
	msg, err := reader.Read(buf, 0, len(buf))
	require.NoError(t, err)

	co := msg.(*CancelOrder)
	assert.Equal(t, "TOKEN4", co.OrderToken())
	assert.Equal(t, uint32(25), co.Shares())
}

// ===========================================================================
// Outbound dispatch
// ===========================================================================

func TestOutboundReader_OrderAccepted(t *testing.T) {
	buf := make([]byte, orderAcceptedBaseLen+1)
	buf[0] = TypeOrderAccepted
	binary.BigEndian.PutUint64(buf[1:9], 1700000000000000000)
	copy(buf[9:23], padRight("TOKEN5", 14))
	buf[23] = 'S'
	binary.BigEndian.PutUint32(buf[24:28], 10)
	copy(buf[28:36], padRight("TSLA", 8))
	binary.BigEndian.PutUint32(buf[36:40], 2500000)
	buf[40] = '0'
	copy(buf[41:45], padRight("ABCD", 4))
	buf[45] = 'Y'
	binary.BigEndian.PutUint64(buf[46:54], 9999)
	buf[orderAcceptedBaseLen] = 0

	reader := NewOutboundReader()
	msg, err := reader.Read(buf, 0, len(buf))
	require.NoError(t, err)

	oa := msg.(*OrderAccepted)
	assert.Equal(t, "TOKEN5", oa.OrderToken())
	assert.Equal(t, "TSLA", oa.Symbol())
	assert.Equal(t, uint64(9999), oa.OrderReferenceNumber())
}

func TestOutboundReader_UnknownTypeFails(t *testing.T) {
	buf := []byte{'?', 0, 0, 0}
	reader := NewOutboundReader()
	_, err := reader.Read(buf, 0, len(buf))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestInboundReader_MessageTooShort(t *testing.T) {
	reader := NewInboundReader()
	_, err := reader.Read([]byte{TypeEnterOrder}, 0, 1)
	assert.ErrorIs(t, err, ErrMessageTooShort)
}
