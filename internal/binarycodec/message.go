package binarycodec

// OuchMessage is implemented by every OUCH flyweight.
type OuchMessage interface {
	Type() byte
	Bytes() []byte
}

// InboundReader dispatches inbound OUCH messages (EnterOrder, ReplaceOrder,
// CancelOrder) by their 1-byte type code. It owns no state beyond the
// dispatch table, so a single instance is shared across connections; each
// Read call wraps the caller-supplied slice in a fresh flyweight rather
// than copying it.
type InboundReader struct{}

// NewInboundReader returns a reader for client-to-venue OUCH messages.
func NewInboundReader() *InboundReader {
	return &InboundReader{}
}

// Read inspects buf[offset] for the message type code and returns the
// corresponding flyweight wrapping buf[offset : offset+length].
func (r *InboundReader) Read(buf []byte, offset, length int) (OuchMessage, error) {
	if length < 1 || offset+length > len(buf) {
		return nil, ErrMessageTooShort
	}
	body := buf[offset : offset+length]
	switch body[0] {
	case TypeEnterOrder:
		return wrapEnterOrder(body)
	case TypeReplaceOrder:
		return wrapReplaceOrder(body)
	case TypeCancelOrder:
		return wrapCancelOrder(body)
	default:
		return nil, ErrUnknownType
	}
}

// OutboundReader dispatches venue-to-client OUCH messages (OrderAccepted,
// OrderReplaced, OrderCanceled, OrderRejected) by their 1-byte type code.
type OutboundReader struct{}

// NewOutboundReader returns a reader for venue-to-client OUCH messages.
func NewOutboundReader() *OutboundReader {
	return &OutboundReader{}
}

// Read inspects buf[offset] for the message type code and returns the
// corresponding flyweight wrapping buf[offset : offset+length].
func (r *OutboundReader) Read(buf []byte, offset, length int) (OuchMessage, error) {
	if length < 1 || offset+length > len(buf) {
		return nil, ErrMessageTooShort
	}
	body := buf[offset : offset+length]
	switch body[0] {
	case TypeOrderAccepted:
		return wrapOrderAccepted(body)
	case TypeOrderReplaced:
		return wrapOrderReplaced(body)
	case TypeOrderCanceled:
		return wrapOrderCanceled(body)
	case TypeOrderRejected:
		return wrapOrderRejected(body)
	default:
		return nil, ErrUnknownType
	}
}
