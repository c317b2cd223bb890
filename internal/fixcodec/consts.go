// Package fixcodec implements FIX tag=value frame extraction, an incoming
// flyweight for zero-copy field access, and an outgoing builder for
// constructing messages into pooled buffers.
package fixcodec

// SOH is the FIX field delimiter.
const SOH = 0x01

// Admin (header/trailer) tags present on every application/session message.
const (
	TagBeginString   = 8
	TagBodyLength    = 9
	TagMsgType       = 35
	TagSenderCompID  = 49
	TagTargetCompID  = 56
	TagSeqNum        = 34
	TagSendingTime   = 52
	TagCheckSum      = 10
	TagPossDupFlag   = 43
	TagRefSeqNum     = 45
	TagRefTagID      = 371
	TagRefMsgType    = 372
	TagSessionReject = 373
	TagBeginSeqNo    = 7
	TagEndSeqNo      = 16
	TagNewSeqNo      = 36
	TagGapFillFlag   = 123
	TagTestReqID     = 112
	TagEncryptMethod = 98
	TagHeartBtInt    = 108
	TagResetSeqNumFl = 141
)

// minHeaderSize is the fewest bytes that could possibly contain a complete
// BeginString+BodyLength header: "8=X|9=0|" plus slack, used as the
// bytesNeeded() floor before any header has been parsed.
const minHeaderSize = 25

// trailerLen is len("10=NNN" + SOH): the fixed-size checksum trailer.
const trailerLen = 7
