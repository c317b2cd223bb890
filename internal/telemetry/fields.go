package telemetry

import "log/slog"

// Structured logging keys, grouped by domain. Each has a typed constructor
// below so call sites don't have to remember the slog.Attr kind.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Session identity
	KeySessionID    = "session_id"
	KeySenderCompID = "sender_comp_id"
	KeyTargetCompID = "target_comp_id"
	KeyQualifier    = "qualifier"
	KeyClientIP     = "client_ip"

	// Message metadata
	KeyMsgType     = "msg_type"
	KeySeqNum      = "seq_num"
	KeyExpectedSeq = "expected_seq"
	KeyBodyLength  = "body_length"
	KeyChecksum    = "checksum"
	KeyPossDup     = "poss_dup_flag"
	KeyDirection   = "direction"
	KeyTestReqID   = "test_req_id"

	// Session lifecycle
	KeyState       = "state"
	KeyPrevState   = "prev_state"
	KeyReason      = "reason"
	KeyGapFrom     = "gap_from"
	KeyGapTo       = "gap_to"
	KeyHeartbeatIv = "heartbeat_interval"

	// Transport
	KeyRemoteAddr = "remote_addr"
	KeyLocalPort  = "local_port"
	KeyBytesRead  = "bytes_read"
	KeyBytesWrite = "bytes_written"

	// Log store
	KeyStreamID    = "stream_id"
	KeySegmentPath = "segment_path"
	KeyOffset      = "offset"
	KeyEntryCount  = "entry_count"

	// Scheduler
	KeyWindowName = "window_name"
	KeyTimezone   = "timezone"

	// Storage backend
	KeyBackend = "backend"

	// Generic
	KeyError    = "error"
	KeyDuration = "duration_ms"
)

func TraceID(v string) slog.Attr      { return slog.String(KeyTraceID, v) }
func SpanID(v string) slog.Attr       { return slog.String(KeySpanID, v) }
func SessionID(v string) slog.Attr    { return slog.String(KeySessionID, v) }
func SenderCompID(v string) slog.Attr { return slog.String(KeySenderCompID, v) }
func TargetCompID(v string) slog.Attr { return slog.String(KeyTargetCompID, v) }
func Qualifier(v string) slog.Attr    { return slog.String(KeyQualifier, v) }
func ClientIP(v string) slog.Attr     { return slog.String(KeyClientIP, v) }

func MsgType(v string) slog.Attr     { return slog.String(KeyMsgType, v) }
func SeqNum(v int64) slog.Attr       { return slog.Int64(KeySeqNum, v) }
func ExpectedSeq(v int64) slog.Attr  { return slog.Int64(KeyExpectedSeq, v) }
func BodyLength(v int) slog.Attr     { return slog.Int(KeyBodyLength, v) }
func Checksum(v string) slog.Attr    { return slog.String(KeyChecksum, v) }
func PossDup(v bool) slog.Attr       { return slog.Bool(KeyPossDup, v) }
func Direction(v string) slog.Attr   { return slog.String(KeyDirection, v) }
func TestReqID(v string) slog.Attr   { return slog.String(KeyTestReqID, v) }

func State(v string) slog.Attr       { return slog.String(KeyState, v) }
func PrevState(v string) slog.Attr   { return slog.String(KeyPrevState, v) }
func Reason(v string) slog.Attr      { return slog.String(KeyReason, v) }
func GapFrom(v int64) slog.Attr      { return slog.Int64(KeyGapFrom, v) }
func GapTo(v int64) slog.Attr        { return slog.Int64(KeyGapTo, v) }
func HeartbeatIv(v int) slog.Attr    { return slog.Int(KeyHeartbeatIv, v) }

func RemoteAddr(v string) slog.Attr  { return slog.String(KeyRemoteAddr, v) }
func LocalPort(v int) slog.Attr      { return slog.Int(KeyLocalPort, v) }
func BytesRead(v int) slog.Attr      { return slog.Int(KeyBytesRead, v) }
func BytesWrite(v int) slog.Attr     { return slog.Int(KeyBytesWrite, v) }

func StreamID(v string) slog.Attr    { return slog.String(KeyStreamID, v) }
func SegmentPath(v string) slog.Attr { return slog.String(KeySegmentPath, v) }
func Offset(v int64) slog.Attr       { return slog.Int64(KeyOffset, v) }
func EntryCount(v int) slog.Attr     { return slog.Int(KeyEntryCount, v) }

func WindowName(v string) slog.Attr { return slog.String(KeyWindowName, v) }
func Timezone(v string) slog.Attr   { return slog.String(KeyTimezone, v) }

func Backend(v string) slog.Attr { return slog.String(KeyBackend, v) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
