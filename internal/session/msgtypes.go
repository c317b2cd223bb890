package session

// Admin (session-level) MsgType (tag 35) values. The session-level
// messages handled here are the single ASCII digits 0-5 plus 'A'; anything else is
// an application message as far as resend/gap-fill collapsing is concerned.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
)

func isAdminMsgType(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest, MsgTypeReject, MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	default:
		return false
	}
}

// Tags used by session-level messages that fixcodec's admin-header set
// doesn't already define (TagBeginSeqNo, TagPossDupFlag, etc. live there).
const (
	tagEncryptMethod = 98
	tagOrigSendingTm = 122
	tagText          = 58
)
