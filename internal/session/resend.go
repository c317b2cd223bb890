package session

import (
	"fmt"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
	"fixengine/internal/telemetry"
)

// handleSequenceReset applies an inbound SequenceReset (35=4). Reset-mode
// (GapFillFlag != Y) is unconditional, even backwards; gap-fill mode only
// advances expectedIn, and only if NewSeqNo is actually ahead of it.
func (s *Session) handleSequenceReset(msg *fixcodec.Message) error {
	gapFill, _ := msg.Bool(fixcodec.TagGapFillFlag)
	newSeqNo, err := msg.Int64(fixcodec.TagNewSeqNo)
	if err != nil {
		return fmt.Errorf("session: SequenceReset missing NewSeqNo: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !gapFill {
		s.expectedIn = newSeqNo
		s.inbound = make(map[int64]bufferedInbound)
		s.pendingResendFrom = 0
		telemetry.Info("session sequence reset (reset mode)", "session_id", s.cfg.SessionID, "new_seq_no", newSeqNo)
		return nil
	}

	if newSeqNo <= s.expectedIn {
		return fmt.Errorf("session: SequenceReset-GapFill NewSeqNo %d not ahead of expected %d", newSeqNo, s.expectedIn)
	}
	s.expectedIn = newSeqNo
	// Any buffered frames now below the new floor were superseded by
	// the gap fill and can be dropped; anything at or above stays buffered.
	for seq := range s.inbound {
		if seq < newSeqNo {
			delete(s.inbound, seq)
		}
	}
	if len(s.inbound) == 0 {
		s.pendingResendFrom = 0
	}
	telemetry.Info("session sequence reset (gap fill)", "session_id", s.cfg.SessionID, "new_seq_no", newSeqNo)
	return nil
}

// sendSequenceResetGapFill sends a SequenceReset-GapFill covering [fromSeq,
// newSeqNo) without consuming one of the session's own outgoing sequence
// numbers beyond fromSeq itself — the message's own MsgSeqNum is fromSeq.
func (s *Session) sendSequenceResetGapFill(fromSeq, newSeqNo int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder.Reset()
	if err := s.builder.SetMsgType(MsgTypeSequenceReset); err != nil {
		return err
	}
	if err := s.builder.SetField(fixcodec.TagGapFillFlag, "Y"); err != nil {
		return err
	}
	if err := s.builder.SetInt(fixcodec.TagNewSeqNo, newSeqNo); err != nil {
		return err
	}
	if err := s.builder.PrepareForSend(fromSeq, time.Now().UnixMilli()); err != nil {
		return err
	}
	if s.channel == nil {
		return fmt.Errorf("session: send sequence reset: not connected")
	}
	return s.channel.Send(s.builder.Bytes())
}

// handleResendRequest replays stored outbound messages in [BeginSeqNo,
// EndSeqNo] (EndSeqNo 0 meaning "to infinity", resolved against the
// session's current outgoing sequence). Consecutive admin messages in the
// range are collapsed into a single SequenceReset-GapFill spanning them,
// since replaying, say, an old Heartbeat verbatim serves no purpose and
// would itself need a seq number; application messages are resent with
// PossDupFlag=Y and the original SendingTime preserved in OrigSendingTime.
func (s *Session) handleResendRequest(msg *fixcodec.Message) error {
	beginSeq, err := msg.Int64(fixcodec.TagBeginSeqNo)
	if err != nil {
		return fmt.Errorf("session: ResendRequest missing BeginSeqNo: %w", err)
	}
	endSeq, err := msg.Int64(fixcodec.TagEndSeqNo)
	if err != nil {
		return fmt.Errorf("session: ResendRequest missing EndSeqNo: %w", err)
	}

	s.mu.Lock()
	currentOut := s.outgoingSeq
	s.mu.Unlock()
	if endSeq == 0 {
		endSeq = currentOut - 1
	}
	if s.log == nil || beginSeq > endSeq {
		return nil
	}

	entries, err := s.log.Replay(beginSeq, endSeq)
	if err != nil {
		telemetry.Warn("session: resend log replay failed, sending SequenceReset-GapFill",
			"session_id", s.cfg.SessionID, "begin_seq_no", beginSeq, "end_seq_no", endSeq, "error", err)
		return s.sendSequenceResetGapFill(beginSeq, currentOut)
	}
	if len(entries) == 0 {
		// Nothing in the log covers this range at all (aged out/archived):
		// there is nothing to replay it with, so bridge the whole range with
		// an unconditional gap fill.
		telemetry.Warn("session: resend range not found in log, sending SequenceReset-GapFill",
			"session_id", s.cfg.SessionID, "begin_seq_no", beginSeq, "end_seq_no", endSeq)
		return s.sendSequenceResetGapFill(beginSeq, endSeq+1)
	}

	// Replay silently omits gaps (e.g. a segment rotated out to cold
	// storage): track the next seq we expect to see among the returned
	// entries and bridge any hole with a gap fill before continuing.
	expected := beginSeq
	i := 0
	for i < len(entries) {
		e := entries[i]
		if e.Direction != logstore.Outbound {
			i++
			continue
		}
		if e.Seq > expected {
			if err := s.sendSequenceResetGapFill(expected, e.Seq); err != nil {
				return err
			}
			expected = e.Seq
		}

		msgType, ok := peekMsgType(e.Data)
		if ok && isAdminMsgType(msgType) {
			j := i + 1
			for j < len(entries) && entries[j].Direction == logstore.Outbound {
				mt, ok := peekMsgType(entries[j].Data)
				if !ok || !isAdminMsgType(mt) {
					break
				}
				j++
			}
			var nextSeq int64
			if j < len(entries) {
				nextSeq = entries[j].Seq
			} else {
				nextSeq = endSeq + 1
			}
			if err := s.sendSequenceResetGapFill(e.Seq, nextSeq); err != nil {
				return err
			}
			expected = nextSeq
			i = j
			continue
		}

		if err := s.resendMessage(e); err != nil {
			return err
		}
		expected = e.Seq + 1
		i++
	}
	if expected <= endSeq {
		return s.sendSequenceResetGapFill(expected, endSeq+1)
	}
	return nil
}

// peekMsgType extracts tag 35's value from a stored raw frame without
// involving the dictionary, since classifying admin-vs-application only
// needs the well-known single-character MsgType values.
func peekMsgType(raw []byte) (string, bool) {
	for pos := 0; pos < len(raw); {
		eqIdx := -1
		for j := pos; j < len(raw); j++ {
			if raw[j] == '=' {
				eqIdx = j
				break
			}
		}
		if eqIdx == -1 {
			return "", false
		}
		tag := string(raw[pos:eqIdx])
		sohIdx := -1
		for j := eqIdx + 1; j < len(raw); j++ {
			if raw[j] == fixcodec.SOH {
				sohIdx = j
				break
			}
		}
		if sohIdx == -1 {
			return "", false
		}
		if tag == "35" {
			return string(raw[eqIdx+1 : sohIdx]), true
		}
		pos = sohIdx + 1
	}
	return "", false
}

// resendMessage re-parses a previously sent application message and
// rebuilds it with PossDupFlag=Y and OrigSendingTime set to its original
// SendingTime, assigned its original MsgSeqNum. Repeating-group content is
// not currently re-threaded through the builder (the builder writes flat
// tag sequences); resent application messages with repeating groups will
// be missing those groups until the builder grows group-aware writing.
func (s *Session) resendMessage(e logstore.Entry) error {
	orig, err := fixcodec.Wrap(s.dict, e.Data, s.cfg.MaxTag)
	if err != nil {
		return fmt.Errorf("session: resend: re-parse stored message %d: %w", e.Seq, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder.Reset()
	if err := s.builder.SetMsgType(orig.MsgType().String()); err != nil {
		return err
	}
	for tag := 1; tag <= s.cfg.MaxTag; tag++ {
		if isAdminOrTrailerTag(tag) {
			continue
		}
		v, ok := orig.Raw(tag)
		if !ok {
			continue
		}
		if err := s.builder.SetField(tag, v.String()); err != nil {
			return err
		}
	}
	if err := s.builder.SetField(fixcodec.TagPossDupFlag, "Y"); err != nil {
		return err
	}
	if err := s.builder.SetField(tagOrigSendingTm, orig.SendingTime().String()); err != nil {
		return err
	}
	if err := s.builder.PrepareForSend(e.Seq, time.Now().UnixMilli()); err != nil {
		return err
	}
	if s.channel == nil {
		return fmt.Errorf("session: resend: not connected")
	}
	return s.channel.Send(s.builder.Bytes())
}

func isAdminOrTrailerTag(tag int) bool {
	switch tag {
	case fixcodec.TagBeginString, fixcodec.TagBodyLength, fixcodec.TagMsgType,
		fixcodec.TagSenderCompID, fixcodec.TagTargetCompID, fixcodec.TagSeqNum,
		fixcodec.TagSendingTime, fixcodec.TagCheckSum, fixcodec.TagPossDupFlag,
		tagOrigSendingTm:
		return true
	default:
		return false
	}
}
