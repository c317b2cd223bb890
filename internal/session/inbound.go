package session

import (
	"fmt"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
	"fixengine/internal/telemetry"
)

// seqDecision is the outcome of checking an inbound message's sequence
// number against expectedIn.
type seqDecision int

const (
	seqAccept seqDecision = iota
	seqBufferedGap
	seqTooLow
	seqDuplicateReplay
)

// HandleInbound is the single entry point the engine calls for every
// complete frame read off a session's channel. raw aliases the codec's
// accumulation buffer per fixcodec.Parser's contract, so it must already
// have been copied into session-owned (or pooled) memory by the caller
// before this is invoked, since the parsed Message handed to the listener
// refers to raw's bytes.
func (s *Session) HandleInbound(raw []byte) error {
	msg, err := fixcodec.Wrap(s.dict, raw, s.cfg.MaxTag)
	if err != nil {
		return fmt.Errorf("session: malformed inbound frame: %w", err)
	}

	s.mu.Lock()
	s.lastRecv = time.Now()
	s.mu.Unlock()

	if ok, reason := s.validateCompIDs(msg); !ok && !msg.MsgType().EqualsString(MsgTypeLogon) {
		// Logon itself validates CompIDs inside handleLogon so it can
		// disconnect with a Logon-specific reason; every other message
		// type is rejected here before sequence processing.
		s.Disconnect(reason)
		return fmt.Errorf("session: %s", reason)
	}

	possDup, _ := msg.Bool(fixcodec.TagPossDupFlag)
	seq := msg.SeqNum()
	msgType := msg.MsgType().String()

	// SequenceReset-Reset (GapFillFlag != Y) sets expectedIn unconditionally
	// and bypasses the normal gap check entirely, even when it moves
	// expectedIn backwards, per spec.
	if msgType == MsgTypeSequenceReset {
		gapFill, _ := msg.Bool(fixcodec.TagGapFillFlag)
		if !gapFill {
			return s.handleSequenceReset(msg)
		}
	}

	decision := s.checkSequence(seq, possDup)
	switch decision {
	case seqTooLow:
		s.sendLogoutAndDisconnect("MsgSeqNum too low")
		return fmt.Errorf("session: MsgSeqNum too low: got %d expected %d", seq, s.expectedInSnapshot())

	case seqBufferedGap:
		s.bufferInbound(seq, raw)
		return nil

	case seqDuplicateReplay:
		// accept silently: deliver but do not advance expectedIn or persist
		// as a new gap-filling entry
		return s.dispatch(msgType, msg, raw)
	}

	if err := s.persistInbound(seq, msgType, raw); err != nil {
		telemetry.Warn("session: failed to persist inbound message", "session_id", s.cfg.SessionID, "error", err)
	}
	if err := s.dispatch(msgType, msg, raw); err != nil {
		return err
	}
	return s.drainBuffered()
}

func (s *Session) expectedInSnapshot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedIn
}

// checkSequence implements the spec's four-way sequence decision and, for
// the gap case, issues the ResendRequest (suppressing duplicates while one
// is already outstanding).
func (s *Session) checkSequence(seq int64, possDup bool) seqDecision {
	s.mu.Lock()
	expected := s.expectedIn
	switch {
	case seq == expected:
		s.expectedIn++
		s.mu.Unlock()
		return seqAccept
	case seq > expected:
		alreadyPending := s.pendingResendFrom > 0
		if !alreadyPending {
			s.pendingResendFrom = expected
		}
		s.mu.Unlock()
		if !alreadyPending {
			_ = s.sendAdmin(func(b *fixcodec.OutgoingBuilder) error {
				if err := b.SetMsgType(MsgTypeResendRequest); err != nil {
					return err
				}
				if err := b.SetInt(fixcodec.TagBeginSeqNo, expected); err != nil {
					return err
				}
				return b.SetInt(fixcodec.TagEndSeqNo, 0)
			})
		}
		return seqBufferedGap
	case !possDup:
		s.mu.Unlock()
		return seqTooLow
	default:
		s.mu.Unlock()
		return seqDuplicateReplay
	}
}

// bufferInbound holds an out-of-sequence frame (copied, since raw aliases
// the caller's reusable buffer) until the gap ahead of it closes.
func (s *Session) bufferInbound(seq int64, raw []byte) {
	stored := make([]byte, len(raw))
	copy(stored, raw)
	s.mu.Lock()
	s.inbound[seq] = bufferedInbound{data: stored}
	s.mu.Unlock()
}

// drainBuffered processes any previously buffered frames that are now next
// in sequence, in order, stopping at the next gap.
func (s *Session) drainBuffered() error {
	for {
		s.mu.Lock()
		expected := s.expectedIn
		buffered, ok := s.inbound[expected]
		if ok {
			delete(s.inbound, expected)
			s.expectedIn++
			if len(s.inbound) == 0 {
				s.pendingResendFrom = 0
			}
		}
		s.mu.Unlock()
		if !ok {
			return nil
		}

		msg, err := fixcodec.Wrap(s.dict, buffered.data, s.cfg.MaxTag)
		if err != nil {
			return err
		}
		if err := s.persistInbound(expected, msg.MsgType().String(), buffered.data); err != nil {
			telemetry.Warn("session: failed to persist drained message", "session_id", s.cfg.SessionID, "error", err)
		}
		if err := s.dispatch(msg.MsgType().String(), msg, buffered.data); err != nil {
			return err
		}
	}
}

func (s *Session) persistInbound(seq int64, msgType string, raw []byte) error {
	if s.log == nil {
		return nil
	}
	stored := make([]byte, len(raw))
	copy(stored, raw)
	return s.log.Append(seq, time.Now(), logstore.Inbound, logstore.Metadata{MsgType: msgType}, stored)
}

// dispatch routes a parsed, sequence-accepted message to its handler.
func (s *Session) dispatch(msgType string, msg *fixcodec.Message, raw []byte) error {
	switch msgType {
	case MsgTypeLogon:
		return s.handleLogon(msg)
	case MsgTypeLogout:
		return s.handleLogout(msg)
	case MsgTypeHeartbeat:
		return s.handleHeartbeat(msg)
	case MsgTypeTestRequest:
		return s.handleTestRequest(msg)
	case MsgTypeResendRequest:
		return s.handleResendRequest(msg)
	case MsgTypeSequenceReset:
		return s.handleSequenceReset(msg)
	case MsgTypeReject:
		telemetry.Warn("session received Reject", "session_id", s.cfg.SessionID)
		return nil
	default:
		if s.listener != nil {
			s.listener.OnApplicationMessage(s.cfg.SessionID, msg)
		}
		return nil
	}
}
