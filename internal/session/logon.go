package session

import (
	"fmt"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/telemetry"
)

// InitiateLogon sends the first Logon as the connection's initiator,
// transitioning Connected -> LogonSent. If resetSeqNum is set, both
// counters are reset to 1 before the Logon is built, per spec.
func (s *Session) InitiateLogon(resetSeqNum bool) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return fmt.Errorf("session: initiate logon: invalid transition from %s", s.state)
	}
	if resetSeqNum {
		s.outgoingSeq = 1
		s.expectedIn = 1
	}
	heartBtInt := s.heartBtInt
	err := s.sendLocked(func(b *fixcodec.OutgoingBuilder) error {
		return buildLogon(b, heartBtInt, resetSeqNum)
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateLogonSent
	s.mu.Unlock()

	s.notifyStateChange(StateConnected, StateLogonSent)
	return nil
}

// buildLogon writes tag 35=A plus EncryptMethod=0, HeartBtInt, and
// (when set) ResetSeqNumFlag=Y.
func buildLogon(b *fixcodec.OutgoingBuilder, heartBtInt time.Duration, resetSeqNum bool) error {
	if err := b.SetMsgType(MsgTypeLogon); err != nil {
		return err
	}
	if err := b.SetField(tagEncryptMethod, "0"); err != nil {
		return err
	}
	if err := b.SetInt(fixcodec.TagHeartBtInt, int64(heartBtInt/time.Second)); err != nil {
		return err
	}
	if resetSeqNum {
		if err := b.SetField(fixcodec.TagResetSeqNumFl, "Y"); err != nil {
			return err
		}
	}
	return nil
}

// handleLogon processes an inbound Logon, in either acceptor (Connected)
// or initiator (LogonSent, awaiting the peer's reply) roles.
func (s *Session) handleLogon(msg *fixcodec.Message) error {
	s.mu.Lock()

	if ok, reason := s.validateCompIDs(msg); !ok {
		s.mu.Unlock()
		s.Disconnect(reason)
		return fmt.Errorf("session: logon: %s", reason)
	}

	resetFlag, _ := msg.Bool(fixcodec.TagResetSeqNumFl)
	if resetFlag {
		s.outgoingSeq = 1
		s.expectedIn = msg.SeqNum() + 1
		s.inbound = make(map[int64]bufferedInbound)
	}

	switch s.state {
	case StateConnected:
		// Acceptor: the peer's proposed HeartBtInt, whatever its length,
		// replaces ours and is mirrored back in our Logon reply.
		if hb, err := msg.Int64(fixcodec.TagHeartBtInt); err == nil && hb > 0 {
			s.heartBtInt = time.Duration(hb) * time.Second
		}
		s.state = StateLogonReceived
		heartBtInt := s.heartBtInt
		if err := s.sendLocked(func(b *fixcodec.OutgoingBuilder) error {
			return buildLogon(b, heartBtInt, resetFlag)
		}); err != nil {
			s.mu.Unlock()
			return err
		}
		from := StateConnected
		s.state = StateLoggedOn
		s.logonDeadline = time.Time{}
		s.mu.Unlock()

		s.notifyStateChange(from, StateLogonReceived)
		s.notifyStateChange(StateLogonReceived, StateLoggedOn)
		telemetry.Info("session logged on (acceptor)", "session_id", s.cfg.SessionID)
		return nil

	case StateLogonSent:
		from := StateLogonSent
		s.state = StateLoggedOn
		s.logonDeadline = time.Time{}
		s.mu.Unlock()

		s.notifyStateChange(from, StateLoggedOn)
		telemetry.Info("session logged on (initiator)", "session_id", s.cfg.SessionID)
		return nil

	default:
		s.mu.Unlock()
		s.Disconnect("unexpected Logon in state " + s.state.String())
		return fmt.Errorf("session: logon: unexpected in state %s", s.state)
	}
}

// validateCompIDs confirms the inbound message's CompID pair is mirrored
// against this session's configuration. It reads only the session's fixed
// configuration, so it may be called with or without s.mu held.
func (s *Session) validateCompIDs(msg *fixcodec.Message) (bool, string) {
	if !msg.SenderCompID().EqualsString(s.cfg.TargetCompID) {
		return false, "unexpected SenderCompID"
	}
	if !msg.TargetCompID().EqualsString(s.cfg.SenderCompID) {
		return false, "unexpected TargetCompID"
	}
	return true, ""
}

// InitiateLogout sends a cooperative Logout and starts the peer-response
// grace period. Must be called while LoggedOn.
func (s *Session) InitiateLogout(reason string) error {
	s.mu.Lock()
	if s.state != StateLoggedOn {
		s.mu.Unlock()
		return fmt.Errorf("session: initiate logout: invalid transition from %s", s.state)
	}
	err := s.sendLocked(func(b *fixcodec.OutgoingBuilder) error {
		if err := b.SetMsgType(MsgTypeLogout); err != nil {
			return err
		}
		if reason != "" {
			return b.SetField(tagText, reason)
		}
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	from := StateLoggedOn
	s.state = StateLogoutSent
	if s.cfg.LogoutTimeout > 0 {
		s.logoutDeadline = time.Now().Add(s.cfg.LogoutTimeout)
	}
	s.mu.Unlock()

	s.notifyStateChange(from, StateLogoutSent)
	return nil
}

// handleLogout processes an inbound Logout: if we're LoggedOn, it's the
// peer initiating cooperative termination, so we echo a Logout and
// disconnect; if we're LogoutSent, it's the peer's response to our own
// Logout, so we disconnect directly.
func (s *Session) handleLogout(msg *fixcodec.Message) error {
	s.mu.Lock()
	switch s.state {
	case StateLoggedOn:
		_ = s.sendLocked(func(b *fixcodec.OutgoingBuilder) error {
			return b.SetMsgType(MsgTypeLogout)
		})
		s.mu.Unlock()
		s.Disconnect("peer logout")
		return nil

	case StateLogoutSent:
		s.mu.Unlock()
		s.Disconnect("logout complete")
		return nil

	default:
		s.mu.Unlock()
		s.Disconnect("unexpected Logout in state " + s.state.String())
		return nil
	}
}

// sendLogoutAndDisconnect sends a cooperative Logout carrying reason in
// tag 58 (Text) before tearing down the connection. Used for failures the
// peer should be told about before the socket closes, such as a MsgSeqNum
// that's too low to recover from via ResendRequest.
func (s *Session) sendLogoutAndDisconnect(reason string) {
	s.mu.Lock()
	_ = s.sendLocked(func(b *fixcodec.OutgoingBuilder) error {
		if err := b.SetMsgType(MsgTypeLogout); err != nil {
			return err
		}
		return b.SetField(tagText, reason)
	})
	s.mu.Unlock()
	s.Disconnect(reason)
}

// checkLogonTimeout disconnects a session that never completed its Logon
// handshake within cfg.LogonTimeout. Called from Tick.
func (s *Session) checkLogonTimeout(now time.Time) {
	s.mu.Lock()
	deadline := s.logonDeadline
	state := s.state
	s.mu.Unlock()

	if deadline.IsZero() || now.Before(deadline) {
		return
	}
	if state == StateConnected || state == StateLogonSent || state == StateLogonReceived {
		s.Disconnect("logon timeout")
	}
}

// checkLogoutTimeout disconnects a session whose peer never responded to a
// cooperative Logout within cfg.LogoutTimeout. Called from Tick.
func (s *Session) checkLogoutTimeout(now time.Time) {
	s.mu.Lock()
	deadline := s.logoutDeadline
	state := s.state
	s.mu.Unlock()

	if deadline.IsZero() || now.Before(deadline) || state != StateLogoutSent {
		return
	}
	s.Disconnect("logout response timeout")
}
