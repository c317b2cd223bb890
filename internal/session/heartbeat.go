package session

import (
	"fmt"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/telemetry"
)

// testRequestGraceFactor and disconnectFactor express the liveness
// tolerances from spec as multiples of HeartBtInt: a TestRequest goes out
// at 1.2x since the last receipt, and a timeout disconnect fires at 2x.
const (
	testRequestGraceFactor = 1.2
	disconnectFactor       = 2.0
)

// Tick runs the engine's once-per-second heartbeat/timer check against
// this session: it sends a Heartbeat if we've been quiet too long, sends a
// TestRequest (and eventually disconnects) if the peer has, and enforces
// the Logon/Logout handshake timeouts.
func (s *Session) Tick(now time.Time) {
	s.checkLogonTimeout(now)
	s.checkLogoutTimeout(now)
	s.checkHeartbeat(now)
}

func (s *Session) checkHeartbeat(now time.Time) {
	s.mu.Lock()
	if s.state != StateLoggedOn {
		s.mu.Unlock()
		return
	}
	heartBtInt := s.heartBtInt
	lastSend := s.lastSend
	lastRecv := s.lastRecv
	testReqPending := s.pendingTestReqID != ""
	s.mu.Unlock()

	if heartBtInt <= 0 {
		return
	}

	if now.Sub(lastSend) >= heartBtInt {
		_ = s.sendAdmin(func(b *fixcodec.OutgoingBuilder) error {
			return b.SetMsgType(MsgTypeHeartbeat)
		})
	}

	testRequestThreshold := time.Duration(float64(heartBtInt) * testRequestGraceFactor)
	disconnectThreshold := time.Duration(float64(heartBtInt) * disconnectFactor)

	silence := now.Sub(lastRecv)
	if silence >= disconnectThreshold {
		s.Disconnect("heartbeat timeout")
		return
	}
	if silence >= testRequestThreshold && !testReqPending {
		s.sendTestRequest()
	}
}

func (s *Session) sendTestRequest() {
	if _, err := s.doSendTestRequest(); err != nil {
		telemetry.Warn("session: failed to send TestRequest", "session_id", s.cfg.SessionID, "error", err)
	}
}

// TriggerTestRequest is the admin-surface entry point for forcing a liveness
// probe on demand (spec §6's sendTestRequest(id) -> TestReqId); it returns
// the generated TestReqID so the caller can correlate the eventual echo.
func (s *Session) TriggerTestRequest() (string, error) {
	s.mu.Lock()
	if s.state != StateLoggedOn {
		s.mu.Unlock()
		return "", fmt.Errorf("session: trigger test request: not logged on (state %s)", s.state)
	}
	s.mu.Unlock()
	return s.doSendTestRequest()
}

func (s *Session) doSendTestRequest() (string, error) {
	reqID := newTestReqID()
	err := s.sendAdmin(func(b *fixcodec.OutgoingBuilder) error {
		if err := b.SetMsgType(MsgTypeTestRequest); err != nil {
			return err
		}
		return b.SetField(fixcodec.TagTestReqID, reqID)
	})
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.pendingTestReqID = reqID
	s.mu.Unlock()
	return reqID, nil
}

// handleTestRequest replies to an inbound TestRequest with a Heartbeat
// echoing the TestReqID.
func (s *Session) handleTestRequest(msg *fixcodec.Message) error {
	reqID, _ := msg.Raw(fixcodec.TagTestReqID)
	return s.sendAdmin(func(b *fixcodec.OutgoingBuilder) error {
		if err := b.SetMsgType(MsgTypeHeartbeat); err != nil {
			return err
		}
		if reqID.Len() > 0 {
			return b.SetField(fixcodec.TagTestReqID, reqID.String())
		}
		return nil
	})
}

// handleHeartbeat clears a pending TestRequest once its echo arrives.
func (s *Session) handleHeartbeat(msg *fixcodec.Message) error {
	reqID, ok := msg.Raw(fixcodec.TagTestReqID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	if s.pendingTestReqID != "" && reqID.EqualsString(s.pendingTestReqID) {
		s.pendingTestReqID = ""
	}
	s.mu.Unlock()
	return nil
}
