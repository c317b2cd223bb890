// Package session implements the per-connection FIX session state machine:
// logon/logout/disconnect transitions, sequence-number bookkeeping and gap
// recovery, heartbeat liveness, and end-of-day sequence reset. A Session
// owns its own mutable state (sequence counters, state enum, timers) and is
// driven by exactly one worker goroutine per the engine's concurrency
// model; external callers (admin resets, the engine's timer tasks) take
// the session's lock rather than mutating state directly.
package session

import (
	"fmt"
	"sync"
	"time"

	"fixengine/internal/dictionary"
	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
	"fixengine/internal/telemetry"
)

// State is one node of the session state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateLogonSent
	StateLogonReceived
	StateLoggedOn
	StateLogoutSent
	StateLogoutReceived
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateLogonSent:
		return "LOGON_SENT"
	case StateLogonReceived:
		return "LOGON_RECEIVED"
	case StateLoggedOn:
		return "LOGGED_ON"
	case StateLogoutSent:
		return "LOGOUT_SENT"
	case StateLogoutReceived:
		return "LOGOUT_RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// Channel is the wire transport a session sends built frames over. The
// engine binds the live network connection; tests supply an in-memory fake.
type Channel interface {
	Send(frame []byte) error
	Close() error
}

// Listener receives session lifecycle and application-message events. All
// callbacks are invoked outside the session's lock.
type Listener interface {
	OnStateChange(sessionID string, from, to State)
	OnApplicationMessage(sessionID string, msg *fixcodec.Message)
	OnDisconnect(sessionID string, reason string)
}

// Config is the fixed, per-session identity and protocol configuration. It
// does not change across reconnects (sequence counters and runtime state
// live on Session itself, not here).
type Config struct {
	SessionID    string
	BeginString  string
	SenderCompID string
	TargetCompID string

	// HeartBtInt is the proposed heartbeat interval. An acceptor session
	// adopts the initiator's proposed interval on Logon per spec.
	HeartBtInt time.Duration

	// MaxTag bounds the codec's duplicate-tag bitmap and field index.
	MaxTag int

	// LogonTimeout bounds how long a freshly connected session waits for
	// the Logon handshake to complete before disconnecting.
	LogonTimeout time.Duration

	// LogoutTimeout bounds how long a session that sent a cooperative
	// Logout waits for the peer's Logout response.
	LogoutTimeout time.Duration
}

// bufferedInbound is one out-of-sequence inbound frame held until the gap
// ahead of it is filled by a resend or a sequence reset.
type bufferedInbound struct {
	data []byte
}

// Session is one logical FIX conversation: one state machine, one pair of
// sequence counters, one log stream.
type Session struct {
	cfg  Config
	dict *dictionary.Dictionary

	mu sync.Mutex

	channel  Channel
	log      *logstore.Store
	builder  *fixcodec.OutgoingBuilder
	listener Listener

	state State

	outgoingSeq int64 // next sequence number to assign on send
	expectedIn  int64 // next sequence number expected on receive

	lastSend time.Time
	lastRecv time.Time

	pendingTestReqID  string
	pendingResendFrom int64 // >0 while waiting for a gap to fill; suppresses duplicate ResendRequests
	logonDeadline     time.Time
	logoutDeadline    time.Time

	inbound map[int64]bufferedInbound

	heartBtInt time.Duration // effective interval, possibly adopted from peer on acceptor Logon
}

// New constructs a Session in the Disconnected state with sequence counters
// at 1. dict is used to re-index resent messages; log is this session's
// append-only wire log; channel is nil until Connect binds one.
func New(cfg Config, dict *dictionary.Dictionary, log *logstore.Store, builder *fixcodec.OutgoingBuilder, listener Listener) *Session {
	return &Session{
		cfg:         cfg,
		dict:        dict,
		log:         log,
		builder:     builder,
		listener:    listener,
		state:       StateDisconnected,
		outgoingSeq: 1,
		expectedIn:  1,
		heartBtInt:  cfg.HeartBtInt,
		inbound:     make(map[int64]bufferedInbound),
	}
}

// State returns the current state under lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session has an active channel, in any of
// the post-accept states through logout.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return isConnectedState(s.state)
}

func isConnectedState(st State) bool {
	switch st {
	case StateConnected, StateLogonSent, StateLogonReceived, StateLoggedOn, StateLogoutSent, StateLogoutReceived:
		return true
	default:
		return false
	}
}

// IsLoggedOn reports whether the session has completed the Logon handshake.
func (s *Session) IsLoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoggedOn
}

// Connect binds channel and transitions Disconnected -> Connected. It does
// not reset sequence counters: those persist across reconnects until an
// explicit EOD reset or a ResetSeqNumFlag Logon.
func (s *Session) Connect(channel Channel) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("session: connect: invalid transition from %s", s.state)
	}
	s.channel = channel
	s.state = StateConnected
	if s.cfg.LogonTimeout > 0 {
		s.logonDeadline = time.Now().Add(s.cfg.LogonTimeout)
	}
	s.mu.Unlock()

	s.notifyStateChange(StateDisconnected, StateConnected)
	return nil
}

// Disconnect tears the session down to Disconnected from any state.
// Idempotent: calling it on an already-disconnected session is a no-op.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = StateDisconnected
	channel := s.channel
	s.channel = nil
	s.pendingTestReqID = ""
	s.pendingResendFrom = 0
	s.logonDeadline = time.Time{}
	s.logoutDeadline = time.Time{}
	s.inbound = make(map[int64]bufferedInbound)
	s.mu.Unlock()

	if channel != nil {
		_ = channel.Close()
	}
	s.notifyStateChange(from, StateDisconnected)
	if s.listener != nil {
		s.listener.OnDisconnect(s.cfg.SessionID, reason)
	}
	telemetry.Info("session disconnected", "session_id", s.cfg.SessionID, "from", from.String(), "reason", reason)
}

func (s *Session) notifyStateChange(from, to State) {
	if from == to {
		return
	}
	if s.listener != nil {
		s.listener.OnStateChange(s.cfg.SessionID, from, to)
	}
	telemetry.Debug("session state change", "session_id", s.cfg.SessionID, "from", from.String(), "to", to.String())
}

// ResetSequences implements the mechanical half of EOD reset: set both
// counters to 1 and append a log marker. The once-per-calendar-day guard
// lives in internal/scheduler, which decides *when* to call this.
func (s *Session) ResetSequences(now time.Time) (priorOut, priorIn int64) {
	s.mu.Lock()
	priorOut, priorIn = s.outgoingSeq, s.expectedIn
	s.outgoingSeq = 1
	s.expectedIn = 1
	s.inbound = make(map[int64]bufferedInbound)
	s.pendingResendFrom = 0
	s.mu.Unlock()

	if s.log != nil {
		meta := logstore.Metadata{
			MsgType: logstore.MsgTypeEOD,
			Extra:   logstore.EncodeEODExtra(priorOut, priorIn),
		}
		_ = s.log.Append(0, now, logstore.Outbound, meta, nil)
	}
	telemetry.Info("session EOD reset", "session_id", s.cfg.SessionID, "prior_out", priorOut, "prior_in", priorIn)
	return priorOut, priorIn
}

// SequenceSnapshot returns the next outgoing and expected incoming
// MsgSeqNum, for callers (the registry checkpoint writer) that need a
// consistent point-in-time read without racing the worker goroutine.
func (s *Session) SequenceSnapshot() (outgoing, expectedIncoming int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoingSeq, s.expectedIn
}

// SetOutgoingSeqNum is the admin-surface setOutgoingSeqNum(id, n): forces
// the next message this session sends to carry MsgSeqNum n. Takes effect
// immediately regardless of connection state.
func (s *Session) SetOutgoingSeqNum(n int64) error {
	if n < 1 {
		return fmt.Errorf("session: set outgoing seq num: %d must be >= 1", n)
	}
	s.mu.Lock()
	s.outgoingSeq = n
	s.mu.Unlock()
	telemetry.Info("session outgoing seq num set", "session_id", s.cfg.SessionID, "seq_num", n)
	return nil
}

// SetExpectedIncomingSeqNum is the admin-surface
// setExpectedIncomingSeqNum(id, n): forces the next inbound message this
// session will accept without triggering a gap/resend to carry MsgSeqNum
// n. Clears any buffered out-of-order frames and outstanding resend state,
// since they were indexed against the old expectation.
func (s *Session) SetExpectedIncomingSeqNum(n int64) error {
	if n < 1 {
		return fmt.Errorf("session: set expected incoming seq num: %d must be >= 1", n)
	}
	s.mu.Lock()
	s.expectedIn = n
	s.inbound = make(map[int64]bufferedInbound)
	s.pendingResendFrom = 0
	s.mu.Unlock()
	telemetry.Info("session expected incoming seq num set", "session_id", s.cfg.SessionID, "seq_num", n)
	return nil
}

// sendAdmin builds and sends a session-level (admin) message assigned the
// next outgoing sequence number, persisting it to the log before the wire
// write so a crash between log and send never loses the record of intent.
func (s *Session) sendAdmin(fill func(b *fixcodec.OutgoingBuilder) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(fill)
}

// sendLocked assumes s.mu is already held.
func (s *Session) sendLocked(fill func(b *fixcodec.OutgoingBuilder) error) error {
	if s.channel == nil {
		return fmt.Errorf("session: send: not connected")
	}
	s.builder.Reset()
	if err := fill(s.builder); err != nil {
		return err
	}
	seq := s.outgoingSeq
	if err := s.builder.PrepareForSend(seq, time.Now().UnixMilli()); err != nil {
		return err
	}
	frame := s.builder.Bytes()

	if s.log != nil {
		stored := make([]byte, len(frame))
		copy(stored, frame)
		_ = s.log.Append(seq, time.Now(), logstore.Outbound, logstore.Metadata{MsgType: s.builder.MsgType()}, stored)
	}
	if err := s.channel.Send(frame); err != nil {
		return err
	}
	s.outgoingSeq++
	s.lastSend = time.Now()
	return nil
}

// SendApplication builds and sends an application-level message the same
// way sendAdmin does, for use by the business layer above the session.
func (s *Session) SendApplication(msgType string, fill func(b *fixcodec.OutgoingBuilder) error) error {
	return s.sendAdmin(func(b *fixcodec.OutgoingBuilder) error {
		if err := b.SetMsgType(msgType); err != nil {
			return err
		}
		return fill(b)
	})
}
