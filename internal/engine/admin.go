package engine

import (
	"fmt"
	"time"

	"fixengine/internal/config"
	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
	"fixengine/internal/session"
	"fixengine/internal/telemetry"
)

// defaultMaxTag bounds fixcodec's duplicate-tag bitmap and field index. No
// SessionConfig field names this (the teacher's config surface doesn't
// either, for its own NFS/SMB procedure tables), so every session created
// through this engine shares one generous ceiling comfortably above any
// FIX 4.x or FIXT 1.1 custom-tag range in practice.
const defaultMaxTag = 5000

// CreateSession is the admin surface's createSession(config): it opens (or
// resumes) the session's log stream, registers its schedule with the
// scheduler, and adds it to the registry in the Disconnected state. For an
// acceptor session this also arms the port's listener to recognize its
// CompID pair; for an initiator session, Connect must be called explicitly
// to dial out.
func (e *Engine) CreateSession(cfg config.SessionConfig) (string, error) {
	id := cfg.SessionID()
	if _, exists := e.sessions.Load(id); exists {
		return "", fmt.Errorf("engine: session %q already exists", id)
	}

	log, err := logstore.Open(e.cfg.LogStore.Path, id)
	if err != nil {
		return "", fmt.Errorf("engine: open log store for %s: %w", id, err)
	}

	sessCfg := session.Config{
		SessionID:     id,
		BeginString:   "FIX.4.4",
		SenderCompID:  cfg.SenderCompID,
		TargetCompID:  cfg.TargetCompID,
		HeartBtInt:    cfg.HeartbeatInterval,
		MaxTag:        defaultMaxTag,
		LogonTimeout:  30 * time.Second,
		LogoutTimeout: 5 * time.Second,
	}
	builder := fixcodec.NewBuilder(sessCfg.BeginString, sessCfg.SenderCompID, sessCfg.TargetCompID, sessCfg.MaxTag)
	sess := session.New(sessCfg, e.dict, log, builder, e)

	entry := &sessionEntry{id: id, cfg: cfg, sess: sess, log: log}
	e.sessions.Store(id, entry)

	if cfg.Schedule.StartTime != "" {
		if err := e.sched.Register(id, cfg.Schedule); err != nil {
			telemetry.Warn("engine: schedule registration failed", "session_id", id, "error", err)
		}
	}

	if cfg.ConnectionType == "acceptor" {
		if err := e.armAcceptor(entry); err != nil {
			e.sessions.Delete(id)
			_ = log.Close()
			return "", err
		}
	}

	telemetry.Info("engine session created", "session_id", id, "role", cfg.ConnectionType, "port", cfg.Port)
	e.persistCheckpoint(entry)
	return id, nil
}

// Connect is the admin surface's connect(id). For an initiator session it
// dials TargetHost:Port and starts the Logon handshake; for an acceptor
// session, the port listener already arms connection routing at
// CreateSession time, so Connect is a no-op that just confirms the session
// exists.
func (e *Engine) Connect(id string) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	if entry.cfg.ConnectionType != "initiator" {
		return nil
	}
	return e.dialInitiator(entry)
}

// Disconnect is the admin surface's disconnect(id): an intentional
// teardown that suppresses the automatic initiator-reconnect OnDisconnect
// would otherwise schedule.
func (e *Engine) Disconnect(id, reason string) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	entry.suppressReconnect = true
	entry.mu.Unlock()
	entry.sess.Disconnect(reason)
	return nil
}

// Logout is the admin surface's logout(id, reason): a cooperative Logout,
// only valid while LoggedOn.
func (e *Engine) Logout(id, reason string) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	return entry.sess.InitiateLogout(reason)
}

// SetOutgoingSeqNum is the admin surface's setOutgoingSeqNum(id, n).
func (e *Engine) SetOutgoingSeqNum(id string, n int64) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := entry.sess.SetOutgoingSeqNum(n); err != nil {
		return err
	}
	e.persistCheckpoint(entry)
	return nil
}

// SetExpectedIncomingSeqNum is the admin surface's
// setExpectedIncomingSeqNum(id, n).
func (e *Engine) SetExpectedIncomingSeqNum(id string, n int64) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := entry.sess.SetExpectedIncomingSeqNum(n); err != nil {
		return err
	}
	e.persistCheckpoint(entry)
	return nil
}

// ResetSequenceNumbers is the admin surface's resetSequenceNumbers(id): a
// manual EOD reset, allowed at any time per spec.md's EOD section.
func (e *Engine) ResetSequenceNumbers(id string) error {
	entry, err := e.lookup(id)
	if err != nil {
		return err
	}
	priorOut, priorIn := entry.sess.ResetSequences(time.Now())
	e.persistCheckpoint(entry)
	e.archiveOnReset(entry, priorOut)
	e.broadcastEod(id, priorOut, priorIn, time.Now())
	return nil
}

// TriggerEod is the admin surface's triggerEod(id); identical to
// ResetSequenceNumbers, named to match spec.md's external-interface list.
func (e *Engine) TriggerEod(id string) error {
	return e.ResetSequenceNumbers(id)
}

// SendTestRequest is the admin surface's sendTestRequest(id) -> TestReqId.
func (e *Engine) SendTestRequest(id string) (string, error) {
	entry, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	return entry.sess.TriggerTestRequest()
}

func (e *Engine) broadcastEod(sessionID string, priorOut, priorIn int64, at time.Time) {
	if ptr := e.eodListeners.Load(); ptr != nil {
		for _, fn := range *ptr {
			fn(sessionID, priorOut, priorIn, at)
		}
	}
}
