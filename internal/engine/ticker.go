package engine

import (
	"time"

	"fixengine/internal/scheduler"
	"fixengine/internal/session"
	"fixengine/internal/telemetry"
)

// Per spec.md §4.8: a scheduled executor running three tasks at three
// different periods on the engine's single scheduled-timer thread.
const (
	heartbeatTickInterval = 1 * time.Second
	scheduleTickInterval  = 1 * time.Second
	eodTickInterval       = 60 * time.Second
)

// Start begins the engine's scheduled-timer thread (heartbeat, schedule,
// and EOD ticks). It does not itself connect any session: acceptors are
// armed by CreateSession, and initiators are dialed by Connect or by a
// SESSION_START schedule transition once Start is running — both may
// happen before or after Start, in either order.
func (e *Engine) Start() {
	e.wg.Add(3)
	go e.runTicker(heartbeatTickInterval, e.tickHeartbeats)
	go e.runTicker(scheduleTickInterval, e.tickSchedule)
	go e.runTicker(eodTickInterval, e.tickEod)
}

func (e *Engine) runTicker(interval time.Duration, fn func()) {
	defer e.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			fn()
		}
	}
}

func (e *Engine) tickHeartbeats() {
	now := time.Now()
	e.sessions.Range(func(_, v any) bool {
		v.(*sessionEntry).sess.Tick(now)
		return true
	})
}

func (e *Engine) tickSchedule() {
	for _, ev := range e.sched.Tick() {
		e.handleScheduleEvent(ev)
	}
}

func (e *Engine) tickEod() {
	for _, ev := range e.sched.CheckReset() {
		e.handleScheduleEvent(ev)
	}
}

// handleScheduleEvent reacts to one scheduler.Event: SESSION_START dials
// out an idle initiator, SESSION_END logs out a logged-on session of
// either role, RESET_DUE runs the EOD reset, and the two warning kinds are
// surfaced through telemetry only (there is no admin-surface listener
// type for them).
func (e *Engine) handleScheduleEvent(ev scheduler.Event) {
	entryVal, ok := e.sessions.Load(ev.SessionID)
	if !ok {
		return
	}
	entry := entryVal.(*sessionEntry)

	switch ev.Type {
	case scheduler.SessionStart:
		telemetry.Info("engine schedule: session start", "session_id", ev.SessionID)
		if entry.cfg.ConnectionType == "initiator" && entry.sess.State() == session.StateDisconnected {
			go func() {
				if err := e.Connect(ev.SessionID); err != nil {
					telemetry.Warn("engine: scheduled connect failed", "session_id", ev.SessionID, "error", err)
				}
			}()
		}

	case scheduler.SessionEnd:
		telemetry.Info("engine schedule: session end", "session_id", ev.SessionID)
		if entry.sess.IsLoggedOn() {
			_ = e.Logout(ev.SessionID, "schedule: session end")
		}

	case scheduler.ResetDue:
		telemetry.Info("engine schedule: EOD reset due", "session_id", ev.SessionID)
		if err := e.ResetSequenceNumbers(ev.SessionID); err != nil {
			telemetry.Warn("engine: scheduled EOD reset failed", "session_id", ev.SessionID, "error", err)
		}

	case scheduler.EndWarning, scheduler.ResetWarning:
		telemetry.Info("engine schedule: warning", "session_id", ev.SessionID, "type", ev.Type.String())
	}
}

// Stop is the engine-stop sequence from spec.md §5: graceful logout on
// every logged-on session with up to 500ms grace (or the configured
// ShutdownTimeout, whichever is smaller), then disconnect every channel,
// cancel the scheduled-timer thread, and close every session's log store.
func (e *Engine) Stop() {
	if !e.stopping.CompareAndSwap(false, true) {
		return
	}

	grace := 500 * time.Millisecond
	if e.cfg.ShutdownTimeout > 0 && e.cfg.ShutdownTimeout < grace {
		grace = e.cfg.ShutdownTimeout
	}

	var loggedOn []*sessionEntry
	e.sessions.Range(func(_, v any) bool {
		entry := v.(*sessionEntry)
		if entry.sess.IsLoggedOn() {
			loggedOn = append(loggedOn, entry)
		}
		return true
	})
	for _, entry := range loggedOn {
		entry.mu.Lock()
		entry.suppressReconnect = true
		entry.mu.Unlock()
		_ = entry.sess.InitiateLogout("engine shutdown")
	}
	if len(loggedOn) > 0 {
		time.Sleep(grace)
	}

	e.sessions.Range(func(_, v any) bool {
		entry := v.(*sessionEntry)
		entry.mu.Lock()
		entry.suppressReconnect = true
		entry.mu.Unlock()
		entry.sess.Disconnect("engine shutdown")
		return true
	})

	close(e.stopCh)

	e.acceptorsMu.Lock()
	for _, a := range e.acceptors {
		_ = a.ln.Close()
	}
	e.acceptorsMu.Unlock()

	e.wg.Wait()

	e.sessions.Range(func(_, v any) bool {
		entry := v.(*sessionEntry)
		_ = entry.log.Close()
		return true
	})

	if e.reg != nil {
		_ = e.reg.Close()
	}
}
