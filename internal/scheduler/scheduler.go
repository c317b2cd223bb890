// Package scheduler evaluates each registered session's trading-window and
// end-of-day reset schedule against a clock, in the timezone the session's
// configuration names. It owns no network or session state itself: the
// engine calls Tick/CheckReset on its own 1s/60s timers and dispatches the
// returned events to the matching Session (SESSION_START/SESSION_END
// toggling connect/disconnect, ResetDue calling Session.ResetSequences).
//
// Grounded on the tick-driven, callback-on-transition shape of
// internal/protocol/nfs/v4/state/grace.go's GracePeriodState, generalized
// from one boolean window (grace/not-grace) to one window per session plus
// an independent once-per-day reset check.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"fixengine/internal/config"
)

// EventType identifies what a scheduler Event reports.
type EventType int

const (
	SessionStart EventType = iota
	SessionEnd
	ResetDue
	EndWarning
	ResetWarning
)

func (e EventType) String() string {
	switch e {
	case SessionStart:
		return "SESSION_START"
	case SessionEnd:
		return "SESSION_END"
	case ResetDue:
		return "RESET_DUE"
	case EndWarning:
		return "END_WARNING"
	case ResetWarning:
		return "RESET_WARNING"
	default:
		return "UNKNOWN"
	}
}

// Event reports a single schedule transition for one session.
type Event struct {
	SessionID string
	Type      EventType
	At        time.Time
}

// window is one session's resolved schedule, parsed once at Register time.
type window struct {
	loc        *time.Location
	start, end time.Duration
	hasReset   bool
	reset      time.Duration
	days       daySet

	active          bool
	endWarnedSpan   time.Time // currentEndInstant() already warned for
	lastResetDay    string    // "2006-01-02" key of the last day ResetDue fired
	resetWarnedDay  string    // "2006-01-02" key of the last day ResetWarning fired
}

// Scheduler holds one window per registered session. Safe for concurrent
// use; the engine's schedule-check and EOD-check timers may call Tick and
// CheckReset from the same goroutine (they run on the engine's single
// scheduled-timer thread per spec §5) but Register/Unregister may race
// against admin-surface session creation from another goroutine.
type Scheduler struct {
	mu            sync.Mutex
	clock         Clock
	warningWindow time.Duration
	resetTolerance time.Duration
	windows       map[string]*window
}

// New constructs a Scheduler. warningWindow is how far ahead of endTime/
// resetTime a warning event fires; resetTolerance is the width of the
// "now ∈ [resetTime, resetTime+tolerance)" acceptance band, sized to the
// engine's EOD-check tick period so a reset is never missed between checks.
func New(clock Clock, warningWindow, resetTolerance time.Duration) *Scheduler {
	if resetTolerance <= 0 {
		resetTolerance = 60 * time.Second
	}
	return &Scheduler{
		clock:          clock,
		warningWindow:  warningWindow,
		resetTolerance: resetTolerance,
		windows:        make(map[string]*window),
	}
}

// Register parses sessionID's schedule configuration and begins tracking
// it. Re-registering an existing session id replaces its window and resets
// its active/warned/last-reset bookkeeping.
func (s *Scheduler) Register(sessionID string, cfg config.ScheduleConfig) error {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", sessionID, err)
	}
	start, err := parseClockTime(cfg.StartTime)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", sessionID, err)
	}
	end, err := parseClockTime(cfg.EndTime)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", sessionID, err)
	}
	w := &window{
		loc:   loc,
		start: start,
		end:   end,
		days:  newDaySet(cfg.Days),
	}
	if cfg.ResetTime != "" {
		reset, err := parseClockTime(cfg.ResetTime)
		if err != nil {
			return fmt.Errorf("scheduler: register %s: %w", sessionID, err)
		}
		w.hasReset = true
		w.reset = reset
	}

	s.mu.Lock()
	s.windows[sessionID] = w
	s.mu.Unlock()
	return nil
}

// Unregister stops tracking a session, e.g. once it's torn down.
func (s *Scheduler) Unregister(sessionID string) {
	s.mu.Lock()
	delete(s.windows, sessionID)
	s.mu.Unlock()
}

// Tick is the 1s schedule-check task: for every registered session it
// recomputes shouldBeActive and emits SESSION_START/SESSION_END on
// transition, plus an EndWarning once per window span when within
// warningWindow of the configured end time.
func (s *Scheduler) Tick() []Event {
	now := s.clock.Now()
	var events []Event

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.windows {
		local := now.In(w.loc)
		active := windowActive(local, w.start, w.end, w.days)

		if active != w.active {
			typ := SessionEnd
			if active {
				typ = SessionStart
			}
			events = append(events, Event{SessionID: id, Type: typ, At: now})
			w.active = active
		}

		if active && s.warningWindow > 0 {
			endAt := currentEndInstant(local, w.start, w.end)
			if !endAt.Equal(w.endWarnedSpan) && !local.Before(endAt.Add(-s.warningWindow)) && local.Before(endAt) {
				events = append(events, Event{SessionID: id, Type: EndWarning, At: now})
				w.endWarnedSpan = endAt
			}
		}
	}
	return events
}

// CheckReset is the 60s EOD-check task: for every registered session with a
// ResetTime configured, it fires ResetDue once per calendar day when now
// falls in [resetTime, resetTime+resetTolerance), plus a ResetWarning once
// per day when within warningWindow beforehand.
func (s *Scheduler) CheckReset() []Event {
	now := s.clock.Now()
	var events []Event

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.windows {
		if !w.hasReset {
			continue
		}
		local := now.In(w.loc)
		resetAt := instantAt(local, w.reset)
		dayKey := resetAt.Format("2006-01-02")

		if s.warningWindow > 0 && w.resetWarnedDay != dayKey &&
			!local.Before(resetAt.Add(-s.warningWindow)) && local.Before(resetAt) {
			events = append(events, Event{SessionID: id, Type: ResetWarning, At: now})
			w.resetWarnedDay = dayKey
		}

		if w.lastResetDay == dayKey {
			continue
		}
		if !local.Before(resetAt) && local.Before(resetAt.Add(s.resetTolerance)) {
			events = append(events, Event{SessionID: id, Type: ResetDue, At: now})
			w.lastResetDay = dayKey
		}
	}
	return events
}
