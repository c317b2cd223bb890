package scheduler

import (
	"fmt"
	"time"
)

// parseClockTime parses an "HH:MM:SS" local time-of-day into the duration
// since midnight it denotes.
func parseClockTime(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("scheduler: invalid time-of-day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("scheduler: time-of-day %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// daySet is the set of weekdays a window is permitted to start on. A nil or
// empty set allows every day.
type daySet uint8

var dayAbbrev = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday,
	"Wed": time.Wednesday, "Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
}

// newDaySet builds a daySet from config day abbreviations ("Sun".."Sat").
// Unrecognized entries are ignored; validation rejects them earlier.
func newDaySet(days []string) daySet {
	var s daySet
	for _, d := range days {
		if wd, ok := dayAbbrev[d]; ok {
			s |= 1 << uint(wd)
		}
	}
	return s
}

// allows reports whether wd is in the set, or the set is empty (every day
// allowed).
func (s daySet) allows(wd time.Weekday) bool {
	return s == 0 || s&(1<<uint(wd)) != 0
}

// weekdaysAllow reports whether t's calendar day is a permitted start day
// for the window, per days (empty/nil permits every day).
func weekdaysAllow(t time.Time, days daySet) bool {
	return days.allows(t.Weekday())
}

// midnight returns the start of t's calendar day in t's own location.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// instantAt returns the instant on t's calendar day (in t's location) that
// d (a duration since midnight) denotes.
func instantAt(t time.Time, d time.Duration) time.Time {
	return midnight(t).Add(d)
}

// windowActive implements spec.md's §4.9 shouldBeActive(now): a window with
// end <= start is overnight, spanning from start on a given day through end
// on the following day. now must already be in the window's configured
// timezone.
func windowActive(now time.Time, start, end time.Duration, days daySet) bool {
	elapsed := now.Sub(midnight(now))
	if end > start {
		return elapsed >= start && elapsed < end && weekdaysAllow(now, days)
	}
	// Overnight: today's leg (elapsed >= start, start day must pass the
	// filter) or yesterday's leg still running past midnight into today
	// (elapsed < end, yesterday — the leg's startDay — must pass the filter).
	if elapsed >= start {
		return weekdaysAllow(now, days)
	}
	if elapsed < end {
		return weekdaysAllow(now.AddDate(0, 0, -1), days)
	}
	return false
}

// currentEndInstant returns the end-of-window instant for whichever window
// span (today's or an overnight span begun yesterday) now currently falls
// within, used to compute end-of-window warnings. Only meaningful when
// windowActive(now, ...) is true.
func currentEndInstant(now time.Time, start, end time.Duration) time.Time {
	elapsed := now.Sub(midnight(now))
	if end > start {
		return instantAt(now, end)
	}
	if elapsed >= start {
		return instantAt(now.AddDate(0, 0, 1), end)
	}
	return instantAt(now, end)
}
