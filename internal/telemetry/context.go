package telemetry

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a FIX session.
type LogContext struct {
	TraceID      string // correlation id for a single inbound/outbound message
	SpanID       string
	SessionID    string // SenderCompID:TargetCompID[:Qualifier]
	SenderCompID string
	TargetCompID string
	MsgType      string // FIX tag 35 value
	SeqNum       int64  // MsgSeqNum, tag 34
	ClientIP     string
	StartTime    time.Time
}

// WithContext returns a new context with the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a session.
func NewLogContext(sessionID string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithCompIDs returns a copy with the sender/target comp ids set.
func (lc *LogContext) WithCompIDs(sender, target string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SenderCompID = sender
		clone.TargetCompID = target
	}
	return clone
}

// WithMessage returns a copy with the msg type and seq num set.
func (lc *LogContext) WithMessage(msgType string, seqNum int64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MsgType = msgType
		clone.SeqNum = seqNum
	}
	return clone
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
