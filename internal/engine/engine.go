// Package engine is the process-level owner of every FIX session: the
// session registry, the per-port acceptors, the per-session read/dispatch
// pipeline, and the scheduled-timer thread driving heartbeat/schedule/EOD
// ticks. It is the admin surface spec.md §6 describes — createSession,
// connect, disconnect, logout, the sequence-number setters, triggerEod,
// sendTestRequest, and listener registration — built the way
// cmd/dittofs/commands/start.go wires together its own listener bootstrap,
// runtime construction, and graceful-shutdown sequencing.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fixengine/internal/archiver"
	"fixengine/internal/config"
	"fixengine/internal/dictionary"
	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
	"fixengine/internal/msgpool"
	"fixengine/internal/registry"
	"fixengine/internal/scheduler"
	"fixengine/internal/session"
	"fixengine/internal/telemetry"
)

// SessionStateListener observes a session's state-machine transitions.
type SessionStateListener func(sessionID string, from, to session.State)

// MessageListener observes accepted inbound application messages.
type MessageListener func(sessionID string, msg *fixcodec.Message)

// EodListener observes end-of-day sequence resets, manual or scheduled.
type EodListener func(sessionID string, priorOut, priorIn int64, at time.Time)

// DisconnectListener observes session teardown, cooperative or not.
type DisconnectListener func(sessionID string, reason string)

// sessionEntry bundles a Session with the runtime plumbing the engine (not
// the session package) owns: its network role, pooled ring buffer, frame
// parser, and dispatch-goroutine lifecycle.
type sessionEntry struct {
	id   string
	cfg  config.SessionConfig
	sess *session.Session
	log  *logstore.Store

	mu                sync.Mutex
	ring              *msgpool.Ring[[]byte]
	bp                msgpool.Backpressure
	stopDispatch      chan struct{}
	dispatchDone      chan struct{}
	suppressReconnect bool
}

// Engine owns every session this process runs, the acceptors listening on
// their behalf, and the scheduled-timer thread driving heartbeat/schedule/
// EOD ticks across all of them.
type Engine struct {
	cfg  *config.EngineConfig
	dict *dictionary.Dictionary

	sessions sync.Map // string -> *sessionEntry

	acceptorsMu sync.Mutex
	acceptors   map[int]*acceptor

	sched *scheduler.Scheduler

	// reg is the durable session registry (spec §3 supplement): nil when
	// config.RegistryConfig wasn't set up or failed to open, in which case
	// CreateSession/admin-surface calls simply skip persistence — the
	// registry supplements startup discovery and crash recovery, it is
	// never required for the engine to run.
	reg registry.Store

	// archiver ships sealed log segments to S3 on EOD reset (spec §3
	// supplement: cold archive). Nil when ArchiverConfig.Enabled is false.
	archiver *archiver.Archiver

	stateListeners      atomic.Pointer[[]SessionStateListener]
	msgListeners        atomic.Pointer[[]MessageListener]
	eodListeners        atomic.Pointer[[]EodListener]
	disconnectListeners atomic.Pointer[[]DisconnectListener]
	listenerMu          sync.Mutex // serializes copy-on-write registration

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// New constructs an Engine from an already-loaded, already-validated
// config.EngineConfig and dictionary. It does not start accepting
// connections or running timers; call Start for that.
func New(cfg *config.EngineConfig, dict *dictionary.Dictionary) *Engine {
	e := &Engine{
		cfg:       cfg,
		dict:      dict,
		acceptors: make(map[int]*acceptor),
		sched:     scheduler.New(scheduler.SystemClock{}, 5*time.Minute, 60*time.Second),
		stopCh:    make(chan struct{}),
	}

	if cfg.Registry.Backend != "" {
		reg, err := registry.Open(cfg.Registry)
		if err != nil {
			telemetry.Warn("engine: session registry unavailable, continuing without persistence", "error", err)
		} else {
			e.reg = reg
		}
	}

	e.archiver = newArchiver(cfg.Archiver)

	return e
}

// LoadSessions recreates every session found in the durable registry,
// restoring each one's sequence-number checkpoint before it can send or
// receive a single frame. Returns the restored session ids. Safe to call
// once at startup, before CreateSession is used for anything else.
func (e *Engine) LoadSessions(ctx context.Context) ([]string, error) {
	if e.reg == nil {
		return nil, nil
	}
	recs, err := e.reg.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list registry sessions: %w", err)
	}

	var restored []string
	for _, rec := range recs {
		id, err := e.CreateSession(rec.Config)
		if err != nil {
			telemetry.Warn("engine: failed to recreate session from registry", "session_id", rec.SessionID, "error", err)
			continue
		}
		if rec.Checkpoint.OutgoingSeq > 0 {
			if err := e.SetOutgoingSeqNum(id, rec.Checkpoint.OutgoingSeq); err != nil {
				telemetry.Warn("engine: failed to restore outgoing seq num", "session_id", id, "error", err)
			}
		}
		if rec.Checkpoint.ExpectedIncomingSeq > 0 {
			if err := e.SetExpectedIncomingSeqNum(id, rec.Checkpoint.ExpectedIncomingSeq); err != nil {
				telemetry.Warn("engine: failed to restore expected incoming seq num", "session_id", id, "error", err)
			}
		}
		restored = append(restored, id)
	}
	return restored, nil
}

// persistCheckpoint is a best-effort write-through to the registry;
// failures are logged, never returned, since the registry only
// supplements the log store's authoritative record of what was sent and
// received.
func (e *Engine) persistCheckpoint(entry *sessionEntry) {
	if e.reg == nil {
		return
	}
	out, in := entry.sess.SequenceSnapshot()
	rec := registry.SessionRecord{
		SessionID: entry.id,
		Config:    entry.cfg,
		Checkpoint: registry.Checkpoint{
			OutgoingSeq:         out,
			ExpectedIncomingSeq: in,
		},
		UpdatedAt: time.Now(),
	}
	if err := e.reg.Put(context.Background(), rec); err != nil {
		telemetry.Warn("engine: failed to persist session checkpoint", "session_id", entry.id, "error", err)
	}
}

// RegisterSessionStateListener adds fn to the set invoked on every session
// state transition. Registration is copy-on-write so the dispatch path
// (every Session callback) never takes a lock to read the listener list.
func (e *Engine) RegisterSessionStateListener(fn SessionStateListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	cur := e.stateListeners.Load()
	next := appendListener(cur, fn)
	e.stateListeners.Store(&next)
}

// RegisterMessageListener adds fn to the set invoked for every accepted
// inbound application message.
func (e *Engine) RegisterMessageListener(fn MessageListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	cur := e.msgListeners.Load()
	next := appendListener(cur, fn)
	e.msgListeners.Store(&next)
}

// RegisterEodListener adds fn to the set invoked on every EOD reset,
// manual or scheduled.
func (e *Engine) RegisterEodListener(fn EodListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	cur := e.eodListeners.Load()
	next := appendListener(cur, fn)
	e.eodListeners.Store(&next)
}

// RegisterDisconnectListener adds fn to the set invoked on every session
// disconnect.
func (e *Engine) RegisterDisconnectListener(fn DisconnectListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	cur := e.disconnectListeners.Load()
	next := appendListener(cur, fn)
	e.disconnectListeners.Store(&next)
}

func appendListener[T any](cur *[]T, fn T) []T {
	var next []T
	if cur != nil {
		next = append(next, *cur...)
	}
	return append(next, fn)
}

// OnStateChange implements session.Listener, broadcasting to every
// registered SessionStateListener. Called on whichever goroutine drove the
// transition (the session's own worker goroutine, per spec §5).
func (e *Engine) OnStateChange(sessionID string, from, to session.State) {
	if ptr := e.stateListeners.Load(); ptr != nil {
		for _, fn := range *ptr {
			fn(sessionID, from, to)
		}
	}
}

// OnApplicationMessage implements session.Listener.
func (e *Engine) OnApplicationMessage(sessionID string, msg *fixcodec.Message) {
	if ptr := e.msgListeners.Load(); ptr != nil {
		for _, fn := range *ptr {
			fn(sessionID, msg)
		}
	}
}

// OnDisconnect implements session.Listener: broadcasts to registered
// listeners, then schedules a reconnect if this is an initiator session
// that didn't disconnect at the admin surface's own request (spec §4.10:
// "Channel I/O errors -> DISCONNECTED, scheduled reconnect if initiator").
func (e *Engine) OnDisconnect(sessionID, reason string) {
	if ptr := e.disconnectListeners.Load(); ptr != nil {
		for _, fn := range *ptr {
			fn(sessionID, reason)
		}
	}

	if e.stopping.Load() {
		return
	}
	v, ok := e.sessions.Load(sessionID)
	if !ok {
		return
	}
	entry := v.(*sessionEntry)
	entry.mu.Lock()
	suppress := entry.suppressReconnect
	entry.suppressReconnect = false
	entry.mu.Unlock()
	if suppress || entry.cfg.ConnectionType != "initiator" {
		return
	}

	telemetry.Info("engine scheduling initiator reconnect", "session_id", sessionID, "reason", reason)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-time.After(5 * time.Second):
		case <-e.stopCh:
			return
		}
		if err := e.Connect(sessionID); err != nil {
			telemetry.Warn("engine initiator reconnect failed", "session_id", sessionID, "error", err)
		}
	}()
}

// lookup returns the sessionEntry for id, or an error if unknown.
func (e *Engine) lookup(id string) (*sessionEntry, error) {
	v, ok := e.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("engine: unknown session %q", id)
	}
	return v.(*sessionEntry), nil
}
