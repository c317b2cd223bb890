package engine

import (
	"context"
	"net"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/msgpool"
	"fixengine/internal/telemetry"
	"fixengine/pkg/bufpool"
)

// idleParkInterval is how long the dispatch goroutine parks when its ring
// is empty — the "park with nanosleep" idle strategy spec.md §5 offers as
// an alternative to busy-spin/yield for the worker thread.
const idleParkInterval = 200 * time.Microsecond

// readBufSize is the chunk size each conn.Read call requests; the frame
// parser's own accumulation buffer handles messages spanning many reads.
const readBufSize = 4096

func backpressureFromConfig(s string) msgpool.Backpressure {
	switch s {
	case "BLOCK":
		return msgpool.Block
	case "DROP_AND_RESEND":
		return msgpool.DropAndResend
	default:
		return msgpool.SyncFallback
	}
}

// startPipeline wires a freshly connected session's channel into the
// engine's concurrency model: one reader goroutine driving the codec and
// producing into a per-session SPSC ring, and one worker goroutine
// consuming that ring and calling Session.HandleInbound, per spec.md §5.
func (e *Engine) startPipeline(entry *sessionEntry, conn net.Conn, parser *fixcodec.Parser) {
	capacity := e.cfg.Pool.RingCapacity
	if capacity <= 0 {
		capacity = 1024
	}
	bp := backpressureFromConfig(e.cfg.Pool.Backpressure)
	ring, err := msgpool.NewRing[[]byte](capacity, bp)
	if err != nil {
		telemetry.Warn("engine: configured ring capacity invalid, falling back to 1024", "session_id", entry.id, "error", err)
		ring, _ = msgpool.NewRing[[]byte](1024, bp)
	}

	entry.mu.Lock()
	entry.ring = ring
	entry.bp = bp
	entry.stopDispatch = make(chan struct{})
	entry.dispatchDone = make(chan struct{})
	entry.mu.Unlock()

	e.wg.Add(2)
	go e.dispatchLoop(entry)
	go e.readLoop(entry, conn, parser)
}

// dispatchLoop is the session's single worker goroutine (the SPSC
// invariant's consumer side): it drains committed ring slots in order and
// feeds each to HandleInbound, parking when the ring runs dry.
func (e *Engine) dispatchLoop(entry *sessionEntry) {
	defer e.wg.Done()
	defer close(entry.dispatchDone)

	handle := func(frame *[]byte) {
		if err := entry.sess.HandleInbound(*frame); err != nil {
			telemetry.Debug("engine: inbound frame rejected", "session_id", entry.id, "error", err)
		}
	}

	for {
		select {
		case <-entry.stopDispatch:
			entry.ring.Read(handle, 0) // drain whatever already committed
			return
		default:
		}
		if n := entry.ring.Read(handle, 0); n == 0 {
			time.Sleep(idleParkInterval)
		}
	}
}

// readLoop is the session's I/O goroutine: reads off the socket, drives
// the frame parser, and produces each complete frame into the ring (or
// handles it per the configured backpressure policy when the ring is
// full). A checksum/frame error closes the connection, not the session,
// per spec.md §4.10; a socket error disconnects the session itself so an
// initiator reconnect can be scheduled.
func (e *Engine) readLoop(entry *sessionEntry, conn net.Conn, parser *fixcodec.Parser) {
	defer e.wg.Done()

	buf := bufpool.Get(readBufSize)
	defer bufpool.Put(buf)
	readTimeout := e.cfg.Network.ReadTimeout

	for {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		n, err := conn.Read(buf)
		if n > 0 {
			parser.AddData(buf[:n])
			for {
				frame, status := parser.TryReadFrame()
				if status == fixcodec.FrameNeedMoreData {
					break
				}
				if status < 0 {
					telemetry.Warn("engine: malformed frame, closing connection", "session_id", entry.id, "status", int(status))
					_ = conn.Close()
					e.stopPipeline(entry)
					return
				}
				e.offerFrame(entry, frame)
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			telemetry.Info("engine: connection closed", "session_id", entry.id, "error", err)
			entry.sess.Disconnect("channel I/O error: " + err.Error())
			e.stopPipeline(entry)
			return
		}
	}
}

// offerFrame places a parsed frame on the session's ring, applying the
// configured Backpressure policy when full: SyncFallback and
// DropAndResend both fall back to either handling the frame synchronously
// on this (the I/O) goroutine, or dropping it and relying on the
// counterparty's ResendRequest to redeliver it later.
func (e *Engine) offerFrame(entry *sessionEntry, frame []byte) {
	placed, err := entry.ring.Offer(context.Background(), func(slot *[]byte) {
		*slot = append((*slot)[:0], frame...)
	})
	if err != nil || placed {
		return
	}
	switch entry.bp {
	case msgpool.DropAndResend:
		telemetry.Warn("engine: ring full, dropping inbound frame", "session_id", entry.id)
	default: // SyncFallback
		stored := make([]byte, len(frame))
		copy(stored, frame)
		if err := entry.sess.HandleInbound(stored); err != nil {
			telemetry.Debug("engine: synchronous fallback dispatch error", "session_id", entry.id, "error", err)
		}
	}
}

// stopPipeline idempotently signals the dispatch goroutine to drain and
// exit once its reader goroutine has stopped producing.
func (e *Engine) stopPipeline(entry *sessionEntry) {
	entry.mu.Lock()
	ch := entry.stopDispatch
	entry.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}
