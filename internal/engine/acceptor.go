package engine

import (
	"fmt"
	"net"
	"sync"
	"time"

	"fixengine/internal/fixcodec"
	"fixengine/internal/session"
	"fixengine/internal/telemetry"
)

// acceptor serves every acceptor-role session bound to one TCP port. A
// single port can be shared by several sessions (spec.md §4.8): which one
// a freshly accepted connection belongs to is only known once its first
// frame — the Logon — reveals its CompID pair.
type acceptor struct {
	port int
	ln   net.Listener

	mu       sync.Mutex
	sessions map[string]*sessionEntry // keyed by compIDKey(peer's own Sender, Target)
}

// compIDKey identifies a session by the CompID pair as it appears in *that
// side's own* outbound Logon: senderCompID is the speaker's identity,
// targetCompID the counterparty's.
func compIDKey(senderCompID, targetCompID string) string {
	return senderCompID + "|" + targetCompID
}

// armAcceptor ensures a listener is running on entry's configured port and
// registers entry to be matched against that port's inbound Logons.
func (e *Engine) armAcceptor(entry *sessionEntry) error {
	port := entry.cfg.Port

	e.acceptorsMu.Lock()
	a, ok := e.acceptors[port]
	if !ok {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			e.acceptorsMu.Unlock()
			return fmt.Errorf("engine: listen on port %d: %w", port, err)
		}
		a = &acceptor{port: port, ln: ln, sessions: make(map[string]*sessionEntry)}
		e.acceptors[port] = a
		e.wg.Add(1)
		go e.acceptLoop(a)
	}
	e.acceptorsMu.Unlock()

	key := compIDKey(entry.cfg.TargetCompID, entry.cfg.SenderCompID)
	a.mu.Lock()
	a.sessions[key] = entry
	a.mu.Unlock()
	return nil
}

// acceptLoop accepts connections on one port and hands each to
// routeAccepted to be matched against a registered session.
func (e *Engine) acceptLoop(a *acceptor) {
	defer e.wg.Done()
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-e.stopCh:
				return
			default:
			}
			telemetry.Warn("engine: accept error", "port", a.port, "error", err)
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		e.wg.Add(1)
		go e.routeAccepted(a, conn)
	}
}

// routeAccepted reads frames off a freshly accepted connection until the
// first complete one arrives, requires it to be a Logon, matches its
// CompID pair against a.sessions, attaches the connection to that
// session, feeds it the Logon, and hands the connection off to the
// session's normal read/dispatch pipeline.
func (e *Engine) routeAccepted(a *acceptor, conn net.Conn) {
	defer e.wg.Done()

	parser := fixcodec.NewParser()
	buf := make([]byte, readBufSize)
	readTimeout := e.cfg.Network.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			parser.AddData(buf[:n])
			frame, status := parser.TryReadFrame()
			switch {
			case status == fixcodec.FrameNeedMoreData:
				// keep reading
			case status < 0:
				telemetry.Warn("engine: malformed first frame on accept, closing", "port", a.port, "status", int(status))
				_ = conn.Close()
				return
			default:
				e.bindAcceptedConn(a, conn, parser, frame)
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			_ = conn.Close()
			return
		}
	}
}

func (e *Engine) bindAcceptedConn(a *acceptor, conn net.Conn, parser *fixcodec.Parser, frame []byte) {
	msg, err := fixcodec.Wrap(e.dict, frame, defaultMaxTag)
	if err != nil {
		telemetry.Warn("engine: unparsable first frame on accept, closing", "port", a.port, "error", err)
		_ = conn.Close()
		return
	}
	if !msg.MsgType().EqualsString(session.MsgTypeLogon) {
		telemetry.Warn("engine: first frame on accept was not Logon, closing", "port", a.port, "msg_type", msg.MsgType().String())
		_ = conn.Close()
		return
	}

	key := compIDKey(msg.SenderCompID().String(), msg.TargetCompID().String())
	a.mu.Lock()
	entry, ok := a.sessions[key]
	a.mu.Unlock()
	if !ok {
		telemetry.Warn("engine: no session matches CompID pair, closing", "port", a.port, "key", key)
		_ = conn.Close()
		return
	}

	if err := entry.sess.Connect(newNetChannel(conn)); err != nil {
		telemetry.Warn("engine: session connect rejected (already connected?), closing", "session_id", entry.id, "error", err)
		_ = conn.Close()
		return
	}

	stored := make([]byte, len(frame))
	copy(stored, frame)
	if err := entry.sess.HandleInbound(stored); err != nil {
		telemetry.Warn("engine: initial Logon rejected", "session_id", entry.id, "error", err)
	}

	e.startPipeline(entry, conn, parser)
}
