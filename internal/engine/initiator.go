package engine

import (
	"fmt"
	"net"
	"time"

	"fixengine/internal/fixcodec"
)

// dialInitiatorTimeout bounds the TCP connect attempt itself, separate
// from the Logon handshake's own LogonTimeout inside the session.
const dialInitiatorTimeout = 10 * time.Second

// dialInitiator is Connect(id)'s initiator-role path: dial out, bind the
// connection to the session, start its Logon, and hand off to the normal
// read/dispatch pipeline.
func (e *Engine) dialInitiator(entry *sessionEntry) error {
	addr := fmt.Sprintf("%s:%d", entry.cfg.TargetHost, entry.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, dialInitiatorTimeout)
	if err != nil {
		return fmt.Errorf("engine: dial %s for session %s: %w", addr, entry.id, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	if err := entry.sess.Connect(newNetChannel(conn)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("engine: bind dialed connection for session %s: %w", entry.id, err)
	}

	parser := fixcodec.NewParser()
	e.startPipeline(entry, conn, parser)

	if err := entry.sess.InitiateLogon(false); err != nil {
		entry.sess.Disconnect("initiate logon failed: " + err.Error())
		return fmt.Errorf("engine: initiate logon for session %s: %w", entry.id, err)
	}
	return nil
}
