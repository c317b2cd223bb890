package engine

import (
	"net"
	"sync"
)

// netChannel adapts a net.Conn to session.Channel. Writes are serialized
// since the admin surface (e.g. SendTestRequest) can call into a session
// from a different goroutine than its own dispatch loop.
type netChannel struct {
	conn net.Conn
	mu   sync.Mutex
}

func newNetChannel(conn net.Conn) *netChannel {
	return &netChannel{conn: conn}
}

func (c *netChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(frame)
	return err
}

func (c *netChannel) Close() error {
	return c.conn.Close()
}
