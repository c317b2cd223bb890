package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_TickSendsHeartbeatWhenSendIdle(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	now := time.Now()
	h.session.mu.Lock()
	h.session.lastSend = now.Add(-40 * time.Second) // > 30s HeartBtInt
	h.session.lastRecv = now
	h.session.mu.Unlock()

	before := h.channel.count()
	h.session.Tick(now)

	assert.Greater(t, h.channel.count(), before)
	last := h.parse(t, h.channel.last())
	assert.Equal(t, MsgTypeHeartbeat, last.MsgType().String())
}

func TestSession_TickSendsTestRequestAfterGracePeriod(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	now := time.Now()
	h.session.mu.Lock()
	h.session.lastSend = now
	h.session.lastRecv = now.Add(-36 * time.Second) // >= 1.2*30s
	h.session.mu.Unlock()

	h.session.Tick(now)

	last := h.parse(t, h.channel.last())
	assert.Equal(t, MsgTypeTestRequest, last.MsgType().String())

	h.session.mu.Lock()
	pending := h.session.pendingTestReqID
	h.session.mu.Unlock()
	assert.NotEmpty(t, pending)
}

func TestSession_TickDoesNotDuplicateTestRequestWhileOnePending(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	now := time.Now()
	h.session.mu.Lock()
	h.session.lastSend = now
	h.session.lastRecv = now.Add(-36 * time.Second)
	h.session.mu.Unlock()

	h.session.Tick(now)
	countAfterFirst := h.channel.count()
	h.session.Tick(now)
	assert.Equal(t, countAfterFirst, h.channel.count(), "a second TestRequest must not go out while one is outstanding")
}

func TestSession_TickDisconnectsAfterDoubleInterval(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	now := time.Now()
	h.session.mu.Lock()
	h.session.lastSend = now
	h.session.lastRecv = now.Add(-61 * time.Second) // > 2*30s
	h.session.mu.Unlock()

	h.session.Tick(now)

	assert.Equal(t, StateDisconnected, h.session.State())
	require.Len(t, h.listener.disconnects, 1)
	assert.Equal(t, "heartbeat timeout", h.listener.disconnects[0])
}

func TestSession_HandleTestRequestEchoesHeartbeatWithSameID(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	req := h.peerFrame(t, MsgTypeTestRequest, 2, map[int]string{112: "PROBE-1"})
	require.NoError(t, h.session.HandleInbound(req))

	reply := h.parse(t, h.channel.last())
	assert.Equal(t, MsgTypeHeartbeat, reply.MsgType().String())
	v, ok := reply.Raw(112)
	require.True(t, ok)
	assert.Equal(t, "PROBE-1", v.String())
}

func TestSession_HandleHeartbeatClearsMatchingPendingTestRequest(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	h.session.mu.Lock()
	h.session.pendingTestReqID = "PROBE-2"
	h.session.mu.Unlock()

	hb := h.peerFrame(t, MsgTypeHeartbeat, 2, map[int]string{112: "PROBE-2"})
	require.NoError(t, h.session.HandleInbound(hb))

	h.session.mu.Lock()
	pending := h.session.pendingTestReqID
	h.session.mu.Unlock()
	assert.Empty(t, pending)
}

func TestSession_HandleHeartbeatIgnoresMismatchedTestReqID(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)

	h.session.mu.Lock()
	h.session.pendingTestReqID = "PROBE-3"
	h.session.mu.Unlock()

	hb := h.peerFrame(t, MsgTypeHeartbeat, 2, map[int]string{112: "SOMETHING-ELSE"})
	require.NoError(t, h.session.HandleInbound(hb))

	h.session.mu.Lock()
	pending := h.session.pendingTestReqID
	h.session.mu.Unlock()
	assert.Equal(t, "PROBE-3", pending)
}

func TestSession_LogonTimeoutDisconnects(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)

	h.session.mu.Lock()
	h.session.logonDeadline = time.Now().Add(-time.Second)
	h.session.mu.Unlock()

	h.session.Tick(time.Now())

	assert.Equal(t, StateDisconnected, h.session.State())
	require.Len(t, h.listener.disconnects, 1)
	assert.Equal(t, "logon timeout", h.listener.disconnects[0])
}

func TestSession_LogoutTimeoutDisconnects(t *testing.T) {
	h := newTestHarness(t)
	loggedOn(t, h)
	require.NoError(t, h.session.InitiateLogout("eod"))
	require.Equal(t, StateLogoutSent, h.session.State())

	h.session.mu.Lock()
	h.session.logoutDeadline = time.Now().Add(-time.Second)
	h.session.mu.Unlock()

	h.session.Tick(time.Now())

	assert.Equal(t, StateDisconnected, h.session.State())
	last := h.listener.disconnects[len(h.listener.disconnects)-1]
	assert.Equal(t, "logout response timeout", last)
}
