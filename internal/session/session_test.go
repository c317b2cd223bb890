package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ConnectTransitionsToConnected(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	assert.Equal(t, StateConnected, h.session.State())
	assert.True(t, h.session.IsConnected())
	assert.False(t, h.session.IsLoggedOn())
}

func TestSession_ConnectTwiceFails(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	err := h.session.Connect(&fakeChannel{})
	assert.Error(t, err)
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ch := h.connect(t)
	h.session.Disconnect("test")
	h.session.Disconnect("test again")

	assert.Equal(t, StateDisconnected, h.session.State())
	assert.True(t, ch.closed)
	assert.Len(t, h.listener.disconnects, 1)
}

func TestSession_InitiateLogonSendsLogonAndTransitions(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)

	require.NoError(t, h.session.InitiateLogon(false))
	assert.Equal(t, StateLogonSent, h.session.State())

	frame := h.channel.last()
	msg := h.parse(t, frame)
	assert.Equal(t, MsgTypeLogon, msg.MsgType().String())
	assert.Equal(t, int64(1), msg.SeqNum())

	hb, err := msg.Int64(108)
	require.NoError(t, err)
	assert.Equal(t, int64(30), hb)
}

func TestSession_InitiatorCompletesLogonOnPeerReply(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	require.NoError(t, h.session.InitiateLogon(false))

	reply := h.peerFrame(t, MsgTypeLogon, 1, map[int]string{108: "30", 98: "0"})
	require.NoError(t, h.session.HandleInbound(reply))

	assert.Equal(t, StateLoggedOn, h.session.State())
	assert.True(t, h.session.IsLoggedOn())
}

func TestSession_AcceptorRepliesToLogonAndLogsOn(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)

	logon := h.peerFrame(t, MsgTypeLogon, 1, map[int]string{108: "30", 98: "0"})
	require.NoError(t, h.session.HandleInbound(logon))

	assert.Equal(t, StateLoggedOn, h.session.State())
	reply := h.parse(t, h.channel.last())
	assert.Equal(t, MsgTypeLogon, reply.MsgType().String())
}

func TestSession_LogonRejectsMismatchedCompIDs(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)

	mismatched := h.peerFrameWithSender(t, "WRONG", MsgTypeLogon, 1, map[int]string{108: "30"})
	err := h.session.HandleInbound(mismatched)
	assert.Error(t, err)
	assert.Equal(t, StateDisconnected, h.session.State())
}

func TestSession_CooperativeLogout(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	logon := h.peerFrame(t, MsgTypeLogon, 1, map[int]string{108: "30", 98: "0"})
	require.NoError(t, h.session.HandleInbound(logon))
	require.Equal(t, StateLoggedOn, h.session.State())

	require.NoError(t, h.session.InitiateLogout("done for the day"))
	assert.Equal(t, StateLogoutSent, h.session.State())

	peerLogout := h.peerFrame(t, MsgTypeLogout, 2, nil)
	require.NoError(t, h.session.HandleInbound(peerLogout))
	assert.Equal(t, StateDisconnected, h.session.State())
}

func TestSession_PeerInitiatedLogoutEchoesAndDisconnects(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	logon := h.peerFrame(t, MsgTypeLogon, 1, map[int]string{108: "30", 98: "0"})
	require.NoError(t, h.session.HandleInbound(logon))

	peerLogout := h.peerFrame(t, MsgTypeLogout, 2, nil)
	require.NoError(t, h.session.HandleInbound(peerLogout))

	assert.Equal(t, StateDisconnected, h.session.State())
	last := h.parse(t, h.channel.last())
	assert.Equal(t, MsgTypeLogout, last.MsgType().String())
}

func TestSession_ResetSequencesRestoresToOne(t *testing.T) {
	h := newTestHarness(t)
	h.connect(t)
	logon := h.peerFrame(t, MsgTypeLogon, 1, map[int]string{108: "30", 98: "0"})
	require.NoError(t, h.session.HandleInbound(logon))

	priorOut, priorIn := h.session.ResetSequences(time.Now())
	assert.Equal(t, int64(2), priorOut)
	assert.Equal(t, int64(2), priorIn)

	out, in := h.session.SequenceSnapshot()
	assert.Equal(t, int64(1), out)
	assert.Equal(t, int64(1), in)
}
