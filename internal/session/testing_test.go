package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fixengine/internal/dictionary"
	"fixengine/internal/fixcodec"
	"fixengine/internal/logstore"
)

func testDictionary(t *testing.T) *dictionary.Dictionary {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.xml"), []byte(`<fix></fix>`), 0644))
	d, err := dictionary.Load(dir, "test.xml")
	require.NoError(t, err)
	return d
}

// fakeChannel records every frame handed to Send.
type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(frame))
	copy(stored, frame)
	c.frames = append(c.frames, stored)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// fakeListener records lifecycle and application-message callbacks.
type fakeListener struct {
	mu           sync.Mutex
	stateChanges []string
	appMessages  []*fixcodec.Message
	disconnects  []string
}

func (l *fakeListener) OnStateChange(sessionID string, from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateChanges = append(l.stateChanges, from.String()+"->"+to.String())
}

func (l *fakeListener) OnApplicationMessage(sessionID string, msg *fixcodec.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appMessages = append(l.appMessages, msg)
}

func (l *fakeListener) OnDisconnect(sessionID string, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects = append(l.disconnects, reason)
}

// testHarness bundles a Session with the peer-side fields needed to build
// inbound frames as if sent by the counterparty.
type testHarness struct {
	session  *Session
	channel  *fakeChannel
	listener *fakeListener
	cfg      Config
	dict     *dictionary.Dictionary
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	dict := testDictionary(t)
	dir := t.TempDir()
	log, err := logstore.Open(dir, "TESTSESSION")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	cfg := Config{
		SessionID:     "TESTSESSION",
		BeginString:   "FIX.4.4",
		SenderCompID:  "US",
		TargetCompID:  "PEER",
		HeartBtInt:    30 * time.Second,
		MaxTag:        400,
		LogonTimeout:  5 * time.Second,
		LogoutTimeout: 5 * time.Second,
	}
	builder := fixcodec.NewBuilder(cfg.BeginString, cfg.SenderCompID, cfg.TargetCompID, cfg.MaxTag)
	listener := &fakeListener{}
	s := New(cfg, dict, log, builder, listener)

	return &testHarness{session: s, listener: listener, cfg: cfg, dict: dict}
}

// connect puts the session into Connected with a fresh fake channel.
func (h *testHarness) connect(t *testing.T) *fakeChannel {
	t.Helper()
	ch := &fakeChannel{}
	require.NoError(t, h.session.Connect(ch))
	h.channel = ch
	return ch
}

// peerFrame builds a frame as the peer (SenderCompID=PEER, TargetCompID=US)
// would send it, with a correct checksum/body length.
func (h *testHarness) peerFrame(t *testing.T, msgType string, seq int64, fields map[int]string) []byte {
	t.Helper()
	b := fixcodec.NewBuilder(h.cfg.BeginString, h.cfg.TargetCompID, h.cfg.SenderCompID, h.cfg.MaxTag)
	require.NoError(t, b.SetMsgType(msgType))
	for tag, val := range fields {
		require.NoError(t, b.SetField(tag, val))
	}
	require.NoError(t, b.PrepareForSend(seq, time.Now().UnixMilli()))
	out := make([]byte, len(b.Bytes()))
	copy(out, b.Bytes())
	return out
}

// peerFrameWithSender is like peerFrame but lets the caller override the
// SenderCompID, for exercising CompID-mismatch rejection.
func (h *testHarness) peerFrameWithSender(t *testing.T, senderCompID, msgType string, seq int64, fields map[int]string) []byte {
	t.Helper()
	b := fixcodec.NewBuilder(h.cfg.BeginString, senderCompID, h.cfg.SenderCompID, h.cfg.MaxTag)
	require.NoError(t, b.SetMsgType(msgType))
	for tag, val := range fields {
		require.NoError(t, b.SetField(tag, val))
	}
	require.NoError(t, b.PrepareForSend(seq, time.Now().UnixMilli()))
	out := make([]byte, len(b.Bytes()))
	copy(out, b.Bytes())
	return out
}

func (h *testHarness) parse(t *testing.T, raw []byte) *fixcodec.Message {
	t.Helper()
	msg, err := fixcodec.Wrap(h.dict, raw, h.cfg.MaxTag)
	require.NoError(t, err)
	return msg
}
