package engine

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixengine/internal/config"
	"fixengine/internal/dictionary"
	"fixengine/internal/registry"
)

func testDictionary(t *testing.T) *dictionary.Dictionary {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.xml"), []byte(`<fix></fix>`), 0644))
	d, err := dictionary.Load(dir, "test.xml")
	require.NoError(t, err)
	return d
}

// freePort grabs an ephemeral TCP port by binding and immediately releasing
// it, so the acceptor and initiator configs below can agree on one without
// hardcoding a port that might already be in use.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testEngineConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	return &config.EngineConfig{
		ShutdownTimeout: 2 * time.Second,
		LogStore:        config.LogStoreConfig{Path: t.TempDir()},
		Pool:            config.PoolConfig{RingCapacity: 16, Backpressure: "SYNC_FALLBACK"},
		Network:         config.NetworkConfig{ReadTimeout: 2 * time.Second},
	}
}

// wireSessionPair registers one acceptor session and one initiator session
// that connect to each other over real loopback TCP, both owned by the same
// Engine (an unusual topology outside tests, but it exercises the acceptor's
// CompID-pair routing and the initiator's dial path with nothing mocked).
func wireSessionPair(t *testing.T, e *Engine) (acceptorID, initiatorID string) {
	t.Helper()
	port := freePort(t)

	acceptorID, err := e.CreateSession(config.SessionConfig{
		SenderCompID:      "ACC",
		TargetCompID:      "INIT",
		ConnectionType:    "acceptor",
		Port:              port,
		HeartbeatInterval: 30 * time.Second,
	})
	require.NoError(t, err)

	initiatorID, err = e.CreateSession(config.SessionConfig{
		SenderCompID:      "INIT",
		TargetCompID:      "ACC",
		ConnectionType:    "initiator",
		Port:              port,
		TargetHost:        "127.0.0.1",
		HeartbeatInterval: 30 * time.Second,
	})
	require.NoError(t, err)

	return acceptorID, initiatorID
}

func waitLoggedOn(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		allUp := true
		for _, id := range ids {
			entry, err := e.lookup(id)
			require.NoError(t, err)
			if !entry.sess.IsLoggedOn() {
				allUp = false
			}
		}
		if allUp {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("sessions did not reach LoggedOn in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEngine_AcceptorInitiatorHandshake(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	e.Start()
	defer e.Stop()

	acceptorID, initiatorID := wireSessionPair(t, e)
	require.NoError(t, e.Connect(initiatorID))

	waitLoggedOn(t, e, acceptorID, initiatorID)
}

func TestEngine_CreateSessionRejectsDuplicate(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	defer e.Stop()

	cfg := config.SessionConfig{
		SenderCompID:      "A",
		TargetCompID:      "B",
		ConnectionType:    "initiator",
		Port:              freePort(t),
		TargetHost:        "127.0.0.1",
		HeartbeatInterval: 30 * time.Second,
	}
	_, err := e.CreateSession(cfg)
	require.NoError(t, err)

	_, err = e.CreateSession(cfg)
	require.Error(t, err)
}

func TestEngine_AdminSurfaceUnknownSessionErrors(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	defer e.Stop()

	require.Error(t, e.Connect("nope"))
	require.Error(t, e.Disconnect("nope", "x"))
	require.Error(t, e.Logout("nope", "x"))
	require.Error(t, e.SetOutgoingSeqNum("nope", 5))
	require.Error(t, e.SetExpectedIncomingSeqNum("nope", 5))
	require.Error(t, e.ResetSequenceNumbers("nope"))
	_, err := e.SendTestRequest("nope")
	require.Error(t, err)
}

func TestEngine_SequenceAndTestRequestAdminSurface(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	e.Start()
	defer e.Stop()

	acceptorID, initiatorID := wireSessionPair(t, e)
	require.NoError(t, e.Connect(initiatorID))
	waitLoggedOn(t, e, acceptorID, initiatorID)

	require.NoError(t, e.SetOutgoingSeqNum(initiatorID, 50))
	require.NoError(t, e.SetExpectedIncomingSeqNum(acceptorID, 50))

	reqID, err := e.SendTestRequest(initiatorID)
	require.NoError(t, err)
	require.NotEmpty(t, reqID)
}

func TestEngine_TriggerEodBroadcastsToListeners(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	e.Start()
	defer e.Stop()

	acceptorID, initiatorID := wireSessionPair(t, e)
	require.NoError(t, e.Connect(initiatorID))
	waitLoggedOn(t, e, acceptorID, initiatorID)

	done := make(chan string, 1)
	e.RegisterEodListener(func(sessionID string, priorOut, priorIn int64, at time.Time) {
		done <- sessionID
	})

	require.NoError(t, e.TriggerEod(initiatorID))

	select {
	case id := <-done:
		require.Equal(t, initiatorID, id)
	case <-time.After(time.Second):
		t.Fatal("eod listener was not invoked")
	}
}

func TestEngine_DisconnectSuppressesInitiatorReconnect(t *testing.T) {
	e := New(testEngineConfig(t), testDictionary(t))
	e.Start()
	defer e.Stop()

	acceptorID, initiatorID := wireSessionPair(t, e)
	require.NoError(t, e.Connect(initiatorID))
	waitLoggedOn(t, e, acceptorID, initiatorID)

	require.NoError(t, e.Disconnect(initiatorID, "test teardown"))

	entry, err := e.lookup(initiatorID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return entry.sess.State().String() == "DISCONNECTED"
	}, time.Second, 10*time.Millisecond)

	// No reconnect should occur, since Disconnect suppresses it: state should
	// stay DISCONNECTED well past OnDisconnect's 5s reconnect delay would
	// otherwise fire within.
	time.Sleep(6 * time.Second)
	require.Equal(t, "DISCONNECTED", entry.sess.State().String())
}

func TestEngine_CreateSessionPersistsToRegistry(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Registry = config.RegistryConfig{Backend: "badger", Path: filepath.Join(t.TempDir(), "registry")}
	e := New(cfg, testDictionary(t))
	defer e.Stop()

	id, err := e.CreateSession(config.SessionConfig{
		SenderCompID:      "A",
		TargetCompID:      "B",
		ConnectionType:    "initiator",
		Port:              freePort(t),
		TargetHost:        "127.0.0.1",
		HeartbeatInterval: 30 * time.Second,
	})
	require.NoError(t, err)

	rec, err := e.reg.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Config.SenderCompID)
	assert.Equal(t, int64(1), rec.Checkpoint.OutgoingSeq)
}

func TestEngine_LoadSessionsRecreatesFromRegistry(t *testing.T) {
	cfg := testEngineConfig(t)
	cfg.Registry = config.RegistryConfig{Backend: "badger", Path: filepath.Join(t.TempDir(), "registry")}

	reg, err := registry.Open(cfg.Registry)
	require.NoError(t, err)
	require.NoError(t, reg.Put(context.Background(), registry.SessionRecord{
		SessionID: "A-B",
		Config: config.SessionConfig{
			SenderCompID:      "A",
			TargetCompID:      "B",
			ConnectionType:    "initiator",
			Port:              freePort(t),
			TargetHost:        "127.0.0.1",
			HeartbeatInterval: 30 * time.Second,
		},
		Checkpoint: registry.Checkpoint{OutgoingSeq: 77, ExpectedIncomingSeq: 88},
	}))
	require.NoError(t, reg.Close())

	e := New(cfg, testDictionary(t))
	defer e.Stop()

	restored, err := e.LoadSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"A-B"}, restored)

	entry, err := e.lookup("A-B")
	require.NoError(t, err)
	out, in := entry.sess.SequenceSnapshot()
	assert.Equal(t, int64(77), out)
	assert.Equal(t, int64(88), in)
}
