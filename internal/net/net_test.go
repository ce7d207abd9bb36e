package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scenesync/server/internal/config"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
)

func testNetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{
		BindAddress:     "127.0.0.1:0",
		Path:            "/ws",
		InQueueSize:     8,
		OutQueueSize:    8,
		MaxMessageBytes: 1 << 16,
		WriteTimeout:    time.Second,
		ReadTimeout:     5 * time.Second,
	}
}

// pair returns the server side of a fresh websocket connection, not yet
// wrapped in a session, and the client side.
func pair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(ts.Close)
	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	select {
	case server = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func startServer(t *testing.T, cfg config.NetworkConfig) (*Server, *websocket.Conn, *Session) {
	t.Helper()
	srv, err := NewServer(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	client, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+cfg.Path, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case sess := <-srv.NewSessions():
		t.Cleanup(sess.Close)
		return srv, client, sess
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached the game loop")
	}
	return nil, nil, nil
}

func readEnvelope(t *testing.T, c *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestServerRoundTrip(t *testing.T) {
	_, client, sess := startServer(t, testNetworkConfig())

	if sess.State() != protocol.StateConnected {
		t.Fatalf("state = %s", sess.State())
	}
	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-sess.InQueue:
		if string(msg) != `{"type":"hello"}` {
			t.Fatalf("inbound = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never queued")
	}

	if err := sess.SendMessage(protocol.TypeError, protocol.Error{Code: protocol.ErrBadRequest}); err != nil {
		t.Fatal(err)
	}
	sess.FlushOutput()
	if env := readEnvelope(t, client); env.Type != protocol.TypeError {
		t.Fatalf("outbound type = %s", env.Type)
	}
}

func TestRateLimitedMessagesAreDropped(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.MessagesPerSecond = 0.001
	cfg.Burst = 1
	_, client, sess := startServer(t, cfg)

	for i := 0; i < 3; i++ {
		if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
			t.Fatal(err)
		}
	}
	env := readEnvelope(t, client)
	if env.Type != protocol.TypeError {
		t.Fatalf("type = %s", env.Type)
	}
	var e protocol.Error
	if err := env.DecodePayload(&e); err != nil || e.Code != protocol.ErrRateLimit {
		t.Fatalf("error = %+v (%v)", e, err)
	}
	if len(sess.InQueue) != 1 {
		t.Fatalf("queued = %d, want only the burst", len(sess.InQueue))
	}
}

func TestFlushDropsSlowPeer(t *testing.T) {
	server, _ := pair(t)
	cfg := testNetworkConfig()
	cfg.OutQueueSize = 1
	sess := NewSession(server, 1, cfg, zap.NewNop())

	sess.Send([]byte("a"))
	sess.Send([]byte("b"))
	sess.FlushOutput()
	if !sess.IsClosed() || sess.State() != protocol.StateClosing {
		t.Fatalf("slow peer kept: closed=%v state=%s", sess.IsClosed(), sess.State())
	}
	sess.Send([]byte("c"))
	if len(sess.outBuf) != 0 {
		t.Fatalf("closed session buffered output")
	}
}

type journal struct {
	ticks []uint64
	seen  []patch.Patch
}

func (j *journal) Write(tick uint64, p patch.Patch) error {
	j.ticks = append(j.ticks, tick)
	j.seen = append(j.seen, p)
	return nil
}

func TestBroadcasterFanOut(t *testing.T) {
	cfg := testNetworkConfig()
	store := NewSessionStore()
	var sessions []*Session
	for i := 1; i <= 3; i++ {
		server, _ := pair(t)
		s := NewSession(server, uint64(i), cfg, zap.NewNop())
		store.Add(s)
		sessions = append(sessions, s)
	}
	sessions[0].SetState(protocol.StateJoined)
	sessions[0].SetClientID(ecs.NewClientID())
	sessions[1].SetState(protocol.StateJoined)

	j := &journal{}
	b := NewBroadcaster(store, j, zap.NewNop())
	var first, second patch.Patch
	first.Set(patch.Number(1), "actors", "a", "transform")
	second.Remove("actors", "a")
	b.BroadcastExcept(first, sessions[1].ID)
	b.Broadcast(second)
	b.Broadcast(nil)

	if n := b.Flush(7); n != 2 || b.Pending() != 0 || b.Sent() != 2 {
		t.Fatalf("flushed %d, pending %d, sent %d", n, b.Pending(), b.Sent())
	}
	if got := []int{len(sessions[0].outBuf), len(sessions[1].outBuf), len(sessions[2].outBuf)}; got[0] != 1 || got[1] != 1 || got[2] != 0 {
		t.Fatalf("per-session messages = %v", got)
	}
	entries := func(data []byte) patch.Patch {
		t.Helper()
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		var msg protocol.PatchMsg
		if err := env.DecodePayload(&msg); err != nil {
			t.Fatal(err)
		}
		if env.Type != protocol.TypePatch {
			t.Fatalf("type = %s", env.Type)
		}
		return msg.Entries
	}
	if got := entries(sessions[0].outBuf[0]); len(got) != 2 || got[0].Value.IsNull() || !got[1].Value.IsNull() {
		t.Fatalf("joined peer got %v", got)
	}
	if got := entries(sessions[1].outBuf[0]); len(got) != 1 || !got[0].Value.IsNull() {
		t.Fatalf("excluded peer got %v", got)
	}
	if len(j.ticks) != 2 || j.ticks[0] != 7 {
		t.Fatalf("journal ticks = %v", j.ticks)
	}
	if store.ByClient(sessions[0].ClientID()) != sessions[0] {
		t.Fatalf("ByClient did not find the joined session")
	}
}

func TestAnnounceReachesJoinedSessions(t *testing.T) {
	cfg := testNetworkConfig()
	store := NewSessionStore()
	var sessions []*Session
	for i := 1; i <= 2; i++ {
		server, _ := pair(t)
		s := NewSession(server, uint64(i), cfg, zap.NewNop())
		store.Add(s)
		sessions = append(sessions, s)
	}
	sessions[0].SetState(protocol.StateJoined)

	b := NewBroadcaster(store, nil, zap.NewNop())
	next := ecs.NewClientID()
	b.Announce(protocol.TypePrimary, protocol.Primary{ClientID: next})

	if len(sessions[0].outBuf) != 1 || len(sessions[1].outBuf) != 0 {
		t.Fatalf("buffered = %d, %d", len(sessions[0].outBuf), len(sessions[1].outBuf))
	}
	var env protocol.Envelope
	if err := json.Unmarshal(sessions[0].outBuf[0], &env); err != nil {
		t.Fatal(err)
	}
	var msg protocol.Primary
	if err := env.DecodePayload(&msg); err != nil {
		t.Fatal(err)
	}
	if env.Type != protocol.TypePrimary || msg.ClientID != next {
		t.Fatalf("got %s %+v", env.Type, msg)
	}
	if b.Pending() != 0 {
		t.Fatalf("announcement queued as a patch")
	}
}
