package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohanEM99/video-meet/internal/protocol"
	"github.com/JohanEM99/video-meet/internal/signaling"
)

type testServer struct {
	*httptest.Server
	hub    *signaling.Hub
	cancel context.CancelFunc
}

func startServer(t *testing.T, origins []string) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub, origins))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, hub: hub, cancel: cancel}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.MustNew(msgType, payload)))
}

func read(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func readType(t *testing.T, conn *websocket.Conn, msgType string, v any) {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, msgType, msg.Type, string(msg.Payload))
	if v != nil {
		require.NoError(t, msg.Decode(v))
	}
}

func join(t *testing.T, conn *websocket.Conn, room, user string) protocol.RoomJoinedPayload {
	t.Helper()
	send(t, conn, protocol.TypeJoin, protocol.JoinPayload{RoomID: room, UserID: user})
	var p protocol.RoomJoinedPayload
	readType(t, conn, protocol.TypeRoomJoined, &p)
	return p
}

func TestCallScenario(t *testing.T) {
	srv := startServer(t, nil)
	a := srv.dial(t)
	b := srv.dial(t)

	ja := join(t, a, "abc123", "john")
	assert.Empty(t, ja.ExistingUsers)
	assert.False(t, ja.Initiator)
	require.NotEmpty(t, ja.SessionID)

	jb := join(t, b, "abc123", "mary")
	assert.Equal(t, []string{ja.SessionID}, jb.ExistingUsers)
	assert.True(t, jb.Initiator)

	var joined string
	readType(t, a, protocol.TypeUserJoined, &joined)
	assert.Equal(t, jb.SessionID, joined)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	send(t, b, protocol.TypeSignal, protocol.SignalRequest{To: ja.SessionID, From: jb.SessionID, Signal: offer, RoomID: "abc123"})

	var sig protocol.SignalDelivery
	readType(t, a, protocol.TypeSignal, &sig)
	assert.Equal(t, jb.SessionID, sig.From)
	assert.JSONEq(t, string(offer), string(sig.Signal))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	send(t, a, protocol.TypeSignal, protocol.SignalRequest{To: jb.SessionID, Signal: answer, RoomID: "abc123"})

	var reply protocol.SignalDelivery
	readType(t, b, protocol.TypeSignal, &reply)
	assert.Equal(t, ja.SessionID, reply.From)
	assert.JSONEq(t, string(answer), string(reply.Signal))

	send(t, a, protocol.TypeChat, protocol.ChatRequest{RoomID: "abc123", UserID: "john", Message: " hello "})
	for _, conn := range []*websocket.Conn{a, b} {
		var chat protocol.ChatMessage
		readType(t, conn, protocol.TypeChat, &chat)
		assert.Equal(t, "john", chat.UserID)
		assert.Equal(t, "hello", chat.Message)
		assert.Equal(t, uint64(1), chat.Seq)
		assert.NotEmpty(t, chat.Timestamp)
	}

	c := srv.dial(t)
	send(t, c, protocol.TypeJoin, protocol.JoinPayload{RoomID: "abc123", UserID: "eve"})
	var full protocol.ErrorPayload
	readType(t, c, protocol.TypeError, &full)
	assert.Equal(t, protocol.CodeRoomFull, full.Code)

	send(t, a, protocol.TypeLeave, "abc123")
	var left string
	readType(t, b, protocol.TypeUserLeft, &left)
	assert.Equal(t, ja.SessionID, left)

	stats, ok := srv.hub.Stats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 1, stats.Sessions)

	send(t, b, protocol.TypeLeave, "abc123")
	require.Eventually(t, func() bool {
		stats, ok := srv.hub.Stats()
		return ok && stats.Rooms == 0 && stats.Sessions == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDisconnectNotifiesRemaining(t *testing.T) {
	srv := startServer(t, nil)
	a := srv.dial(t)
	b := srv.dial(t)

	join(t, a, "abc123", "john")
	jb := join(t, b, "abc123", "mary")
	readType(t, a, protocol.TypeUserJoined, nil)

	require.NoError(t, b.Close())
	var left string
	readType(t, a, protocol.TypeUserLeft, &left)
	assert.Equal(t, jb.SessionID, left)

	stats, ok := srv.hub.Stats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.Rooms)
	assert.Equal(t, 1, stats.Sessions)
}

func TestLeaveThenRejoinAsResponder(t *testing.T) {
	srv := startServer(t, nil)
	a := srv.dial(t)
	b := srv.dial(t)

	ja := join(t, a, "abc123", "john")
	join(t, b, "abc123", "mary")
	readType(t, a, protocol.TypeUserJoined, nil)

	send(t, a, protocol.TypeLeave, "abc123")
	var left string
	readType(t, b, protocol.TypeUserLeft, &left)
	assert.Equal(t, ja.SessionID, left)

	// A comes back into a room that is occupied by B and therefore offers.
	again := join(t, a, "abc123", "john")
	assert.True(t, again.Initiator)
	readType(t, b, protocol.TypeUserJoined, nil)
}

func TestBadFrames(t *testing.T) {
	srv := startServer(t, nil)
	conn := srv.dial(t)

	send(t, conn, "dance", nil)
	var e protocol.ErrorPayload
	readType(t, conn, protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeUnknownMessage, e.Code)

	send(t, conn, protocol.TypeJoin, "not-an-object")
	readType(t, conn, protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeBadRequest, e.Code)

	send(t, conn, protocol.TypeJoin, protocol.JoinPayload{UserID: "john"})
	readType(t, conn, protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeInvalidRoom, e.Code)

	// The connection survives all of the above.
	join(t, conn, "abc123", "john")
}

func TestOriginAllowList(t *testing.T) {
	srv := startServer(t, []string{"http://localhost:5173"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:5173"}})
	require.NoError(t, err)
	conn.Close()
}

func TestHealth(t *testing.T) {
	srv := startServer(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Rooms)
}

func TestShutdownClosesClients(t *testing.T) {
	srv := startServer(t, nil)
	conn := srv.dial(t)
	join(t, conn, "abc123", "john")

	srv.cancel()
	<-srv.hub.Done()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg protocol.Message
	assert.Error(t, conn.ReadJSON(&msg))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
