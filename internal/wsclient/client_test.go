package wsclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JohanEM99/video-meet/internal/protocol"
	"github.com/JohanEM99/video-meet/internal/server"
	"github.com/JohanEM99/video-meet/internal/signaling"
)

func startServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := signaling.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewMux(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", cancel
}

func next(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		require.True(t, ok, "connection closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestJoinOverClient(t *testing.T) {
	url, _ := startServer(t)

	c := NewClient(url)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Send(protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{RoomID: "abc123", UserID: "john"})))

	msg := next(t, c)
	require.Equal(t, protocol.TypeRoomJoined, msg.Type)

	var p protocol.RoomJoinedPayload
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, "abc123", p.RoomID)
	assert.False(t, p.Initiator)
}

func TestServerShutdownClosesIncoming(t *testing.T) {
	url, cancel := startServer(t)

	c := NewClient(url)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	cancel()

	select {
	case _, ok := <-c.Incoming():
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("incoming was not closed")
	}
	assert.Error(t, c.Err())
}

func TestSendAfterClose(t *testing.T) {
	url, _ := startServer(t)

	c := NewClient(url)
	require.NoError(t, c.Connect(context.Background()))
	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send(protocol.MustNew(protocol.TypeLeave, "abc123")), ErrClosed)
	assert.NoError(t, c.Err())
}

func TestConnectRefused(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}
