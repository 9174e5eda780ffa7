package ws

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chat-relay/observability"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestSession_FramePanicAnswersSenderAndKeepsSessionAlive(t *testing.T) {
	req := require.New(t)
	serverConn, clientConn := newConnPair(t)

	var handled atomic.Int32
	onFrame := func(_ context.Context, raw []byte) {
		handled.Add(1)
		if string(raw) == "boom" {
			panic("handler blew up")
		}
	}

	c := NewClient(serverConn, testOpts(), logs.GetLoggerFromString("ERROR"))
	session := NewSession("session-panic", c, onFrame, func() {},
		observability.NewMonitoringManager(), logs.GetLoggerFromString("ERROR"))
	go session.Run(context.Background())

	req.NoError(clientConn.WriteMessage(websocket.TextMessage, []byte("boom")))

	// The sender gets an error reply instead of losing the connection.
	req.NoError(clientConn.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := clientConn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"error":"Internal server error"}`, string(raw))

	// The read loop is still feeding frames to the handler.
	req.NoError(clientConn.WriteMessage(websocket.TextMessage, []byte("fine")))
	req.Eventually(func() bool { return handled.Load() == 2 },
		time.Second, 10*time.Millisecond)
	req.Equal(StateOpen, session.State())
}

func TestSession_TeardownRunsAfterFramePanicThenDisconnect(t *testing.T) {
	req := require.New(t)
	serverConn, clientConn := newConnPair(t)

	closed := make(chan struct{})
	onFrame := func(context.Context, []byte) { panic("always") }

	c := NewClient(serverConn, testOpts(), logs.GetLoggerFromString("ERROR"))
	session := NewSession("session-teardown", c, onFrame, func() { close(closed) },
		observability.NewMonitoringManager(), logs.GetLoggerFromString("ERROR"))
	go session.Run(context.Background())

	req.NoError(clientConn.WriteMessage(websocket.TextMessage, []byte("boom")))
	req.NoError(clientConn.Close())

	// Room leave and presence-offline hang off onClose; it must fire once
	// the connection is gone, panics notwithstanding.
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown never ran after the peer disconnected")
	}
	req.Eventually(func() bool { return session.State() == StateClosed },
		time.Second, 10*time.Millisecond)
}

func TestSession_ContextCancelTearsDown(t *testing.T) {
	serverConn, _ := newConnPair(t)

	closed := make(chan struct{})
	c := NewClient(serverConn, testOpts(), logs.GetLoggerFromString("ERROR"))
	session := NewSession("session-cancel", c,
		func(context.Context, []byte) {}, func() { close(closed) },
		observability.NewMonitoringManager(), logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	go session.Run(ctx)
	cancel()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown never ran after context cancellation")
	}
}
