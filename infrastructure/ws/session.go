package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"chat-relay/domain/event"
	"chat-relay/observability"

	"github.com/gorilla/websocket"
)

// SessionState tracks a connection through its lifecycle. Transitions only
// move forward: Connecting to Open to Closed.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session drives one accepted connection: it runs the read loop, feeds
// inbound frames to its handler, and guarantees that teardown side effects
// run exactly once, whether the peer disconnected, errored, or the server
// is shutting down.
type Session struct {
	ID     string
	client *Client

	onFrame func(ctx context.Context, raw []byte)
	onClose func()

	state       atomic.Int32
	cleanupOnce sync.Once

	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewSession(
	id string,
	client *Client,
	onFrame func(ctx context.Context, raw []byte),
	onClose func(),
	monitoring *observability.MonitoringManager,
	log *slog.Logger,
) *Session {
	s := &Session{
		ID:         id,
		client:     client,
		onFrame:    onFrame,
		onClose:    onClose,
		monitoring: monitoring,
		log:        log,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run opens the session and blocks on the read loop until the connection
// dies or ctx is canceled. Teardown always runs before Run returns, even
// when the read loop unwinds on a panic.
func (s *Session) Run(ctx context.Context) {
	s.state.Store(int32(StateOpen))
	s.monitoring.ConnectionOpened()
	defer s.Teardown()

	go s.client.writePump()

	// A canceled context must unblock the blocking read.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-readCtx.Done()
		s.client.Close()
	}()

	s.readLoop(ctx)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, raw, err := s.client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				s.log.Debug("Read loop ended", "session", s.ID, "error", err)
			}
			return
		}
		s.handleFrame(ctx, raw)
	}
}

// handleFrame isolates one frame: a panic in the handler answers the
// sender and leaves the session alive for the next frame.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error(fmt.Sprintf("Frame handler panicked on session %s", s.ID), "panic", rec)
			_ = s.client.Consume(ctx, event.NewError("Internal server error"))
		}
	}()
	s.onFrame(ctx, raw)
}

// Teardown runs the close side effects exactly once. The leave and offline
// announcements happen here, so a session closed twice never announces
// twice.
func (s *Session) Teardown() {
	s.cleanupOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.onClose()
		s.client.Close()
		s.monitoring.ConnectionClosed()
	})
}
