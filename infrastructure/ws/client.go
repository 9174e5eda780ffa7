// Package ws carries chat traffic over websocket connections. Each
// connection owns a Client that serializes outbound events through a single
// writer goroutine, and a Session that drives the inbound read loop.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/gorilla/websocket"
)

var _ contract.EventSink = (*Client)(nil)

// ClientOptions bounds the per-connection outbound path.
type ClientOptions struct {
	BufferSize      int
	DeliveryTimeout time.Duration
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageSize  int64
}

// Client is the per-connection event sink. Consume may be called from any
// broadcasting goroutine; the websocket itself is written by writePump only.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	opts ClientOptions
	log  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(conn *websocket.Conn, opts ClientOptions, log *slog.Logger) *Client {
	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})
	return &Client{
		conn:   conn,
		send:   make(chan []byte, opts.BufferSize),
		opts:   opts,
		log:    log,
		closed: make(chan struct{}),
	}
}

// Consume marshals the event and enqueues it for the writer goroutine. A
// connection that cannot absorb the event within the delivery timeout is a
// slow consumer: the event is dropped for this connection only.
func (c *Client) Consume(ctx context.Context, e event.Outbound) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errors.ErrSinkClosed
	default:
	}

	timer := time.NewTimer(c.opts.DeliveryTimeout)
	defer timer.Stop()

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return errors.ErrSinkClosed
	case <-timer.C:
		return errors.ErrSinkFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unblocks pending Consume calls and tears down the connection. Safe
// to call from both the read and write sides.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// writePump owns all writes to the websocket, draining the send queue and
// keeping the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
