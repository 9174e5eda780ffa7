package runtime

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"

	"github.com/google/uuid"
)

// MessageRouter classifies inbound frames and drives their effects: fan-out
// for every variant, plus an asynchronous persistence submission for chat
// messages. Typing indicators and read receipts are never persisted.
type MessageRouter struct {
	registry   contract.IRoomRegistry
	censor     *moderation.Censor
	jobs       chan<- domain.PersistJob
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewMessageRouter(
	registry contract.IRoomRegistry,
	censor *moderation.Censor,
	jobs chan<- domain.PersistJob,
	monitoring *observability.MonitoringManager,
	log *slog.Logger,
) *MessageRouter {
	return &MessageRouter{
		registry:   registry,
		censor:     censor,
		jobs:       jobs,
		monitoring: monitoring,
		log:        log,
	}
}

// Dispatch processes one raw inbound frame for the given room. A malformed
// frame produces a local-only error reply to the sender; it never reaches
// the room and never ends the session.
func (r *MessageRouter) Dispatch(ctx context.Context, key domain.RoomKey, sender contract.EventSink, raw []byte) {
	frame, err := domain.DecodeFrame(raw)
	if err != nil {
		r.monitoring.IncrFormatErrors()
		r.replyError(ctx, sender, err)
		return
	}

	switch f := frame.(type) {
	case domain.TypingFrame:
		r.registry.Broadcast(ctx, key, event.NewTyping(f.Sender, f.Typing))
	case domain.ReadReceiptFrame:
		r.registry.Broadcast(ctx, key, event.NewReadReceipt(f.Sender))
	case domain.ChatFrame:
		r.routeChat(ctx, key, f)
	}
}

// routeChat broadcasts the message immediately and hands the durable write
// to the persistence workers. The broadcast never waits on storage: by the
// time persistence runs, the room has already seen the message.
func (r *MessageRouter) routeChat(ctx context.Context, key domain.RoomKey, f domain.ChatFrame) {
	msg := domain.ChatMessage{
		ID:          uuid.New(),
		Room:        key,
		Sender:      f.Sender,
		Receiver:    key.Other(f.Sender),
		Body:        r.censor.Apply(f.Message),
		ClientMsgID: f.ClientMsgID,
		At:          time.Now().UTC(),
	}

	r.registry.Broadcast(ctx, key, event.NewChat(msg))
	r.monitoring.IncrMessagesRouted()

	job := domain.PersistJob{
		ID:       msg.ID,
		Room:     msg.Room,
		Sender:   msg.Sender,
		Receiver: msg.Receiver,
		Body:     msg.Body,
		At:       msg.At,
	}
	select {
	case r.jobs <- job:
	default:
		r.monitoring.IncrDroppedPersistJobs()
		r.log.Warn(fmt.Sprintf("Persistence queue full, dropping write for room %s", key))
	}
}

// replyError sends a format error to the originating connection only.
func (r *MessageRouter) replyError(ctx context.Context, sender contract.EventSink, cause error) {
	msg := "Invalid message format"
	if goerrors.Is(cause, errors.ErrInvalidJSON) {
		msg = "Invalid JSON format"
	}
	if err := sender.Consume(ctx, event.NewError(msg)); err != nil {
		r.log.Debug("Could not deliver format error to sender", "error", err)
	}
}
