// Package event defines the outbound wire events fanned out to room members.
// Each type marshals to the exact JSON shape the browser clients consume.
package event

import (
	"encoding/json"

	"chat-relay/domain"
)

const (
	chatType        = "message"
	typingType      = "typing"
	readReceiptType = "read_receipt"
)

// Outbound is the closed set of events a connection can receive.
type Outbound interface {
	outbound()
}

// Chat is the broadcast echo of a routed chat message. Timestamp is the
// server-assigned wall clock in milliseconds. ClientMsgID is echoed verbatim
// so the originating client can reconcile its own echo.
type Chat struct {
	Type        string          `json:"type"`
	Message     string          `json:"message"`
	Sender      string          `json:"sender"`
	Timestamp   int64           `json:"timestamp"`
	ClientMsgID json.RawMessage `json:"clientMsgId,omitempty"`
}

func (Chat) outbound() {}

// NewChat builds the broadcast event for a routed chat message.
func NewChat(msg domain.ChatMessage) Chat {
	return Chat{
		Type:        chatType,
		Message:     msg.Body,
		Sender:      msg.Sender,
		Timestamp:   msg.At.UnixMilli(),
		ClientMsgID: msg.ClientMsgID,
	}
}

// Typing mirrors a typing indicator to the room.
type Typing struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

func (Typing) outbound() {}

func NewTyping(sender string, typing bool) Typing {
	return Typing{Type: typingType, Sender: sender, Typing: typing}
}

// ReadReceipt tells the room that reader has seen the conversation.
type ReadReceipt struct {
	Type   string `json:"type"`
	Reader string `json:"reader"`
}

func (ReadReceipt) outbound() {}

func NewReadReceipt(reader string) ReadReceipt {
	return ReadReceipt{Type: readReceiptType, Reader: reader}
}

// Presence announces an identity going online or offline in the global
// status room. It is never persisted.
type Presence struct {
	User   string `json:"user"`
	Status Status `json:"status"`
}

func (Presence) outbound() {}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

func NewPresence(user string, status Status) Presence {
	return Presence{User: user, Status: status}
}

// Error is a reply sent to the originating connection only, never broadcast.
type Error struct {
	Error string `json:"error"`
}

func (Error) outbound() {}

func NewError(msg string) Error {
	return Error{Error: msg}
}
