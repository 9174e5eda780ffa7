package domain

import (
	"encoding/json"

	"chat-relay/errors"
)

// FrameType discriminates inbound frames. A frame without an explicit type
// is a chat message.
type FrameType string

const (
	FrameChat        FrameType = "message"
	FrameTyping      FrameType = "typing"
	FrameReadReceipt FrameType = "read_receipt"
)

// Frame is the closed set of inbound frame variants.
type Frame interface {
	Type() FrameType
}

// ChatFrame carries a chat message from a client. ClientMsgID is an opaque
// correlation token echoed back in the broadcast so the sender can match
// its own echo.
type ChatFrame struct {
	Sender      string
	Message     string
	ClientMsgID json.RawMessage
}

func (ChatFrame) Type() FrameType { return FrameChat }

// TypingFrame signals that the sender started or stopped typing.
type TypingFrame struct {
	Sender string
	Typing bool
}

func (TypingFrame) Type() FrameType { return FrameTyping }

// ReadReceiptFrame signals that the sender has read the conversation.
type ReadReceiptFrame struct {
	Sender string
}

func (ReadReceiptFrame) Type() FrameType { return FrameReadReceipt }

// envelope is the loose wire shape every inbound frame shares.
type envelope struct {
	Type        string          `json:"type"`
	Message     string          `json:"message"`
	Sender      string          `json:"sender"`
	Typing      bool            `json:"typing"`
	ClientMsgID json.RawMessage `json:"clientMsgId"`
}

// DecodeFrame parses one inbound frame and validates the fields required by
// its variant. Unparseable input yields ErrInvalidJSON; a known variant with
// missing required fields yields ErrInvalidFrame.
func DecodeFrame(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.ErrInvalidJSON
	}

	switch FrameType(env.Type) {
	case FrameTyping:
		if env.Sender == "" {
			return nil, errors.ErrInvalidFrame
		}
		return TypingFrame{Sender: env.Sender, Typing: env.Typing}, nil
	case FrameReadReceipt:
		if env.Sender == "" {
			return nil, errors.ErrInvalidFrame
		}
		return ReadReceiptFrame{Sender: env.Sender}, nil
	default:
		// Anything else is a chat message, matching the clients' behavior
		// of omitting the type field entirely.
		if env.Sender == "" || env.Message == "" {
			return nil, errors.ErrInvalidFrame
		}
		return ChatFrame{Sender: env.Sender, Message: env.Message, ClientMsgID: env.ClientMsgID}, nil
	}
}
