// Package domain contains the core concepts of the relay: room keys,
// chat messages, and the inbound frame variants exchanged over a connection.
package domain

import (
	"strings"

	"chat-relay/errors"
)

// roomKeySeparator joins the two identities of a one-to-one conversation.
const roomKeySeparator = "_"

// placeholderIdentity is what browser clients send when their local state
// is broken. It must never be accepted as a participant.
const placeholderIdentity = "undefined"

// RoomKey addresses a one-to-one conversation. The raw string preserves the
// order given at connect time; the two identities are unordered for
// addressing purposes.
type RoomKey string

// ParseRoomKey validates the shape of a client-supplied room key.
// The key must split into exactly two non-empty identity tokens,
// neither of which is the "undefined" placeholder.
func ParseRoomKey(raw string) (RoomKey, error) {
	parts := strings.Split(raw, roomKeySeparator)
	if len(parts) != 2 {
		return "", errors.ErrMalformedRoomKey
	}
	for _, p := range parts {
		if p == "" || p == placeholderIdentity {
			return "", errors.ErrMalformedRoomKey
		}
	}
	return RoomKey(raw), nil
}

func (k RoomKey) String() string {
	return string(k)
}

// Participants returns the two identity tokens in their raw order.
func (k RoomKey) Participants() (string, string) {
	parts := strings.SplitN(string(k), roomKeySeparator, 2)
	return parts[0], parts[1]
}

// Contains reports whether the given identity is one of the two participants.
func (k RoomKey) Contains(identity string) bool {
	a, b := k.Participants()
	return identity == a || identity == b
}

// Other derives the receiver of a message: whichever participant is not the
// sender. A sender that matches neither token resolves to the first one,
// mirroring the addressing rule the clients rely on.
func (k RoomKey) Other(sender string) string {
	a, b := k.Participants()
	if a == sender {
		return b
	}
	return a
}
