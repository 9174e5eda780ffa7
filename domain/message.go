package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an immutable chat message as routed by the relay.
// The timestamp is assigned by the server, not the client.
type ChatMessage struct {
	ID          uuid.UUID
	Room        RoomKey
	Sender      string
	Receiver    string
	Body        string
	ClientMsgID json.RawMessage
	At          time.Time
}

// PersistJob carries one durable write request to the persistence workers.
// It is created after the broadcast has already happened; its outcome is
// never reported back to the originating connection.
type PersistJob struct {
	ID       uuid.UUID
	Room     RoomKey
	Sender   string
	Receiver string
	Body     string
	At       time.Time
}
