//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(room string, cursor *string) ([]DiskMessage, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the durable representation of a routed chat message.
// Lang is the detected ISO 639-3 code of the body, used by the search index.
type DiskMessage struct {
	ID       uuid.UUID `json:"id"`
	Room     string    `json:"room"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Content  string    `json:"content"`
	Lang     string    `json:"lang,omitempty"`
	At       time.Time `json:"at"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.Room,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages retrieves messages for a room using a reverse prefix scan, most
// recent first. Thanks to the padded timestamp in the key, messages are
// naturally sorted by time. The returned cursor resumes the scan on the next
// call; nil means the beginning of history was reached.
func (m MessageRepository) GetMessages(room string, cursor *string) ([]DiskMessage, *string, error) {
	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize the cursor part of the current key.
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				var msg DiskMessage
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				diskMessages = append(diskMessages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(diskMessages) == 0 {
		return nil, nil, nil
	}
	return diskMessages, &lastKey, nil
}

// FromJob converts a persistence job to its durable form.
func FromJob(job domain.PersistJob, lang string) DiskMessage {
	return DiskMessage{
		ID:       job.ID,
		Room:     job.Room.String(),
		Sender:   job.Sender,
		Receiver: job.Receiver,
		Content:  job.Body,
		Lang:     lang,
		At:       job.At,
	}
}
