//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks

// Package search maintains a full-text index of persisted chat messages.
// Indexing happens off the broadcast path, fed by the persistence workers.
package search

import (
	"context"
	"time"

	"chat-relay/repositories"

	"github.com/blugelabs/bluge"
)

type IMessageIndex interface {
	Index(msg repositories.DiskMessage) error
	Search(ctx context.Context, query, room string, limit int) ([]Hit, error)
	Close() error
}

// MessageIndex wraps a bluge writer. Writes are serialized by the index
// worker; reads open a point-in-time reader per query.
type MessageIndex struct {
	writer *bluge.Writer
}

// Hit is one search result, rebuilt from stored fields.
type Hit struct {
	ID      string `json:"id"`
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Lang    string `json:"lang,omitempty"`
	At      string `json:"at"`
}

func NewMessageIndex(path string) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer}, nil
}

// NewInMemoryMessageIndex backs the index with memory only, for tests.
func NewInMemoryMessageIndex() (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer}, nil
}

func (i *MessageIndex) Index(msg repositories.DiskMessage) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("room", msg.Room).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.Sender).StoreValue()).
		AddField(bluge.NewKeywordField("lang", msg.Lang).StoreValue()).
		AddField(bluge.NewStoredOnlyField("at", []byte(msg.At.UTC().Format(time.RFC3339Nano))))
	return i.writer.Update(doc.ID(), doc)
}

// Search matches the query against message bodies. An empty room searches
// across all conversations.
func (i *MessageIndex) Search(ctx context.Context, query, room string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	match := bluge.NewMatchQuery(query).SetField("content")
	var q bluge.Query = match
	if room != "" {
		q = bluge.NewBooleanQuery().
			AddMust(match).
			AddMust(bluge.NewTermQuery(room).SetField("room"))
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		next, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		var hit Hit
		err = next.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.ID = string(value)
			case "room":
				hit.Room = string(value)
			case "sender":
				hit.Sender = string(value)
			case "content":
				hit.Content = string(value)
			case "lang":
				hit.Lang = string(value)
			case "at":
				hit.At = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}
