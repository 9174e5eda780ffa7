package workers

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/repositories"
	"chat-relay/search"
)

var _ contract.Worker = (*IndexWorker)(nil)

// IndexWorker serializes all writes to the search index. Bluge writers are
// not meant for concurrent updates, so a single worker drains the queue.
type IndexWorker struct {
	queue <-chan repositories.DiskMessage
	index search.IMessageIndex
	log   *slog.Logger
}

func NewIndexWorker(queue <-chan repositories.DiskMessage, index search.IMessageIndex, log *slog.Logger) *IndexWorker {
	return &IndexWorker{queue: queue, index: index, log: log}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case msg, ok := <-w.queue:
			if !ok {
				w.log.Debug("Index queue closed")
				return nil
			}
			if err := w.index.Index(msg); err != nil {
				w.log.Error(fmt.Sprintf("Failed to index message %s", msg.ID), "error", err)
			}
		}
	}
}
