package workers

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"

	"github.com/abadojack/whatlanggo"
)

var _ contract.Worker = (*PersistWorker)(nil)

// PersistWorker drains the durable-write queue. Rooms have already seen
// every message it handles; a failed write is counted and logged, nothing
// more. It forwards successful writes to the index queue without blocking.
type PersistWorker struct {
	jobs       <-chan domain.PersistJob
	repo       repositories.IMessageRepository
	index      chan<- repositories.DiskMessage
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewPersistWorker(
	jobs <-chan domain.PersistJob,
	repo repositories.IMessageRepository,
	index chan<- repositories.DiskMessage,
	monitoring *observability.MonitoringManager,
	log *slog.Logger,
) *PersistWorker {
	return &PersistWorker{
		jobs:       jobs,
		repo:       repo,
		index:      index,
		monitoring: monitoring,
		log:        log,
	}
}

func (w *PersistWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Persistence queue closed")
				return nil
			}
			w.store(job)
		}
	}
}

func (w *PersistWorker) store(job domain.PersistJob) {
	msg := repositories.FromJob(job, detectLang(job.Body))
	if err := w.repo.StoreMessage(msg); err != nil {
		w.monitoring.IncrPersistFailures()
		w.log.Error(fmt.Sprintf("Failed to persist message %s", job.ID), "room", job.Room, "error", err)
		return
	}

	if w.index == nil {
		return
	}
	select {
	case w.index <- msg:
	default:
		w.monitoring.IncrDroppedIndexJobs()
		w.log.Warn(fmt.Sprintf("Index queue full, message %s will not be searchable", job.ID))
	}
}

// detectLang returns the ISO 639-3 code of the body, or empty when the
// detector is not confident enough to be useful.
func detectLang(body string) string {
	info := whatlanggo.Detect(body)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}
