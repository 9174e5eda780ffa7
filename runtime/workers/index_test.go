package workers

import (
	"context"
	"testing"
	"time"

	"chat-relay/mocks"
	"chat-relay/repositories"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestIndexWorker_IndexesEveryQueuedMessage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	index := mocks.NewMockIMessageIndex(ctrl)

	indexed := make(chan repositories.DiskMessage, 2)
	index.EXPECT().
		Index(gomock.Any()).
		DoAndReturn(func(msg repositories.DiskMessage) error {
			indexed <- msg
			return nil
		}).
		Times(2)

	queue := make(chan repositories.DiskMessage, 2)
	worker := NewIndexWorker(queue, index, logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	first := repositories.DiskMessage{ID: uuid.New(), Room: "alice_bob", Content: "hi"}
	second := repositories.DiskMessage{ID: uuid.New(), Room: "alice_bob", Content: "hello"}
	queue <- first
	queue <- second

	for i := 0; i < 2; i++ {
		select {
		case <-indexed:
		case <-time.After(time.Second):
			req.FailNow("message was never indexed")
		}
	}
}

func TestIndexWorker_KeepsDrainingAfterIndexError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	index := mocks.NewMockIMessageIndex(ctrl)

	calls := make(chan struct{}, 2)
	index.EXPECT().
		Index(gomock.Any()).
		DoAndReturn(func(repositories.DiskMessage) error {
			calls <- struct{}{}
			return context.DeadlineExceeded
		}).
		Times(2)

	queue := make(chan repositories.DiskMessage, 2)
	worker := NewIndexWorker(queue, index, logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	queue <- repositories.DiskMessage{ID: uuid.New()}
	queue <- repositories.DiskMessage{ID: uuid.New()}

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			req.FailNow("worker stopped draining after an index error")
		}
	}
}
