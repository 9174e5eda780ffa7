package workers

import (
	"context"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newJob(body string) domain.PersistJob {
	return domain.PersistJob{
		ID:       uuid.New(),
		Room:     domain.RoomKey("alice_bob"),
		Sender:   "alice",
		Receiver: "bob",
		Body:     body,
		At:       time.Now().UTC(),
	}
}

func TestPersistWorker_StoresJobAndForwardsToIndex(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIMessageRepository(ctrl)

	job := newJob("this is clearly an english sentence about the weather")

	stored := make(chan repositories.DiskMessage, 1)
	repo.EXPECT().
		StoreMessage(gomock.Any()).
		DoAndReturn(func(msg repositories.DiskMessage) error {
			stored <- msg
			return nil
		}).
		Times(1)

	jobs := make(chan domain.PersistJob, 1)
	index := make(chan repositories.DiskMessage, 1)
	worker := NewPersistWorker(jobs, repo, index, observability.NewMonitoringManager(), logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	jobs <- job

	select {
	case msg := <-stored:
		req.Equal(job.ID, msg.ID)
		req.Equal("alice_bob", msg.Room)
		req.Equal("bob", msg.Receiver)
		req.Equal("eng", msg.Lang)
	case <-time.After(time.Second):
		req.FailNow("job was never stored")
	}

	select {
	case msg := <-index:
		req.Equal(job.ID, msg.ID)
	case <-time.After(time.Second):
		req.FailNow("message was never forwarded to the index queue")
	}
}

func TestPersistWorker_StoreFailureIsCountedAndSwallowed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIMessageRepository(ctrl)
	monitoring := observability.NewMonitoringManager()

	calls := make(chan struct{}, 2)
	repo.EXPECT().
		StoreMessage(gomock.Any()).
		DoAndReturn(func(repositories.DiskMessage) error {
			calls <- struct{}{}
			return context.DeadlineExceeded
		}).
		Times(2)

	jobs := make(chan domain.PersistJob, 2)
	worker := NewPersistWorker(jobs, repo, nil, monitoring, logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	jobs <- newJob("first")
	jobs <- newJob("second")

	// The worker keeps draining after a failure.
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			req.FailNow("worker stopped draining after a store failure")
		}
	}
	req.Eventually(func() bool {
		return monitoring.Snapshot().PersistFailures == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPersistWorker_FullIndexQueueDropsWithoutBlocking(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIMessageRepository(ctrl)
	monitoring := observability.NewMonitoringManager()

	repo.EXPECT().StoreMessage(gomock.Any()).Return(nil).Times(2)

	jobs := make(chan domain.PersistJob, 2)
	index := make(chan repositories.DiskMessage, 1) // room for one only
	worker := NewPersistWorker(jobs, repo, index, monitoring, logs.GetLoggerFromString("ERROR"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	jobs <- newJob("first")
	jobs <- newJob("second")

	req.Eventually(func() bool {
		return monitoring.Snapshot().DroppedIndexJobs == 1
	}, time.Second, 10*time.Millisecond)
	req.Len(index, 1)
}

func TestPersistWorker_StopsWhenQueueCloses(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIMessageRepository(ctrl)

	jobs := make(chan domain.PersistJob)
	worker := NewPersistWorker(jobs, repo, nil, observability.NewMonitoringManager(), logs.GetLoggerFromString("ERROR"))

	done := make(chan error, 1)
	go func() { done <- worker.Run(context.Background()) }()

	close(jobs)

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.FailNow("worker should return once the queue closes")
	}
}

// A storage layer failing on every single write must stay invisible to the
// room: the broadcast happened before the durable write was even attempted.
func TestPersistWorker_StoreFailureNeverAffectsBroadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := mocks.NewMockIMessageRepository(ctrl)
	monitoring := observability.NewMonitoringManager()
	log := logs.GetLoggerFromString("ERROR")

	repo.EXPECT().
		StoreMessage(gomock.Any()).
		Return(context.DeadlineExceeded).
		AnyTimes()

	jobs := make(chan domain.PersistJob, 8)
	worker := NewPersistWorker(jobs, repo, nil, monitoring, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	registry := runtime.NewRoomRegistry(monitoring, log)
	censor, err := moderation.NewCensor([]string{"badword"}, '*')
	req.NoError(err)
	router := runtime.NewMessageRouter(registry, censor, jobs, monitoring, log)

	key := domain.RoomKey("alice_bob")
	bob := &countingSink{n: make(chan struct{}, 64)}
	registry.Join(key, "conn-bob", bob)

	for i := 0; i < 5; i++ {
		router.Dispatch(ctx, key, bob, []byte(`{"message":"hi","sender":"alice"}`))
	}

	req.Equal(5, bob.count())
	req.Eventually(func() bool {
		return monitoring.Snapshot().PersistFailures == 5
	}, time.Second, 10*time.Millisecond)
}

type countingSink struct {
	n chan struct{}
}

func (s *countingSink) Consume(context.Context, event.Outbound) error {
	s.n <- struct{}{}
	return nil
}

func (s *countingSink) count() int { return len(s.n) }
