//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

// Worker doesn't protect itself.
// Supervision, restarts, and panic recovery belong to the Supervisor.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// avoiding a manual naming method on the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one connection's outbound queue. Consume must not block
// beyond the sink's own delivery budget; a failed consume is the sink's
// problem, never the broadcaster's.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRoomRegistry maps a room key to the set of live connections subscribed
// to it. Join is idempotent, Leave of a non-member is a no-op, and
// Broadcast delivers to a snapshot of the members at call time.
// Implementations must allow concurrent activity on unrelated rooms.
type IRoomRegistry interface {
	Join(key domain.RoomKey, connID string, sink EventSink)
	Leave(key domain.RoomKey, connID string)
	Broadcast(ctx context.Context, key domain.RoomKey, e event.Outbound)
}

// IPresence propagates online/offline status through one global room.
type IPresence interface {
	Connect(ctx context.Context, connID, identity string, sink EventSink)
	Disconnect(ctx context.Context, connID, identity string)
}
