package runtime

import (
	"context"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// statusRoom is the single well-known room every status connection joins.
const statusRoom = domain.RoomKey("user_status")

// PresenceService propagates online/offline events through one global room.
// Each connection announces independently: two connections from the same
// identity produce two online events, and aggregation is left to consumers.
type PresenceService struct {
	registry contract.IRoomRegistry
}

func NewPresenceService(registry contract.IRoomRegistry) *PresenceService {
	return &PresenceService{registry: registry}
}

// Connect joins the global room and announces the identity online. The
// joining connection is a member by the time the broadcast runs, so it
// receives its own online event.
func (p *PresenceService) Connect(ctx context.Context, connID, identity string, sink contract.EventSink) {
	p.registry.Join(statusRoom, connID, sink)
	p.registry.Broadcast(ctx, statusRoom, event.NewPresence(identity, event.StatusOnline))
}

// Disconnect announces the identity offline and then leaves. The
// broadcast-then-leave order guarantees the departing connection cannot
// race its own offline notice.
func (p *PresenceService) Disconnect(ctx context.Context, connID, identity string) {
	p.registry.Broadcast(ctx, statusRoom, event.NewPresence(identity, event.StatusOffline))
	p.registry.Leave(statusRoom, connID)
}
