// Package runtime holds the relay core: room membership, presence
// propagation, and inbound frame routing. It contains no transport code.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
)

// room is one conversation's live membership. Each room carries its own
// lock so activity in one room never serializes another.
type room struct {
	mu      sync.RWMutex
	members map[string]contract.EventSink // connection ID -> sink
}

func (r *room) snapshot() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(r.members))
	for _, sink := range r.members {
		sinks = append(sinks, sink)
	}
	return sinks
}

// RoomRegistry is the single piece of state mutated by concurrent
// connections. The registry lock only guards the room map; membership and
// delivery are per-room.
type RoomRegistry struct {
	mu         sync.RWMutex
	rooms      map[domain.RoomKey]*room
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewRoomRegistry(monitoring *observability.MonitoringManager, log *slog.Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms:      make(map[domain.RoomKey]*room),
		monitoring: monitoring,
		log:        log,
	}
}

// Join subscribes a connection to a room, creating the room on the fly.
// Joining twice with the same connection ID is idempotent.
//
// The registry lock is held across the member insert. Leave's GC needs the
// write lock to delete a room, so it can never observe the room empty and
// remove it between our lookup and our insert, which would strand the
// joiner on an object no Broadcast can reach.
func (r *RoomRegistry) Join(key domain.RoomKey, connID string, sink contract.EventSink) {
	r.mu.RLock()
	if rm, ok := r.rooms[key]; ok {
		rm.mu.Lock()
		rm.members[connID] = sink
		rm.mu.Unlock()
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.mu.Lock()
	rm, ok := r.rooms[key]
	if !ok {
		rm = &room{members: make(map[string]contract.EventSink)}
		r.rooms[key] = rm
	}
	rm.mu.Lock()
	rm.members[connID] = sink
	rm.mu.Unlock()
	r.mu.Unlock()
}

// Leave removes a connection from a room. Leaving a room the connection is
// not a member of is a no-op. Empty rooms are garbage-collected; a later
// Join recreates them transparently.
func (r *RoomRegistry) Leave(key domain.RoomKey, connID string) {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.members, connID)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		// Re-check under the registry lock: a concurrent Join may have
		// repopulated the room between the two critical sections.
		rm.mu.RLock()
		if len(rm.members) == 0 && r.rooms[key] == rm {
			delete(r.rooms, key)
		}
		rm.mu.RUnlock()
		r.mu.Unlock()
	}
}

// Broadcast delivers the event to a snapshot of the room's members at call
// time. A member whose sink fails is skipped, never aborting delivery to
// the rest.
func (r *RoomRegistry) Broadcast(ctx context.Context, key domain.RoomKey, e event.Outbound) {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return
	}

	for _, sink := range rm.snapshot() {
		if err := sink.Consume(ctx, e); err != nil {
			r.monitoring.IncrDeliveryFailures()
			r.log.Debug(fmt.Sprintf("Dropped event for one member of %s", key), "error", err)
			continue
		}
		r.monitoring.IncrEventsDelivered()
	}
}

// Members reports the current member count of a room, for diagnostics.
func (r *RoomRegistry) Members(key domain.RoomKey) int {
	r.mu.RLock()
	rm, ok := r.rooms[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}
