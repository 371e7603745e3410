package runtime

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/observability"
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRouter = (*RoomRouter)(nil)

type Set[T comparable] map[T]struct{}

// RoomRouter holds the delivery sink of every live handle and the handles
// subscribed to each conversation room.
// memberships is the reverse index of rooms and is updated in the same critical section.
type RoomRouter struct {
	mu          sync.RWMutex
	log         *slog.Logger
	sessions    map[domain.Handle]contract.EventSink
	rooms       map[domain.RoomID]Set[domain.Handle]
	memberships map[domain.Handle]Set[domain.RoomID]
}

func NewRoomRouter(log *slog.Logger) *RoomRouter {
	return &RoomRouter{
		log:         log,
		sessions:    make(map[domain.Handle]contract.EventSink),
		rooms:       make(map[domain.RoomID]Set[domain.Handle]),
		memberships: make(map[domain.Handle]Set[domain.RoomID]),
	}
}

// Attach registers the sink a handle is delivered through.
func (r *RoomRouter) Attach(handle domain.Handle, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[handle]; !ok {
		observability.ActiveConnections.Inc()
	}
	r.sessions[handle] = sink
}

// Detach forgets the sink of handle. Later deliveries to it are no-ops.
func (r *RoomRouter) Detach(handle domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[handle]; ok {
		observability.ActiveConnections.Dec()
	}
	delete(r.sessions, handle)
}

// Join subscribes handle to room. Joining twice changes nothing.
func (r *RoomRouter) Join(room domain.RoomID, handle domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(Set[domain.Handle])
	}
	r.rooms[room][handle] = struct{}{}

	if _, ok := r.memberships[handle]; !ok {
		r.memberships[handle] = make(Set[domain.RoomID])
	}
	r.memberships[handle][room] = struct{}{}
}

// Leave unsubscribes handle from room, no-op if it was not a member.
func (r *RoomRouter) Leave(room domain.RoomID, handle domain.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(room, handle)
}

// LeaveAll removes handle from every room it belongs to and returns those rooms.
func (r *RoomRouter) LeaveAll(handle domain.Handle) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := lo.Keys(r.memberships[handle])
	for _, room := range rooms {
		r.leave(room, handle)
	}
	return rooms
}

// leave must be called with the lock held.
// Empty sets are deleted so the maps don't grow with dead rooms.
func (r *RoomRouter) leave(room domain.RoomID, handle domain.Handle) {
	if members, ok := r.rooms[room]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.memberships[handle]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.memberships, handle)
		}
	}
}

func (r *RoomRouter) Members(room domain.RoomID) []domain.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[room])
}

func (r *RoomRouter) RoomsOf(handle domain.Handle) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.memberships[handle])
}

func (r *RoomRouter) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send delivers e to a single handle. It returns false when the handle is
// gone or its buffer is full.
func (r *RoomRouter) Send(ctx context.Context, handle domain.Handle, e event.DomainEvent) bool {
	r.mu.RLock()
	sink, ok := r.sessions[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.consume(ctx, handle, sink, e)
}

// SendMany delivers e once to each distinct handle.
func (r *RoomRouter) SendMany(ctx context.Context, handles []domain.Handle, e event.DomainEvent) int {
	delivered := 0
	for _, handle := range lo.Uniq(handles) {
		if r.Send(ctx, handle, e) {
			delivered++
		}
	}
	return delivered
}

// Broadcast delivers e to every handle joined to room, except the given ones.
// Delivery is best effort: nothing is retried or acknowledged.
func (r *RoomRouter) Broadcast(ctx context.Context, room domain.RoomID, e event.DomainEvent, except ...domain.Handle) int {
	r.mu.RLock()
	targets := make(map[domain.Handle]contract.EventSink, len(r.rooms[room]))
	for handle := range r.rooms[room] {
		if sink, ok := r.sessions[handle]; ok && !lo.Contains(except, handle) {
			targets[handle] = sink
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for handle, sink := range targets {
		if r.consume(ctx, handle, sink, e) {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll delivers e to every live handle.
func (r *RoomRouter) BroadcastAll(ctx context.Context, e event.DomainEvent) int {
	r.mu.RLock()
	targets := make(map[domain.Handle]contract.EventSink, len(r.sessions))
	for handle, sink := range r.sessions {
		targets[handle] = sink
	}
	r.mu.RUnlock()

	delivered := 0
	for handle, sink := range targets {
		if r.consume(ctx, handle, sink, e) {
			delivered++
		}
	}
	return delivered
}

// consume runs outside the lock, sinks never block.
func (r *RoomRouter) consume(ctx context.Context, handle domain.Handle, sink contract.EventSink, e event.DomainEvent) bool {
	if err := sink.Consume(ctx, e); err != nil {
		observability.DroppedDeliveries.WithLabelValues(e.EventName()).Inc()
		r.log.Warn("Delivery dropped", "handle", handle, "event", e.EventName(), "error", err)
		return false
	}
	observability.Deliveries.WithLabelValues(e.EventName()).Inc()
	return true
}
