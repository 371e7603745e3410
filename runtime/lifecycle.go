package runtime

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"campus-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type connection struct {
	sink        contract.EventSink
	connectedAt time.Time
	lastSeen    time.Time
}

// Lifecycle owns connection handles from connect to disconnect.
// Presence and rooms only ever hold handles as lookup keys.
type Lifecycle struct {
	mu          sync.Mutex
	log         *slog.Logger
	presence    contract.IPresence
	router      contract.IRouter
	delivery    *Delivery
	connections map[domain.Handle]*connection
	now         func() time.Time
}

func NewLifecycle(log *slog.Logger, presence contract.IPresence, router contract.IRouter, delivery *Delivery) *Lifecycle {
	return &Lifecycle{
		log:         log,
		presence:    presence,
		router:      router,
		delivery:    delivery,
		connections: make(map[domain.Handle]*connection),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Connect allocates a handle for a new connection and attaches its sink.
// Presence and rooms stay empty until the client says online or joins.
func (l *Lifecycle) Connect(sink contract.EventSink) domain.Handle {
	handle := domain.Handle(uuid.NewString())
	at := l.now()

	l.mu.Lock()
	l.connections[handle] = &connection{sink: sink, connectedAt: at, lastSeen: at}
	l.router.Attach(handle, sink)
	l.mu.Unlock()

	l.log.Debug("Connection opened", "handle", handle)
	return handle
}

// Online binds handle to user. Everybody learns about it when this is the
// user's first live handle.
func (l *Lifecycle) Online(ctx context.Context, handle domain.Handle, user domain.UserID) error {
	// Presence changes under the lock: a concurrent Disconnect either removes
	// the binding or has already refused the handle.
	l.mu.Lock()
	if _, ok := l.connections[handle]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: handle %s is closed", errors.ErrTransport, handle)
	}
	var previous domain.UserID
	var previousGone bool
	if bound, ok := l.presence.UserOf(handle); ok && bound != user {
		_, previousGone, _ = l.presence.RemoveHandle(handle)
		previous = bound
	}
	first := l.presence.SetOnline(user, handle)
	l.mu.Unlock()

	if previousGone {
		l.wentOffline(ctx, previous)
	}
	if first {
		observability.OnlineUsers.Inc()
		l.delivery.Deliver(ctx, contract.Target{All: true},
			event.UserStatusChanged{UserID: user, Status: domain.Online})
	}
	l.log.Debug("User online", "user_id", user, "handle", handle)
	return nil
}

// Disconnect tears a connection down. The transport may report a disconnect
// more than once: only the first call for a handle has an effect.
func (l *Lifecycle) Disconnect(ctx context.Context, handle domain.Handle) bool {
	l.mu.Lock()
	c, ok := l.connections[handle]
	if !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.connections, handle)
	rooms := l.router.LeaveAll(handle)
	l.router.Detach(handle)
	user, last, ok := l.presence.RemoveHandle(handle)
	l.mu.Unlock()

	c.sink.Close()
	if ok && last {
		l.wentOffline(ctx, user)
	}
	l.log.Debug("Connection closed", "handle", handle, "user_id", user, "rooms", len(rooms))
	return true
}

// Touch records client activity on handle.
func (l *Lifecycle) Touch(handle domain.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.connections[handle]; ok {
		c.lastSeen = l.now()
	}
}

// Stale lists handles without activity for longer than idle.
func (l *Lifecycle) Stale(idle time.Duration) []domain.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := l.now().Add(-idle)
	var stale []domain.Handle
	for handle, c := range l.connections {
		if c.lastSeen.Before(deadline) {
			stale = append(stale, handle)
		}
	}
	return stale
}

// Join puts an open handle in room.
func (l *Lifecycle) Join(room domain.RoomID, handle domain.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.connections[handle]; !ok {
		return fmt.Errorf("%w: handle %s is closed", errors.ErrTransport, handle)
	}
	l.router.Join(room, handle)
	return nil
}

func (l *Lifecycle) Connections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connections)
}

func (l *Lifecycle) wentOffline(ctx context.Context, user domain.UserID) {
	observability.OnlineUsers.Dec()
	l.delivery.Deliver(ctx, contract.Target{All: true},
		event.UserStatusChanged{UserID: user, Status: domain.Offline})
}
