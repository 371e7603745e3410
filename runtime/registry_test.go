package runtime

import (
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// Sink records what it consumes.
type Sink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	full   bool
	closed bool
}

func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.ErrTransport
	}
	s.events = append(s.events, e)
	return nil
}

func (s *Sink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *Sink) Named(name string) []event.DomainEvent {
	var named []event.DomainEvent
	for _, e := range s.Events() {
		if e.EventName() == name {
			named = append(named, e)
		}
	}
	return named
}

func newRouter() *RoomRouter {
	return NewRoomRouter(logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestRouter_Join_One_Room_One_Handle(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	sink := &Sink{}

	// Given a connected handle in no room
	router.Attach("h1", sink)
	req.Empty(router.Members("c1"))

	// When it joins a room
	router.Join("c1", "h1")
	router.Join("c1", "h1")

	// Then it is a member once
	req.Equal([]domain.Handle{"h1"}, router.Members("c1"))
	req.Equal([]domain.RoomID{"c1"}, router.RoomsOf("h1"))

	// And receives the room broadcasts
	req.Equal(1, router.Broadcast(context.Background(), "c1", event.Pong{}))
	req.Len(sink.Events(), 1)
}

func TestRouter_Broadcast_Skips_Excluded_And_Other_Rooms(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	sink1, sink2, sink3 := &Sink{}, &Sink{}, &Sink{}
	router.Attach("h1", sink1)
	router.Attach("h2", sink2)
	router.Attach("h3", sink3)
	router.Join("c1", "h1")
	router.Join("c1", "h2")
	router.Join("c2", "h3")

	// When the room is broadcast to, sender excluded
	delivered := router.Broadcast(context.Background(), "c1", event.Pong{}, "h1")

	// Then only the other member of the room receives it
	req.Equal(1, delivered)
	req.Empty(sink1.Events())
	req.Len(sink2.Events(), 1)
	req.Empty(sink3.Events())
}

func TestRouter_LeaveAll_Cleans_Both_Indexes(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	router.Attach("h1", &Sink{})
	router.Attach("h2", &Sink{})
	router.Join("c1", "h1")
	router.Join("c2", "h1")
	router.Join("c2", "h2")

	// When h1 leaves every room
	rooms := router.LeaveAll("h1")

	// Then no room references it and empty rooms are gone
	req.ElementsMatch([]domain.RoomID{"c1", "c2"}, rooms)
	req.Empty(router.Members("c1"))
	req.Equal([]domain.Handle{"h2"}, router.Members("c2"))
	req.Empty(router.RoomsOf("h1"))
	req.NotContains(router.rooms, domain.RoomID("c1"))
	req.NotContains(router.memberships, domain.Handle("h1"))

	// And leaving again is a no-op
	req.Empty(router.LeaveAll("h1"))
	router.Leave("c2", "h1")
}

func TestRouter_Detached_Handle_Receives_Nothing(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	sink := &Sink{}
	router.Attach("h1", sink)
	router.Join("c1", "h1")

	router.Detach("h1")
	router.Detach("h1")

	req.False(router.Send(context.Background(), "h1", event.Pong{}))
	req.Zero(router.Broadcast(context.Background(), "c1", event.Pong{}))
	req.Zero(router.Connections())
	req.Empty(sink.Events())
}

func TestRouter_Full_Sink_Does_Not_Block_Others(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	slow, fast := &Sink{full: true}, &Sink{}
	router.Attach("slow", slow)
	router.Attach("fast", fast)

	delivered := router.BroadcastAll(context.Background(), event.Pong{})

	req.Equal(1, delivered)
	req.Len(fast.Events(), 1)
}

func TestRouter_SendMany_Deduplicates(t *testing.T) {
	req := require.New(t)
	router := newRouter()
	sink := &Sink{}
	router.Attach("h1", sink)

	delivered := router.SendMany(context.Background(), []domain.Handle{"h1", "h1", "unknown"}, event.Pong{})

	req.Equal(1, delivered)
	req.Len(sink.Events(), 1)
}

func TestRouter_Concurrent_Join_Leave(t *testing.T) {
	router := newRouter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(handle domain.Handle) {
			defer wg.Done()
			router.Attach(handle, &Sink{})
			router.Join("c1", handle)
			router.Broadcast(context.Background(), "c1", event.Pong{})
			router.LeaveAll(handle)
			router.Detach(handle)
		}(domain.Handle(string(rune('a' + i%26)) + string(rune('0'+i/26))))
	}
	wg.Wait()

	require.Empty(t, router.Members("c1"))
	require.Zero(t, router.Connections())
}
