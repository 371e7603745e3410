package runtime

import (
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newLifecycle() (*Lifecycle, *RoomRouter, *PresenceRegistry) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	router := NewRoomRouter(log)
	presence := NewPresenceRegistry()
	delivery := NewDelivery(log, router, presence, nil)
	return NewLifecycle(log, presence, router, delivery), router, presence
}

func statuses(sink *Sink, user domain.UserID) []domain.Presence {
	var out []domain.Presence
	for _, e := range sink.Named(event.NameUserStatusChanged) {
		if changed := e.(event.UserStatusChanged); changed.UserID == user {
			out = append(out, changed.Status)
		}
	}
	return out
}

func TestLifecycle_Offline_Only_With_The_Last_Handle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	lifecycle, _, presence := newLifecycle()
	watcher := &Sink{}
	lifecycle.Connect(watcher)

	// Given b1 on a laptop and a phone
	laptop := lifecycle.Connect(&Sink{})
	phone := lifecycle.Connect(&Sink{})
	req.NoError(lifecycle.Online(ctx, laptop, "b1"))
	req.NoError(lifecycle.Online(ctx, phone, "b1"))
	req.Equal([]domain.Presence{domain.Online}, statuses(watcher, "b1"))

	// When the phone goes away, b1 is still reachable on the laptop
	req.True(lifecycle.Disconnect(ctx, phone))
	handle, ok := presence.Lookup("b1")
	req.True(ok)
	req.Equal(laptop, handle)
	req.Equal([]domain.Presence{domain.Online}, statuses(watcher, "b1"))

	// When the laptop goes away too, b1 is offline
	req.True(lifecycle.Disconnect(ctx, laptop))
	req.Equal([]domain.Presence{domain.Online, domain.Offline}, statuses(watcher, "b1"))
}

func TestLifecycle_Disconnect_Runs_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	lifecycle, router, _ := newLifecycle()
	watcher := &Sink{}
	lifecycle.Connect(watcher)
	handle := lifecycle.Connect(&Sink{})
	req.NoError(lifecycle.Online(ctx, handle, "b1"))
	router.Join("c1", handle)

	// When the transport reports the disconnect several times concurrently
	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- lifecycle.Disconnect(ctx, handle)
		}()
	}
	wg.Wait()
	close(results)

	// Then only one call had an effect
	effective := 0
	for ok := range results {
		if ok {
			effective++
		}
	}
	req.Equal(1, effective)
	req.Equal([]domain.Presence{domain.Online, domain.Offline}, statuses(watcher, "b1"))
	req.Empty(router.Members("c1"))
	req.Equal(1, lifecycle.Connections())
}

func TestLifecycle_Rebinding_A_Handle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	lifecycle, _, presence := newLifecycle()
	watcher := &Sink{}
	lifecycle.Connect(watcher)
	handle := lifecycle.Connect(&Sink{})

	// Given the handle online as b1
	req.NoError(lifecycle.Online(ctx, handle, "b1"))

	// When it says online as s1
	req.NoError(lifecycle.Online(ctx, handle, "s1"))

	// Then b1 went offline and s1 came online
	req.Equal([]domain.Presence{domain.Online, domain.Offline}, statuses(watcher, "b1"))
	req.Equal([]domain.Presence{domain.Online}, statuses(watcher, "s1"))
	_, ok := presence.Lookup("b1")
	req.False(ok)
}

func TestLifecycle_Online_On_A_Closed_Handle(t *testing.T) {
	lifecycle, _, _ := newLifecycle()
	handle := lifecycle.Connect(&Sink{})
	lifecycle.Disconnect(context.Background(), handle)

	err := lifecycle.Online(context.Background(), handle, "b1")

	require.ErrorIs(t, err, errors.ErrTransport)
}

func TestLifecycle_Stale_Handles(t *testing.T) {
	req := require.New(t)
	lifecycle, _, _ := newLifecycle()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lifecycle.now = func() time.Time { return now }

	idle := lifecycle.Connect(&Sink{})
	active := lifecycle.Connect(&Sink{})

	now = now.Add(2 * time.Minute)
	lifecycle.Touch(active)

	req.Equal([]domain.Handle{idle}, lifecycle.Stale(time.Minute))
}

func TestLifecycle_Disconnect_Closes_The_Transport(t *testing.T) {
	req := require.New(t)
	lifecycle, _, _ := newLifecycle()
	sink := &Sink{}
	handle := lifecycle.Connect(sink)

	req.True(lifecycle.Disconnect(context.Background(), handle))

	req.True(sink.Closed())
	req.ErrorIs(lifecycle.Join("c1", handle), errors.ErrTransport)
}

func TestLifecycle_Online_Racing_Disconnect(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	lifecycle, router, presence := newLifecycle()

	for i := 0; i < 100; i++ {
		handle := lifecycle.Connect(&Sink{})

		// When online and a reap hit the same handle concurrently
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_ = lifecycle.Online(ctx, handle, "b1")
		}()
		go func() {
			defer wg.Done()
			_ = lifecycle.Join("c1", handle)
		}()
		go func() {
			defer wg.Done()
			lifecycle.Disconnect(ctx, handle)
		}()
		wg.Wait()

		// Then the dead handle is left nowhere
		_, ok := presence.UserOf(handle)
		req.False(ok)
		req.Empty(router.RoomsOf(handle))
	}
	_, ok := presence.Lookup("b1")
	req.False(ok)
	req.Empty(router.Members("c1"))
}
