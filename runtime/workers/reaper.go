package workers

import (
	"campus-relay/domain"
	"context"
	"log/slog"
	"time"
)

type connectionTracker interface {
	Stale(idle time.Duration) []domain.Handle
	Disconnect(ctx context.Context, handle domain.Handle) bool
}

// ReaperWorker disconnects handles whose transport went silent without
// reporting a close, so presence never keeps a dead handle online.
type ReaperWorker struct {
	log         *slog.Logger
	connections connectionTracker
	interval    time.Duration
	idleTimeout time.Duration
}

func NewReaperWorker(log *slog.Logger, connections connectionTracker, interval, idleTimeout time.Duration) *ReaperWorker {
	return &ReaperWorker{log: log, connections: connections, interval: interval, idleTimeout: idleTimeout}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping reaper")
			return nil
		case <-ticker.C:
			w.reap(ctx)
		}
	}
}

func (w *ReaperWorker) reap(ctx context.Context) {
	stale := w.connections.Stale(w.idleTimeout)
	reaped := 0
	for _, handle := range stale {
		if w.connections.Disconnect(ctx, handle) {
			reaped++
		}
	}
	if reaped > 0 {
		w.log.Info("Idle connections reaped", "count", reaped, "idle_timeout", w.idleTimeout)
	}
}
