package workers

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/observability"
	"context"
	"log/slog"
)

type localDelivery interface {
	DeliverLocal(ctx context.Context, target contract.Target, e event.DomainEvent, except ...domain.Handle) int
}

// BackplaneWorker feeds deliveries published by other relay nodes to the
// handles connected here.
type BackplaneWorker struct {
	log       *slog.Logger
	backplane contract.IBackplane
	delivery  localDelivery
}

func NewBackplaneWorker(log *slog.Logger, backplane contract.IBackplane, delivery localDelivery) *BackplaneWorker {
	return &BackplaneWorker{log: log, backplane: backplane, delivery: delivery}
}

// Run returns once ctx is canceled. A subscription error is returned so the
// supervisor restarts the worker.
func (w *BackplaneWorker) Run(ctx context.Context) error {
	w.log.Info("Starting backplane worker")
	err := w.backplane.Subscribe(ctx, func(ctx context.Context, target contract.Target, e event.DomainEvent) {
		observability.BackplaneEvents.WithLabelValues("in").Inc()
		delivered := w.delivery.DeliverLocal(ctx, target, e)
		w.log.Debug("Remote delivery", "event", e.EventName(), "delivered", delivered)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
