package runtime

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// Delivery resolves a target into local handles and shares it with the other
// nodes when a backplane is configured.
type Delivery struct {
	log       *slog.Logger
	router    contract.IRouter
	presence  contract.IPresence
	backplane contract.IBackplane
}

func NewDelivery(log *slog.Logger, router contract.IRouter, presence contract.IPresence, backplane contract.IBackplane) *Delivery {
	return &Delivery{log: log, router: router, presence: presence, backplane: backplane}
}

// Deliver sends e to the local handles of target, then publishes it for the
// other nodes. Handles listed in except are skipped locally.
func (d *Delivery) Deliver(ctx context.Context, target contract.Target, e event.DomainEvent, except ...domain.Handle) int {
	delivered := d.DeliverLocal(ctx, target, e, except...)
	if d.backplane == nil {
		return delivered
	}
	if err := d.backplane.Publish(ctx, target, e); err != nil {
		// Remote nodes miss this one, their clients reconcile on next fetch.
		d.log.Warn("Backplane publish failed", "event", e.EventName(), "error", err)
	}
	return delivered
}

// DeliverLocal only reaches handles owned by this process.
func (d *Delivery) DeliverLocal(ctx context.Context, target contract.Target, e event.DomainEvent, except ...domain.Handle) int {
	if target.All {
		return d.router.BroadcastAll(ctx, e)
	}
	var handles []domain.Handle
	for _, user := range target.Users {
		handles = append(handles, d.presence.Handles(user)...)
	}
	if target.Room != "" {
		handles = append(handles, d.router.Members(target.Room)...)
	}
	handles = lo.Without(lo.Uniq(handles), except...)
	return d.router.SendMany(ctx, handles, e)
}

// Reply answers the originating connection only. Never published.
func (d *Delivery) Reply(ctx context.Context, handle domain.Handle, e event.DomainEvent) bool {
	return d.router.Send(ctx, handle, e)
}
