// Package backplane relays deliveries between relay nodes over NATS core pub/sub.
package backplane

import (
	"campus-relay/contract"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"campus-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "relay.deliver"

var _ contract.IBackplane = (*NatsBackplane)(nil)

// Envelope is the message published for every delivery.
type Envelope struct {
	Origin string          `json:"origin"`
	Target contract.Target `json:"target"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	URL     string
	Subject string
}

// NatsBackplane publishes deliveries on a single subject. Every node
// subscribes to it and drops the envelopes it published itself.
type NatsBackplane struct {
	conn    *nats.Conn
	subject string
	origin  string
	log     *slog.Logger
	closed  atomic.Bool
}

func Connect(cfg Config, log *slog.Logger) (*NatsBackplane, error) {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	origin := uuid.NewString()
	conn, err := nats.Connect(cfg.URL,
		nats.Name("campus-relay-"+origin),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("Backplane disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("Backplane reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", errors.ErrTransport, cfg.URL, err)
	}
	log.Info("Backplane connected", "url", cfg.URL, "subject", subject, "origin", origin)
	return &NatsBackplane{conn: conn, subject: subject, origin: origin, log: log}, nil
}

func (b *NatsBackplane) Origin() string {
	return b.origin
}

func (b *NatsBackplane) Publish(_ context.Context, target contract.Target, e event.DomainEvent) error {
	if b.closed.Load() {
		return errors.ErrBackplaneClosed
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Origin: b.origin, Target: target, Event: e.EventName(), Data: data})
	if err != nil {
		return err
	}
	if err = b.conn.Publish(b.subject, payload); err != nil {
		return fmt.Errorf("%w: publish: %v", errors.ErrTransport, err)
	}
	observability.BackplaneEvents.WithLabelValues("out").Inc()
	return nil
}

// Subscribe registers deliver for envelopes of other nodes and returns.
// The subscription ends with ctx.
func (b *NatsBackplane) Subscribe(ctx context.Context, deliver func(ctx context.Context, target contract.Target, e event.DomainEvent)) error {
	if b.closed.Load() {
		return errors.ErrBackplaneClosed
	}
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var envelope Envelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			b.log.Warn("Malformed backplane envelope", "error", err)
			return
		}
		if envelope.Origin == b.origin {
			return
		}
		deliver(ctx, envelope.Target, event.Raw{Name: envelope.Event, Data: envelope.Data})
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe: %v", errors.ErrTransport, err)
	}
	if err = b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("%w: flush: %v", errors.ErrTransport, err)
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && !b.closed.Load() {
			b.log.Debug("Unsubscribe failed", "error", err)
		}
	}()
	return nil
}

// Close drains pending messages then closes the connection.
func (b *NatsBackplane) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.conn.Drain()
}
