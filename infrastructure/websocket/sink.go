package websocket

import (
	"campus-relay/domain/event"
	"campus-relay/errors"
	"context"
	"fmt"
	"sync"
)

// Sink buffers encoded frames for the write pump of one connection.
// Consume never blocks: a slow client loses events instead of stalling the relay.
type Sink struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func NewSink(bufferSize int) *Sink {
	return &Sink{frames: make(chan []byte, bufferSize), done: make(chan struct{})}
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	frame, err := event.Encode(e)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return fmt.Errorf("%w: connection closed", errors.ErrTransport)
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("%w: send buffer full", errors.ErrTransport)
	}
}

// Close stops accepting frames. Safe to call more than once.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Sink) Frames() <-chan []byte {
	return s.frames
}

func (s *Sink) Done() <-chan struct{} {
	return s.done
}
