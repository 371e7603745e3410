package repositories

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
)

var _ contract.IConversationStore = (*BreakerStore)(nil)

type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// BreakerStore guards a store with a circuit breaker. Once the store keeps
// failing, calls fail fast with ErrPersistence until the breaker half-opens.
// Domain outcomes (not found, conflict, invalid transition) count as successes.
type BreakerStore struct {
	next contract.IConversationStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerStore(next contract.IConversationStore, cfg BreakerConfig, log *slog.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "conversation-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsDomain(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func execute[T any](b *BreakerStore, op string, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %v", errors.ErrPersistence, op, err)
		}
		return zero, err
	}
	return res.(T), nil
}

func (b *BreakerStore) CreateMessage(ctx context.Context, sender, receiver domain.UserID,
	conversation domain.ConversationID, item domain.ItemID, content string) (domain.Message, error) {
	return execute(b, "create message", func() (domain.Message, error) {
		return b.next.CreateMessage(ctx, sender, receiver, conversation, item, content)
	})
}

func (b *BreakerStore) AppendMessage(ctx context.Context, conversation domain.ConversationID, messageID uuid.UUID) error {
	_, err := execute(b, "append message", func() (struct{}, error) {
		return struct{}{}, b.next.AppendMessage(ctx, conversation, messageID)
	})
	return err
}

func (b *BreakerStore) FindConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, bool, error) {
	type found struct {
		conv domain.Conversation
		ok   bool
	}
	res, err := execute(b, "find conversation", func() (found, error) {
		conv, ok, err := b.next.FindConversation(ctx, participants, item)
		return found{conv: conv, ok: ok}, err
	})
	return res.conv, res.ok, err
}

func (b *BreakerStore) CreateConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, error) {
	return execute(b, "create conversation", func() (domain.Conversation, error) {
		return b.next.CreateConversation(ctx, participants, item)
	})
}

func (b *BreakerStore) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	return execute(b, "get conversation", func() (domain.Conversation, error) {
		return b.next.GetConversation(ctx, id)
	})
}

func (b *BreakerStore) UpdateStatus(ctx context.Context, id domain.ConversationID, status domain.Status) (domain.Conversation, error) {
	return execute(b, "update status", func() (domain.Conversation, error) {
		return b.next.UpdateStatus(ctx, id, status)
	})
}

func (b *BreakerStore) MarkItemSwapped(ctx context.Context, item domain.ItemID) error {
	_, err := execute(b, "mark item swapped", func() (struct{}, error) {
		return struct{}{}, b.next.MarkItemSwapped(ctx, item)
	})
	return err
}

func (b *BreakerStore) IsItemSwapped(ctx context.Context, item domain.ItemID) (bool, error) {
	return execute(b, "is item swapped", func() (bool, error) {
		return b.next.IsItemSwapped(ctx, item)
	})
}

func (b *BreakerStore) GetMessages(ctx context.Context, conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	type page struct {
		messages []domain.Message
		cursor   *string
	}
	res, err := execute(b, "get messages", func() (page, error) {
		messages, next, err := b.next.GetMessages(ctx, conversation, cursor)
		return page{messages: messages, cursor: next}, err
	})
	return res.messages, res.cursor, err
}

func (b *BreakerStore) ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	return execute(b, "list conversations", func() ([]domain.Conversation, error) {
		return b.next.ListConversations(ctx, user)
	})
}
