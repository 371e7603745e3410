package services

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type IChatService interface {
	RequestChat(ctx context.Context, item domain.ItemID, buyer, seller domain.UserID) (domain.Conversation, error)
	GetTranscript(ctx context.Context, id domain.ConversationID, cursor *string) (domain.Conversation, []domain.Message, *string, error)
	ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
	SearchTranscript(ctx context.Context, id domain.ConversationID, query string, limit int) ([]domain.SearchHit, error)
}

type ChatService struct {
	store contract.IConversationStore
	index contract.IMessageIndex
	log   *slog.Logger
}

// NewChatService builds the service. index may be nil, searches then fail with ErrNotFound.
func NewChatService(store contract.IConversationStore, index contract.IMessageIndex, log *slog.Logger) *ChatService {
	return &ChatService{store: store, index: index, log: log}
}

// RequestChat opens a pending conversation between a buyer and the seller of an item.
// A second request for the same item and pair fails with a ConflictError
// naming the existing conversation so the caller can redirect to it.
func (s *ChatService) RequestChat(ctx context.Context, item domain.ItemID, buyer, seller domain.UserID) (domain.Conversation, error) {
	if item == "" {
		return domain.Conversation{}, fmt.Errorf("%w: item is required", errors.ErrValidation)
	}
	participants, err := domain.NewParticipants(buyer, seller)
	if err != nil {
		return domain.Conversation{}, err
	}

	// 1. Cheap lookup first, most duplicate requests stop here
	existing, found, err := s.store.FindConversation(ctx, participants, item)
	if err != nil {
		return domain.Conversation{}, wrapStore("find conversation", err)
	}
	if found {
		return domain.Conversation{}, &errors.ConflictError{ExistingID: string(existing.ID)}
	}

	// 2. The store re-checks uniqueness atomically, a concurrent request still conflicts
	conv, err := s.store.CreateConversation(ctx, participants, item)
	if err != nil {
		return domain.Conversation{}, wrapStore("create conversation", err)
	}
	s.log.Info("Chat requested", "conversation_id", conv.ID, "item_id", item, "buyer", buyer, "seller", seller)
	return conv, nil
}

// GetTranscript returns a conversation and one page of its messages, oldest first.
func (s *ChatService) GetTranscript(ctx context.Context, id domain.ConversationID, cursor *string) (domain.Conversation, []domain.Message, *string, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, nil, nil, wrapStore("get conversation", err)
	}
	messages, next, err := s.store.GetMessages(ctx, id, cursor)
	if err != nil {
		return domain.Conversation{}, nil, nil, wrapStore("get messages", err)
	}
	return conv, messages, next, nil
}

func (s *ChatService) ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", errors.ErrValidation)
	}
	conversations, err := s.store.ListConversations(ctx, user)
	if err != nil {
		return nil, wrapStore("list conversations", err)
	}
	return conversations, nil
}

// SearchTranscript finds the messages of a conversation whose content matches query.
func (s *ChatService) SearchTranscript(ctx context.Context, id domain.ConversationID, query string, limit int) ([]domain.SearchHit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrNotFound)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", errors.ErrValidation)
	}
	if _, err := s.store.GetConversation(ctx, id); err != nil {
		return nil, wrapStore("get conversation", err)
	}
	hits, err := s.index.Search(ctx, id, query, limit)
	if err != nil {
		return nil, wrapStore("search transcript", err)
	}
	return hits, nil
}

func wrapStore(op string, err error) error {
	if errors.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", errors.ErrPersistence, op, err)
}
