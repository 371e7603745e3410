package services

import (
	"campus-relay/domain"
	"campus-relay/errors"
	"campus-relay/mocks"
	"context"
	goerrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_RequestChat(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	mockStore := mocks.NewMockIConversationStore(ctrl)
	svc := NewChatService(mockStore, nil, slog.Default())
	participants, err := domain.NewParticipants("b1", "s1")
	require.NoError(t, err)

	t.Run("should open a pending conversation", func(t *testing.T) {
		req := require.New(t)
		created := domain.NewConversation("i1", participants, time.Now())

		mockStore.EXPECT().FindConversation(gomock.Any(), participants, domain.ItemID("i1")).
			Return(domain.Conversation{}, false, nil)
		mockStore.EXPECT().CreateConversation(gomock.Any(), participants, domain.ItemID("i1")).
			Return(created, nil)

		conv, err := svc.RequestChat(ctx, "i1", "b1", "s1")
		req.NoError(err)
		req.Equal(created.ID, conv.ID)
		req.Equal(domain.StatusPending, conv.Status)
	})

	t.Run("should point to the existing conversation", func(t *testing.T) {
		req := require.New(t)
		existing := domain.NewConversation("i1", participants, time.Now())

		mockStore.EXPECT().FindConversation(gomock.Any(), participants, domain.ItemID("i1")).
			Return(existing, true, nil)
		mockStore.EXPECT().CreateConversation(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.RequestChat(ctx, "i1", "b1", "s1")
		req.ErrorIs(err, errors.ErrConflict)
		id, ok := errors.ExistingConversation(err)
		req.True(ok)
		req.Equal(string(existing.ID), id)
	})

	t.Run("should keep the conflict raised by a concurrent create", func(t *testing.T) {
		req := require.New(t)

		mockStore.EXPECT().FindConversation(gomock.Any(), participants, domain.ItemID("i1")).
			Return(domain.Conversation{}, false, nil)
		mockStore.EXPECT().CreateConversation(gomock.Any(), participants, domain.ItemID("i1")).
			Return(domain.Conversation{}, &errors.ConflictError{ExistingID: "c9"})

		_, err := svc.RequestChat(ctx, "i1", "b1", "s1")
		id, ok := errors.ExistingConversation(err)
		req.True(ok)
		req.Equal("c9", id)
	})

	t.Run("should refuse to chat with oneself", func(t *testing.T) {
		req := require.New(t)
		mockStore.EXPECT().FindConversation(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.RequestChat(ctx, "i1", "s1", "s1")
		req.ErrorIs(err, errors.ErrValidation)

		_, err = svc.RequestChat(ctx, "", "b1", "s1")
		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should classify store failures", func(t *testing.T) {
		req := require.New(t)
		mockStore.EXPECT().FindConversation(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Conversation{}, false, goerrors.New("disk full"))

		_, err := svc.RequestChat(ctx, "i1", "b1", "s1")
		req.ErrorIs(err, errors.ErrPersistence)
	})
}

func TestChatService_GetTranscript(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockIConversationStore(ctrl)
	svc := NewChatService(mockStore, nil, slog.Default())
	participants, err := domain.NewParticipants("b1", "s1")
	req.NoError(err)
	conv := domain.NewConversation("i1", participants, time.Now())
	message := domain.Message{ID: uuid.New(), ConversationID: conv.ID, Content: "hi"}
	cursor := "older"

	mockStore.EXPECT().GetConversation(gomock.Any(), conv.ID).Return(conv, nil)
	mockStore.EXPECT().GetMessages(gomock.Any(), conv.ID, nil).Return([]domain.Message{message}, &cursor, nil)

	fetched, messages, next, err := svc.GetTranscript(context.Background(), conv.ID, nil)
	req.NoError(err)
	req.Equal(conv.ID, fetched.ID)
	req.Equal([]domain.Message{message}, messages)
	req.Equal(&cursor, next)

	mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID("missing")).
		Return(domain.Conversation{}, errors.ErrNotFound)
	_, _, _, err = svc.GetTranscript(context.Background(), "missing", nil)
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestChatService_ListConversations(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockIConversationStore(ctrl)
	svc := NewChatService(mockStore, nil, slog.Default())

	mockStore.EXPECT().ListConversations(gomock.Any(), domain.UserID("b1")).
		Return([]domain.Conversation{{ID: "c1"}}, nil)

	conversations, err := svc.ListConversations(context.Background(), "b1")
	req.NoError(err)
	req.Len(conversations, 1)

	_, err = svc.ListConversations(context.Background(), "")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_SearchTranscript(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockIConversationStore(ctrl)
	mockIndex := mocks.NewMockIMessageIndex(ctrl)
	svc := NewChatService(mockStore, mockIndex, slog.Default())
	hits := []domain.SearchHit{{MessageID: uuid.New(), Content: "bike"}}

	// Given an existing conversation
	mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID("c1")).Return(domain.Conversation{ID: "c1"}, nil)
	mockIndex.EXPECT().Search(gomock.Any(), domain.ConversationID("c1"), "bike", 5).Return(hits, nil)

	// When searching it
	found, err := svc.SearchTranscript(context.Background(), "c1", "bike", 5)

	// Then the index answers
	req.NoError(err)
	req.Equal(hits, found)

	// A blank query never reaches the store
	_, err = svc.SearchTranscript(context.Background(), "c1", "  ", 5)
	req.ErrorIs(err, errors.ErrValidation)

	// An unknown conversation is not searched
	mockStore.EXPECT().GetConversation(gomock.Any(), domain.ConversationID("missing")).Return(domain.Conversation{}, errors.ErrNotFound)
	_, err = svc.SearchTranscript(context.Background(), "missing", "bike", 5)
	req.ErrorIs(err, errors.ErrNotFound)

	// Without an index search is unavailable
	_, err = NewChatService(mockStore, nil, slog.Default()).SearchTranscript(context.Background(), "c1", "bike", 5)
	req.ErrorIs(err, errors.ErrNotFound)
}
