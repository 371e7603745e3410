package repositories

import (
	"campus-relay/domain"
	"campus-relay/errors"
	"campus-relay/mocks"
	"context"
	goerrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBreakerStore_Opens_After_Failures(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIConversationStore(ctrl)
	store := NewBreakerStore(next, BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute},
		logs.GetLoggerFromLevel(slog.LevelDebug))
	disk := goerrors.New("disk unavailable")

	// Given two consecutive store failures
	next.EXPECT().GetConversation(gomock.Any(), domain.ConversationID("c1")).Return(domain.Conversation{}, disk).Times(2)
	for i := 0; i < 2; i++ {
		_, err := store.GetConversation(context.Background(), "c1")
		req.ErrorIs(err, disk)
	}

	// When another call arrives
	_, err := store.GetConversation(context.Background(), "c1")

	// Then it fails fast without reaching the store
	req.ErrorIs(err, errors.ErrPersistence)
	req.Equal("open", store.State())
}

func TestBreakerStore_Domain_Errors_Keep_It_Closed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIConversationStore(ctrl)
	store := NewBreakerStore(next, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute},
		logs.GetLoggerFromLevel(slog.LevelDebug))

	next.EXPECT().GetConversation(gomock.Any(), gomock.Any()).Return(domain.Conversation{}, errors.ErrNotFound).Times(3)

	for i := 0; i < 3; i++ {
		_, err := store.GetConversation(context.Background(), "c1")
		req.ErrorIs(err, errors.ErrNotFound)
	}
	req.Equal("closed", store.State())
}

func TestBreakerStore_Passes_Results_Through(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	next := mocks.NewMockIConversationStore(ctrl)
	store := NewBreakerStore(next, BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Minute},
		logs.GetLoggerFromLevel(slog.LevelDebug))
	conv := domain.Conversation{ID: "c1", ItemID: "i1"}

	next.EXPECT().FindConversation(gomock.Any(), gomock.Any(), domain.ItemID("i1")).Return(conv, true, nil)
	next.EXPECT().IsItemSwapped(gomock.Any(), domain.ItemID("i1")).Return(true, nil)

	found, ok, err := store.FindConversation(context.Background(), [2]domain.Participant{}, "i1")
	req.NoError(err)
	req.True(ok)
	req.Equal(conv, found)

	swapped, err := store.IsItemSwapped(context.Background(), "i1")
	req.NoError(err)
	req.True(swapped)
}
