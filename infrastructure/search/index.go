// Package search indexes message content with bluge for transcript search.
package search

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

var _ contract.IMessageIndex = (*Index)(nil)

const (
	fieldID           = "_id"
	fieldConversation = "conversation"
	fieldSender       = "sender"
	fieldContent      = "content"
	fieldCreatedAt    = "created_at"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Open opens the index stored under path. An empty path keeps it in memory,
// it is then rebuilt from nothing at every start.
func Open(path string, log *slog.Logger) (*Index, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &Index{writer: writer, log: log}, nil
}

// Index adds or replaces message. Messages are immutable, replacing only
// happens on a retried write.
func (i *Index) Index(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldConversation, string(message.ConversationID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, string(message.SenderID)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, message.Content).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldCreatedAt, message.CreatedAt).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search returns at most limit messages of conversation matching query.
func (i *Index) Search(ctx context.Context, conversation domain.ConversationID, query string, limit int) ([]domain.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = 20
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(conversation)).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent))
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []domain.SearchHit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := domain.SearchHit{ConversationID: conversation, Score: match.Score}
		var decodeErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID, decodeErr = uuid.ParseBytes(value)
			case fieldSender:
				hit.SenderID = domain.UserID(value)
			case fieldContent:
				hit.Content = string(value)
			case fieldCreatedAt:
				hit.CreatedAt, decodeErr = bluge.DecodeDateTime(value)
			}
			return decodeErr == nil
		})
		if err == nil {
			err = decodeErr
		}
		if err != nil {
			break
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (i *Index) Close() error {
	i.log.Info("Closing Bluge...")
	return i.writer.Close()
}
