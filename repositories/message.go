package repositories

import (
	"campus-relay/domain"
	"campus-relay/errors"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type DiskMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation"`
	ItemID         string    `json:"item"`
	Author         string    `json:"author"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	At             time.Time `json:"at"`
}

func messagePrefix(conversation domain.ConversationID) string {
	return fmt.Sprintf("msg:%s:", conversation)
}

// messageKey is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}".
// Transcript order comes from the conversation, not from the key.
func messageKey(m DiskMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix(domain.ConversationID(m.ConversationID)), m.At.UnixNano(), m.ID))
}

// CreateMessage persists a new immutable message. It is not yet part of the
// conversation transcript until AppendMessage references it.
func (r ConversationRepository) CreateMessage(ctx context.Context, sender, receiver domain.UserID,
	conversation domain.ConversationID, item domain.ItemID, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	message := DiskMessage{
		ID:             uuid.New(),
		ConversationID: string(conversation),
		ItemID:         string(item),
		Author:         string(sender),
		Receiver:       string(receiver),
		Content:        content,
		At:             r.now(),
	}
	bytes, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message), bytes); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), messageKey(message))
	})
	if err != nil {
		return domain.Message{}, err
	}
	return toMessage(message), nil
}

// AppendMessage adds a stored message to the ordered transcript of its conversation.
func (r ConversationRepository) AppendMessage(ctx context.Context, conversation domain.ConversationID, messageID uuid.UUID) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(messageIndexKey(messageID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: message %s", errors.ErrNotFound, messageID)
			}
			return err
		}
		conv, err := r.readConversation(txn, conversation)
		if err != nil {
			return err
		}
		if lo.Contains(conv.MessageIDs, messageID) {
			return nil
		}
		conv.MessageIDs = append(conv.MessageIDs, messageID)
		conv.UpdatedAt = r.now()
		return r.writeConversation(txn, conv)
	})
}

// GetMessages pages backwards over the transcript of a conversation, which is
// the ordered list of appended message ids. Stored messages that were never
// appended are not part of it. The cursor is the id of the oldest message of
// the previous page; a nil next cursor means the page reached the first message.
func (r ConversationRepository) GetMessages(ctx context.Context, conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var messages []domain.Message
	var next *string
	err := r.db.View(func(txn *badger.Txn) error {
		conv, err := r.readConversation(txn, conversation)
		if err != nil {
			return err
		}
		end := len(conv.MessageIDs)
		if cursor != nil {
			before, err := uuid.Parse(*cursor)
			if err != nil {
				return fmt.Errorf("%w: cursor %q", errors.ErrValidation, *cursor)
			}
			if end = slices.Index(conv.MessageIDs, before); end < 0 {
				return fmt.Errorf("%w: cursor %s is not in conversation %s", errors.ErrValidation, before, conversation)
			}
		}
		start := 0
		if r.limitMessages != nil && end-start > *r.limitMessages {
			start = end - *r.limitMessages
			r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
		}

		messages = make([]domain.Message, 0, end-start)
		for _, id := range conv.MessageIDs[start:end] {
			message, err := r.readMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		if start > 0 {
			next = lo.ToPtr(conv.MessageIDs[start].String())
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, next, nil
}

func (r ConversationRepository) readMessage(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	entry, err := txn.Get(messageIndexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	key, err := entry.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	if entry, err = txn.Get(key); err != nil {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	var disk DiskMessage
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	})
	return toMessage(disk), err
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func toMessage(m DiskMessage) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: domain.ConversationID(m.ConversationID),
		ItemID:         domain.ItemID(m.ItemID),
		SenderID:       domain.UserID(m.Author),
		ReceiverID:     domain.UserID(m.Receiver),
		Content:        m.Content,
		CreatedAt:      m.At,
	}
}
