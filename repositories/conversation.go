package repositories

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// maxConflictRetries bounds optimistic retries when two transactions touch
// the same conversation document.
const maxConflictRetries = 10

var _ contract.IConversationStore = ConversationRepository{}

// ConversationRepository stores conversations, messages and item swap state in BadgerDB.
// Keys:
//
//	conv:{id}                       conversation document
//	convidx:{item}{buyer}{seller}   conversation id, one per item and participant pair
//	userconv:{user}{id}             conversations of a user
//	msg:{id}:{ts}:{uuid}            message documents
//	msgid:{uuid}                    message key by id
//	item:{id}                       item swap state
//
// Ids inside secondary keys are written as "{len}:{id}:" so that ids holding a
// colon cannot collide.
type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	now           func() time.Time
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, limitMessages *int) ConversationRepository {
	return ConversationRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type diskItem struct {
	Swapped   bool      `json:"swapped"`
	SwappedAt time.Time `json:"swappedAt"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte("conv:" + string(id))
}

func conversationIndexKey(participants [2]domain.Participant, item domain.ItemID) []byte {
	var buyer, seller domain.UserID
	for _, p := range participants {
		switch p.Role {
		case domain.RoleBuyer:
			buyer = p.UserID
		case domain.RoleSeller:
			seller = p.UserID
		}
	}
	return []byte("convidx:" + component(string(item)) + component(string(buyer)) + component(string(seller)))
}

func userConversationPrefix(user domain.UserID) string {
	return "userconv:" + component(string(user))
}

func userConversationKey(user domain.UserID, id domain.ConversationID) []byte {
	return []byte(userConversationPrefix(user) + string(id))
}

func component(id string) string {
	return fmt.Sprintf("%d:%s:", len(id), id)
}

func itemKey(item domain.ItemID) []byte {
	return []byte("item:" + string(item))
}

// FindConversation looks a conversation up by item and participant pair.
func (r ConversationRepository) FindConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, false, err
	}
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		id, err := r.readIndex(txn, participants, item)
		if err != nil {
			return err
		}
		conv, err = r.readConversation(txn, id)
		return err
	})
	if errors.Is(err, errors.ErrNotFound) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

// CreateConversation opens a pending conversation. The uniqueness check and
// the write happen in the same transaction: a duplicate request returns a
// ConflictError carrying the existing conversation id.
func (r ConversationRepository) CreateConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.update(ctx, func(txn *badger.Txn) error {
		existing, err := r.readIndex(txn, participants, item)
		if err == nil {
			return &errors.ConflictError{ExistingID: string(existing)}
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		conv = domain.NewConversation(item, participants, r.now())
		if err = txn.Set(conversationIndexKey(participants, item), []byte(conv.ID)); err != nil {
			return err
		}
		for _, p := range participants {
			if err = txn.Set(userConversationKey(p.UserID, conv.ID), nil); err != nil {
				return err
			}
		}
		return r.writeConversation(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r ConversationRepository) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = r.readConversation(txn, id)
		return err
	})
	return conv, err
}

// UpdateStatus applies a status transition. The transition is checked again
// inside the transaction so two concurrent decisions cannot both win.
func (r ConversationRepository) UpdateStatus(ctx context.Context, id domain.ConversationID, status domain.Status) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.update(ctx, func(txn *badger.Txn) error {
		var err error
		conv, err = r.readConversation(txn, id)
		if err != nil {
			return err
		}
		if !conv.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, conv.Status, status)
		}
		conv.Status = status
		conv.UpdatedAt = r.now()
		return r.writeConversation(txn, conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// MarkItemSwapped flags the item of an accepted conversation. Marking twice is harmless.
func (r ConversationRepository) MarkItemSwapped(ctx context.Context, item domain.ItemID) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(itemKey(item)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		bytes, err := json.Marshal(diskItem{Swapped: true, SwappedAt: r.now()})
		if err != nil {
			return err
		}
		return txn.Set(itemKey(item), bytes)
	})
}

func (r ConversationRepository) IsItemSwapped(ctx context.Context, item domain.ItemID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var state diskItem
	err := r.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(item))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return state.Swapped, err
}

// ListConversations returns every conversation user takes part in.
func (r ConversationRepository) ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := userConversationPrefix(user)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.ConversationID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ConversationID(it.Item().Key()[len(prefixStr):]))
		}
		for _, id := range ids {
			conv, err := r.readConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	return conversations, err
}

// ScanConversations calls fn for every stored conversation in key order.
// Returning an error from fn stops the scan.
func (r ConversationRepository) ScanConversations(ctx context.Context, fn func(domain.Conversation) error) error {
	return r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("conv:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var conv domain.Conversation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &conv)
			}); err != nil {
				return fmt.Errorf("key %s: %w", it.Item().Key(), err)
			}
			if err := fn(conv); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r ConversationRepository) readIndex(txn *badger.Txn, participants [2]domain.Participant, item domain.ItemID) (domain.ConversationID, error) {
	entry, err := txn.Get(conversationIndexKey(participants, item))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: conversation for item %s", errors.ErrNotFound, item)
	}
	if err != nil {
		return "", err
	}
	value, err := entry.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return domain.ConversationID(value), nil
}

func (r ConversationRepository) readConversation(txn *badger.Txn, id domain.ConversationID) (domain.Conversation, error) {
	var conv domain.Conversation
	entry, err := txn.Get(conversationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return conv, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return conv, err
	}
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	})
	return conv, err
}

func (r ConversationRepository) writeConversation(txn *badger.Txn, conv domain.Conversation) error {
	bytes, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(conversationKey(conv.ID), bytes)
}

// update runs fn in a read-write transaction, retrying when Badger detects
// a conflicting concurrent commit.
func (r ConversationRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}
