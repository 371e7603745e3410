package runtime

import (
	"campus-relay/contract"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/errors"
	"campus-relay/moderation"
	"campus-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Dispatcher turns inbound commands into store calls and outbound deliveries.
// Commands of one connection are dispatched in the order they were read.
type Dispatcher struct {
	log              *slog.Logger
	store            contract.IConversationStore
	presence         contract.IPresence
	router           contract.IRouter
	lifecycle        *Lifecycle
	delivery         *Delivery
	moderator        contract.IModerator
	index            contract.IMessageIndex
	validate         *validator.Validate
	storeTimeout     time.Duration
	maxContentLength int
}

type DispatcherOption func(*Dispatcher)

func WithModerator(m contract.IModerator) DispatcherOption {
	return func(d *Dispatcher) { d.moderator = m }
}

// WithSearchIndex makes relayed messages searchable once they are persisted.
func WithSearchIndex(index contract.IMessageIndex) DispatcherOption {
	return func(d *Dispatcher) { d.index = index }
}

func WithStoreTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.storeTimeout = timeout }
}

func WithMaxContentLength(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxContentLength = n }
}

func NewDispatcher(log *slog.Logger, store contract.IConversationStore, presence contract.IPresence,
	router contract.IRouter, lifecycle *Lifecycle, delivery *Delivery, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:          log,
		store:        store,
		presence:     presence,
		router:       router,
		lifecycle:    lifecycle,
		delivery:     delivery,
		validate:     validator.New(),
		storeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one command from handle. A failure is answered to handle
// only, as an error event carrying ref, and never reaches other connections.
func (d *Dispatcher) Dispatch(ctx context.Context, handle domain.Handle, cmd domain.Command, ref string) error {
	err := d.dispatch(ctx, handle, cmd)
	result := "ok"
	if err != nil {
		result = errors.Code(err)
		d.replyError(ctx, handle, cmd, ref, err)
	}
	observability.InboundEvents.WithLabelValues(cmd.CommandName(), result).Inc()
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, handle domain.Handle, cmd domain.Command) error {
	if err := d.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	switch c := cmd.(type) {
	case domain.OnlineCommand:
		return d.lifecycle.Online(ctx, handle, c.UserID)
	case domain.JoinChatCommand:
		return d.joinChat(ctx, handle, c)
	case domain.LeaveChatCommand:
		d.router.Leave(c.ConversationID, handle)
		return nil
	case domain.SendMessageCommand:
		return d.sendMessage(ctx, handle, c)
	case domain.UpdateStatusCommand:
		return d.updateStatus(ctx, handle, c)
	case domain.FetchConversationCommand:
		return d.fetchConversation(ctx, handle, c)
	default:
		return fmt.Errorf("%w: unknown event %q", errors.ErrValidation, cmd.CommandName())
	}
}

func (d *Dispatcher) joinChat(ctx context.Context, handle domain.Handle, cmd domain.JoinChatCommand) error {
	if _, err := d.visibleConversation(ctx, handle, cmd.ConversationID); err != nil {
		return err
	}
	if err := d.lifecycle.Join(cmd.ConversationID, handle); err != nil {
		return err
	}
	d.log.Debug("Joined room", "handle", handle, "conversation_id", cmd.ConversationID)
	return nil
}

// sendMessage persists before it delivers: if the store fails nobody
// receives anything and the sender gets the error.
func (d *Dispatcher) sendMessage(ctx context.Context, handle domain.Handle, cmd domain.SendMessageCommand) error {
	if strings.TrimSpace(cmd.Content) == "" {
		return fmt.Errorf("%w: content is empty", errors.ErrValidation)
	}
	if d.maxContentLength > 0 && utf8.RuneCountInString(cmd.Content) > d.maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", errors.ErrValidation, d.maxContentLength)
	}
	if user, ok := d.presence.UserOf(handle); ok && user != cmd.SenderID {
		return fmt.Errorf("%w: sender %s does not match connection user", errors.ErrValidation, cmd.SenderID)
	}

	conv, err := d.getConversation(ctx, cmd.ConversationID)
	if err != nil {
		return err
	}
	receiver, ok := conv.Other(cmd.SenderID)
	if !ok {
		return fmt.Errorf("%w: no receiver for %s in conversation %s", errors.ErrNotFound, cmd.SenderID, conv.ID)
	}

	content := cmd.Content
	if d.moderator != nil {
		var words []string
		if content, words = d.moderator.Censor(content); len(words) > 0 {
			d.log.Debug("Message censored", "conversation_id", conv.ID, "sender", cmd.SenderID, "words", len(words))
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	start := time.Now()
	message, err := d.store.CreateMessage(storeCtx, cmd.SenderID, receiver, conv.ID, conv.ItemID, content)
	observability.StoreDuration.WithLabelValues("create_message").Observe(time.Since(start).Seconds())
	if err != nil {
		return persistence("create message", err)
	}

	start = time.Now()
	err = d.store.AppendMessage(storeCtx, conv.ID, message.ID)
	observability.StoreDuration.WithLabelValues("append_message").Observe(time.Since(start).Seconds())
	if err != nil {
		d.log.Error("Message stored but not appended", "message_id", message.ID, "conversation_id", conv.ID, "error", err)
		return persistence("append message", err)
	}

	delivered := d.delivery.Deliver(ctx,
		contract.Target{Room: conv.ID, Users: []domain.UserID{receiver}},
		event.MessageReceived{Message: message})
	lang := moderation.DetectLanguage(message.Content)
	observability.Messages.WithLabelValues(lang).Inc()
	d.log.Debug("Message relayed", "conversation_id", conv.ID, "message_id", message.ID, "lang", lang, "delivered", delivered)

	if d.index != nil {
		if err = d.index.Index(ctx, message); err != nil {
			observability.SearchIndexErrors.Inc()
			d.log.Warn("Message not indexed", "message_id", message.ID, "error", err)
		}
	}
	return nil
}

// updateStatus lets the seller settle a pending conversation.
func (d *Dispatcher) updateStatus(ctx context.Context, handle domain.Handle, cmd domain.UpdateStatusCommand) error {
	user, ok := d.presence.UserOf(handle)
	if !ok {
		return fmt.Errorf("%w: connection is not online", errors.ErrValidation)
	}
	conv, err := d.getConversation(ctx, cmd.ConversationID)
	if err != nil {
		return err
	}
	if role, ok := conv.RoleOf(user); !ok || role != domain.RoleSeller {
		return fmt.Errorf("%w: %s on conversation %s", errors.ErrForbiddenTransition, user, conv.ID)
	}
	if !conv.Status.CanTransition(cmd.Status) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, conv.Status, cmd.Status)
	}

	storeCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	updated, err := d.store.UpdateStatus(storeCtx, conv.ID, cmd.Status)
	if err != nil {
		return persistence("update status", err)
	}

	var swapErr error
	if updated.Status == domain.StatusAccepted {
		if err = d.store.MarkItemSwapped(storeCtx, updated.ItemID); err != nil {
			d.log.Error("Item not marked as swapped", "item_id", updated.ItemID, "error", err)
			swapErr = persistence("mark item swapped", err)
		}
	}

	d.delivery.Deliver(ctx, contract.Target{Room: updated.ID},
		event.StatusUpdated{ConversationID: updated.ID, Status: updated.Status})
	return swapErr
}

func (d *Dispatcher) fetchConversation(ctx context.Context, handle domain.Handle, cmd domain.FetchConversationCommand) error {
	conv, err := d.visibleConversation(ctx, handle, cmd.ConversationID)
	if err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	messages, cursor, err := d.store.GetMessages(storeCtx, conv.ID, cmd.Cursor)
	if err != nil {
		return persistence("get messages", err)
	}
	d.delivery.Reply(ctx, handle, event.ConversationSnapshot{
		Conversation: conv,
		Messages:     messages,
		Cursor:       cursor,
	})
	return nil
}

// visibleConversation hides conversations from online users who are not part of them.
func (d *Dispatcher) visibleConversation(ctx context.Context, handle domain.Handle, id domain.ConversationID) (domain.Conversation, error) {
	conv, err := d.getConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if user, ok := d.presence.UserOf(handle); ok && !conv.HasParticipant(user) {
		return domain.Conversation{}, fmt.Errorf("%w: conversation %s", errors.ErrNotFound, id)
	}
	return conv, nil
}

func (d *Dispatcher) getConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	storeCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	start := time.Now()
	conv, err := d.store.GetConversation(storeCtx, id)
	observability.StoreDuration.WithLabelValues("get_conversation").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Conversation{}, persistence("get conversation", err)
	}
	return conv, nil
}

func (d *Dispatcher) replyError(ctx context.Context, handle domain.Handle, cmd domain.Command, ref string, err error) {
	e := event.ErrorRaised{
		Code:    errors.Code(err),
		Message: err.Error(),
		Event:   cmd.CommandName(),
		Ref:     ref,
	}
	if id, ok := errors.ExistingConversation(err); ok {
		e.ExistingConversationID = id
	}
	if c, ok := cmd.(interface{ Conversation() domain.ConversationID }); ok {
		e.ConversationID = c.Conversation()
	}
	if errors.Code(err) == "internal" || errors.Is(err, errors.ErrPersistence) {
		d.log.Error("Command failed", "handle", handle, "event", cmd.CommandName(), "error", err)
	} else {
		d.log.Debug("Command rejected", "handle", handle, "event", cmd.CommandName(), "error", err)
	}
	d.delivery.Reply(ctx, handle, e)
}

// persistence keeps domain errors as they are and classifies the rest as
// store failures.
func persistence(op string, err error) error {
	if errors.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", errors.ErrPersistence, op, err)
}
