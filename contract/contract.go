//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"campus-relay/domain"
	"campus-relay/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the delivery end of one connection.
// Consume must not block: a full sink drops the event and reports it.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	// Close ends the transport of the connection. Safe to call more than once.
	Close()
}

// IPresence tracks which handles a user is connected on.
type IPresence interface {
	SetOnline(user domain.UserID, handle domain.Handle) bool
	Lookup(user domain.UserID) (domain.Handle, bool)
	Handles(user domain.UserID) []domain.Handle
	RemoveIfMatches(user domain.UserID, handle domain.Handle) bool
	RemoveHandle(handle domain.Handle) (domain.UserID, bool, bool)
	UserOf(handle domain.Handle) (domain.UserID, bool)
}

// IRouter owns room membership and per-handle delivery.
type IRouter interface {
	Attach(handle domain.Handle, sink EventSink)
	Detach(handle domain.Handle)
	Join(room domain.RoomID, handle domain.Handle)
	Leave(room domain.RoomID, handle domain.Handle)
	LeaveAll(handle domain.Handle) []domain.RoomID
	Members(room domain.RoomID) []domain.Handle
	Send(ctx context.Context, handle domain.Handle, e event.DomainEvent) bool
	SendMany(ctx context.Context, handles []domain.Handle, e event.DomainEvent) int
	Broadcast(ctx context.Context, room domain.RoomID, e event.DomainEvent, except ...domain.Handle) int
	BroadcastAll(ctx context.Context, e event.DomainEvent) int
}

// IConversationStore is the persistence contract of the relay.
// Every operation is atomic for a single document only.
type IConversationStore interface {
	CreateMessage(ctx context.Context, sender, receiver domain.UserID, conversation domain.ConversationID, item domain.ItemID, content string) (domain.Message, error)
	AppendMessage(ctx context.Context, conversation domain.ConversationID, messageID uuid.UUID) error
	FindConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, bool, error)
	CreateConversation(ctx context.Context, participants [2]domain.Participant, item domain.ItemID) (domain.Conversation, error)
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
	UpdateStatus(ctx context.Context, id domain.ConversationID, status domain.Status) (domain.Conversation, error)
	MarkItemSwapped(ctx context.Context, item domain.ItemID) error
	IsItemSwapped(ctx context.Context, item domain.ItemID) (bool, error)
	GetMessages(ctx context.Context, conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
	ListConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error)
}

// Target addresses a delivery: the handles joined to Room plus the handles of
// Users, each reached once. All addresses every live handle.
type Target struct {
	Room  domain.RoomID   `json:"room,omitempty"`
	Users []domain.UserID `json:"users,omitempty"`
	All   bool            `json:"all,omitempty"`
}

// IBackplane shares deliveries between relay processes.
type IBackplane interface {
	Publish(ctx context.Context, target Target, e event.DomainEvent) error
	Subscribe(ctx context.Context, deliver func(ctx context.Context, target Target, e event.DomainEvent)) error
	Close() error
}

// IModerator masks forbidden words and reports which ones it found.
type IModerator interface {
	Censor(original string) (string, []string)
}

// IMessageIndex keeps persisted messages searchable by content.
type IMessageIndex interface {
	Index(ctx context.Context, message domain.Message) error
	Search(ctx context.Context, conversation domain.ConversationID, query string, limit int) ([]domain.SearchHit, error)
	Close() error
}
