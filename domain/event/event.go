// Package event holds the outbound events delivered to connections.
package event

import (
	"campus-relay/domain"

	"github.com/goccy/go-json"
)

// DomainEvent is anything a sink can deliver to a client.
type DomainEvent interface {
	EventName() string
}

const (
	NameUserStatusChanged = "userStatusChanged"
	NameReceiveMessage    = "receiveMessage"
	NameStatusUpdated     = "statusUpdated"
	NameConversation      = "conversation"
	NameError             = "error"
	NamePong              = "pong"
)

type UserStatusChanged struct {
	UserID domain.UserID   `json:"userId"`
	Status domain.Presence `json:"status"`
}

func (UserStatusChanged) EventName() string { return NameUserStatusChanged }

// MessageReceived carries the canonical, persisted message.
type MessageReceived struct {
	domain.Message
}

func (MessageReceived) EventName() string { return NameReceiveMessage }

type StatusUpdated struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Status         domain.Status         `json:"status"`
}

func (StatusUpdated) EventName() string { return NameStatusUpdated }

// ConversationSnapshot answers a fetch so a reconnecting client can reconcile.
type ConversationSnapshot struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
	Cursor       *string             `json:"cursor,omitempty"`
}

func (ConversationSnapshot) EventName() string { return NameConversation }

// ErrorRaised is only ever sent to the connection that caused it.
type ErrorRaised struct {
	Code                   string                `json:"code"`
	Message                string                `json:"message"`
	Event                  string                `json:"event,omitempty"`
	Ref                    string                `json:"ref,omitempty"`
	ConversationID         domain.ConversationID `json:"conversationId,omitempty"`
	ExistingConversationID string                `json:"existingConversationId,omitempty"`
}

func (ErrorRaised) EventName() string { return NameError }

type Pong struct{}

func (Pong) EventName() string { return NamePong }

// Raw is an event relayed from another node. Its payload is kept encoded.
type Raw struct {
	Name string
	Data json.RawMessage
}

func (r Raw) EventName() string { return r.Name }

func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}
