package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

type ItemID string

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransition reports whether a conversation may move from s to next.
// Only pending conversations change, and only towards a terminal status.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Conversation is a buyer/seller exchange about one item.
type Conversation struct {
	ID           ConversationID `json:"id"`
	ItemID       ItemID         `json:"itemId"`
	Participants [2]Participant `json:"participants"`
	MessageIDs   []uuid.UUID    `json:"messageIds"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func NewConversation(item ItemID, participants [2]Participant, at time.Time) Conversation {
	return Conversation{
		ID:           ConversationID(uuid.NewString()),
		ItemID:       item,
		Participants: participants,
		MessageIDs:   []uuid.UUID{},
		Status:       StatusPending,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func (c Conversation) HasParticipant(user UserID) bool {
	_, ok := c.RoleOf(user)
	return ok
}

func (c Conversation) RoleOf(user UserID) (Role, bool) {
	for _, p := range c.Participants {
		if p.UserID == user {
			return p.Role, true
		}
	}
	return "", false
}

// Other returns the participant facing user, i.e. the receiver of what user sends.
func (c Conversation) Other(user UserID) (UserID, bool) {
	if !c.HasParticipant(user) {
		return "", false
	}
	for _, p := range c.Participants {
		if p.UserID != user && p.UserID != "" {
			return p.UserID, true
		}
	}
	return "", false
}

func (c Conversation) Buyer() UserID  { return c.withRole(RoleBuyer) }
func (c Conversation) Seller() UserID { return c.withRole(RoleSeller) }

func (c Conversation) withRole(role Role) UserID {
	for _, p := range c.Participants {
		if p.Role == role {
			return p.UserID
		}
	}
	return ""
}
