// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	ItemID         ItemID         `json:"itemId"`
	SenderID       UserID         `json:"senderId"`
	ReceiverID     UserID         `json:"receiverId"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// SearchHit is a message matching a transcript search, best score first.
type SearchHit struct {
	MessageID      uuid.UUID      `json:"messageId"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       UserID         `json:"senderId"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"createdAt"`
	Score          float64        `json:"score"`
}
