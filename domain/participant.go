// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"campus-relay/errors"
	"fmt"
)

type UserID string

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Participant struct {
	UserID UserID `json:"userId"`
	Role   Role   `json:"role"`
}

// NewParticipants builds the buyer/seller pair of a conversation.
// A user cannot trade with themselves.
func NewParticipants(buyer, seller UserID) ([2]Participant, error) {
	if buyer == "" || seller == "" {
		return [2]Participant{}, fmt.Errorf("%w: buyer and seller are required", errors.ErrValidation)
	}
	if buyer == seller {
		return [2]Participant{}, fmt.Errorf("%w: buyer and seller must differ", errors.ErrValidation)
	}
	return [2]Participant{
		{UserID: buyer, Role: RoleBuyer},
		{UserID: seller, Role: RoleSeller},
	}, nil
}
