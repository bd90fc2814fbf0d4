package services

import (
	"fmt"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/phone"
)

// ConversationService wraps the aggregate store with phone normalization
// for the request handlers.
type ConversationService struct {
	conversations db.ConversationRepository
}

// NewConversationService creates a new ConversationService
func NewConversationService(conversations db.ConversationRepository) *ConversationService {
	return &ConversationService{conversations: conversations}
}

// Claim attempts a time-bounded advisory assignment of a conversation.
func (s *ConversationService) Claim(rawPhone, operatorName string, minutes int) (*models.ClaimResult, error) {
	n, err := phone.Parse(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("invalid phone: %w", err)
	}
	if operatorName == "" {
		return nil, fmt.Errorf("operator name is required")
	}
	if minutes <= 0 {
		minutes = 5
	}
	return s.conversations.Claim(n.Canonical, operatorName, minutes)
}

// MarkRead records that the conversation's inbound messages were read.
func (s *ConversationService) MarkRead(rawPhone string) error {
	n, err := phone.Parse(rawPhone)
	if err != nil {
		return fmt.Errorf("invalid phone: %w", err)
	}
	return s.conversations.MarkRead(n.Canonical)
}

// Get returns one aggregate row, nil when the conversation is unknown.
func (s *ConversationService) Get(rawPhone string) (*models.Conversation, error) {
	n, err := phone.Parse(rawPhone)
	if err != nil {
		return nil, fmt.Errorf("invalid phone: %w", err)
	}
	return s.conversations.Get(n.Canonical)
}

// List returns aggregate rows ordered by most recent activity.
func (s *ConversationService) List(limit, offset int) ([]*models.Conversation, error) {
	return s.conversations.List(limit, offset)
}

// canonicalOrRaw normalizes a phone to canonical form, falling back to the
// raw value for non-numeric originators (alphanumeric sender ids).
func canonicalOrRaw(raw string) string {
	if c := phone.Canonical(raw); c != "" {
		return c
	}
	return raw
}
