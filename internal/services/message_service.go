package services

import (
	"fmt"
	"time"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/events"
	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// Publisher is the slice of the broadcaster this service needs.
type Publisher interface {
	Publish(name string, payload any)
}

// MessageService is the deduplicating ledger entry point: it persists
// messages, keeps the conversation aggregate current, and announces new
// rows. Aggregate updates and event publishes are best-effort side effects;
// their failure never fails the save that triggered them.
type MessageService struct {
	messages      db.MessageRepository
	conversations db.ConversationRepository
	publisher     Publisher
}

// NewMessageService creates a new MessageService
func NewMessageService(messages db.MessageRepository, conversations db.ConversationRepository, publisher Publisher) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		publisher:     publisher,
	}
}

// SaveReceivedResult reports a dedup-aware inbound save. Duplicate is an
// expected outcome under retried polling, distinct from failure.
type SaveReceivedResult struct {
	ID        int64
	Duplicate bool
}

// SaveReceived persists one inbound message. A repeat provider message id
// reports Duplicate without error and triggers no side effects.
func (s *MessageService) SaveReceived(originator, recipient, body string, messageAt time.Time, providerMessageID string) (SaveReceivedResult, error) {
	if originator == "" || recipient == "" {
		return SaveReceivedResult{}, fmt.Errorf("originator and recipient are required")
	}
	if body == "" {
		return SaveReceivedResult{}, fmt.Errorf("message body is required")
	}

	msg := &models.Message{
		Originator: originator,
		Recipient:  recipient,
		Body:       body,
		MessageAt:  messageAt.UTC(),
	}
	if providerMessageID != "" {
		msg.ProviderMessageID = &providerMessageID
	}

	outcome, err := s.messages.InsertReceived(msg)
	if err != nil {
		return SaveReceivedResult{}, err
	}
	if outcome.Duplicate {
		return SaveReceivedResult{Duplicate: true}, nil
	}

	s.afterInbound(msg)
	return SaveReceivedResult{ID: outcome.ID}, nil
}

// SaveSent persists one outbound message. Sends carry no dedup key.
func (s *MessageService) SaveSent(originator, recipient, body string, messageAt time.Time, sentBy string) (int64, error) {
	if originator == "" || recipient == "" {
		return 0, fmt.Errorf("originator and recipient are required")
	}
	if body == "" {
		return 0, fmt.Errorf("message body is required")
	}

	msg := &models.Message{
		Originator: originator,
		Recipient:  recipient,
		Body:       body,
		MessageAt:  messageAt.UTC(),
	}
	if sentBy != "" {
		msg.SentBy = &sentBy
	}

	id, err := s.messages.InsertSent(msg)
	if err != nil {
		return 0, err
	}

	s.afterOutbound(msg)
	return id, nil
}

// ListByPhone exposes the ledger's per-counterparty history.
func (s *MessageService) ListByPhone(canonicalPhone string, limit, offset int) ([]*models.Message, error) {
	if canonicalPhone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	return s.messages.ListByPhone(canonicalPhone, limit, offset)
}

// afterInbound runs the best-effort side effects of a first-time inbound
// save. Inline rather than spawned so event order matches insert order;
// failures are logged, never surfaced.
func (s *MessageService) afterInbound(msg *models.Message) {
	canonical := canonicalOrRaw(msg.Originator)
	if err := s.conversations.UpsertInbound(canonical, msg.MessageAt); err != nil {
		logger.Warn("Conversation inbound update failed",
			zap.String("phone", canonical),
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.Publish(events.EventMessageReceived, events.MessagePayload{
			MessageID:     msg.ID,
			CustomerPhone: canonical,
			Originator:    msg.Originator,
			Recipient:     msg.Recipient,
			Body:          msg.Body,
			MessageAt:     msg.MessageAt,
			ProviderMsgID: derefOrEmpty(msg.ProviderMessageID),
		})
	}
}

func (s *MessageService) afterOutbound(msg *models.Message) {
	canonical := canonicalOrRaw(msg.Recipient)
	if err := s.conversations.UpsertOutbound(canonical, msg.MessageAt); err != nil {
		logger.Warn("Conversation outbound update failed",
			zap.String("phone", canonical),
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.Publish(events.EventMessageSent, events.MessagePayload{
			MessageID:     msg.ID,
			CustomerPhone: canonical,
			Originator:    msg.Originator,
			Recipient:     msg.Recipient,
			Body:          msg.Body,
			MessageAt:     msg.MessageAt,
			SentBy:        derefOrEmpty(msg.SentBy),
		})
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
