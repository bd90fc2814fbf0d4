package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names broadcast to subscribers.
const (
	EventMessageReceived      = "message.received"
	EventMessageSent          = "message.sent"
	EventMissedCall           = "call.missed"
	EventCallRecordAdded      = "call.record_added"
	EventCallRecordsBulk      = "call.records_bulk_loaded"
	EventConversationsUpdated = "conversations.updated"
)

// Event is one domain event as delivered to subscribers.
type Event struct {
	ID         string    `json:"id"` // UUID
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with an id and occurrence time.
func NewEvent(name string, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Name:       name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// MessagePayload is the payload for message.received and message.sent.
type MessagePayload struct {
	MessageID      int64     `json:"message_id"`
	CustomerPhone  string    `json:"customer_phone"` // canonical form
	Originator     string    `json:"originator"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"body"`
	MessageAt      time.Time `json:"message_at"`
	SentBy         string    `json:"sent_by,omitempty"`
	ProviderMsgID  string    `json:"provider_message_id,omitempty"`
}

// MissedCallPayload is the payload for call.missed. It is a compact summary,
// not the full records.
type MissedCallPayload struct {
	Count    int       `json:"count"`
	MaxID    int64     `json:"max_id"`
	LatestAt time.Time `json:"latest_at"`
}

// ErrUnrecognizedPayload indicates an inbound push payload carried none of
// the known field aliases for a required field.
var ErrUnrecognizedPayload = errors.New("unrecognized event payload shape")

// Field-name aliases accepted from external producers, in priority order.
// The first present, non-empty alias wins.
var (
	phoneAliases = []string{"customer_phone", "phone", "phoneNumber", "from", "msisdn"}
	bodyAliases  = []string{"body", "message", "text"}
	idAliases    = []string{"provider_message_id", "providerMessageId", "messageId", "id"}
)

// InboundMessage is the canonical internal form of an externally produced
// message notification. Ambiguous dynamic payloads never travel past this
// decode step.
type InboundMessage struct {
	Phone         string
	Body          string
	ProviderMsgID string
}

// DecodeInbound coerces a dynamic push payload into the canonical inbound
// shape using the fixed alias priority order.
func DecodeInbound(raw map[string]any) (InboundMessage, error) {
	phone := firstString(raw, phoneAliases)
	if phone == "" {
		return InboundMessage{}, fmt.Errorf("%w: no phone field", ErrUnrecognizedPayload)
	}
	body := firstString(raw, bodyAliases)
	if body == "" {
		return InboundMessage{}, fmt.Errorf("%w: no body field", ErrUnrecognizedPayload)
	}

	return InboundMessage{
		Phone:         phone,
		Body:          body,
		ProviderMsgID: firstString(raw, idAliases),
	}, nil
}

func firstString(raw map[string]any, aliases []string) string {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			switch s := v.(type) {
			case string:
				if s != "" {
					return s
				}
			case fmt.Stringer:
				if s.String() != "" {
					return s.String()
				}
			}
		}
	}
	return ""
}
