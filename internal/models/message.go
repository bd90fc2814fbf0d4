package models

import "time"

// Message direction values stored in the direction column.
const (
	DirectionReceived = "RECEIVED"
	DirectionSent     = "SENT"
)

// Message represents one SMS in either direction. Rows are immutable after
// insert; ProviderMessageID, when present, is unique across all messages and
// is the dedup key for inbound polling.
type Message struct {
	ID                int64     `json:"id"`
	Originator        string    `json:"originator"`
	Recipient         string    `json:"recipient"`
	Body              string    `json:"body"`
	Direction         string    `json:"direction"`
	MessageAt         time.Time `json:"messageAt"`
	CreatedAt         time.Time `json:"createdAt"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	SentBy            *string   `json:"sentBy,omitempty"` // only meaningful for SENT
}
