package provider

import (
	"context"
	"time"
)

// SendResult is what the provider reports for an accepted outbound message.
type SendResult struct {
	ProviderID  string
	SubmittedAt time.Time
}

// InboxItem is one message in the provider-side inbox.
type InboxItem struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"receivedAtUtc"`
}

// InboxPage is one page of the provider inbox with the total count across
// all pages.
type InboxPage struct {
	Items []InboxItem `json:"items"`
	Total int         `json:"total"`
}

// OutboundTransport sends a message through the external provider.
// Provider-specific auth and wire protocol live behind this boundary.
type OutboundTransport interface {
	Send(ctx context.Context, toE164, body, accountRef string) (*SendResult, error)
}

// InboxSource pages through the provider-side inbox.
type InboxSource interface {
	Fetch(ctx context.Context, direction string, page, pageSize int, accountRef string) (*InboxPage, error)
}
