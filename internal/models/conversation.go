package models

import "time"

// Conversation is the per-counterparty aggregate row, keyed by the canonical
// (no leading plus) phone. It is a read model over messages plus the
// advisory claim columns.
type Conversation struct {
	CustomerPhone     string     `json:"customerPhone"`
	LastInboundAt     *time.Time `json:"lastInboundAt,omitempty"`
	LastOutboundAt    *time.Time `json:"lastOutboundAt,omitempty"`
	LastReadInboundAt *time.Time `json:"lastReadInboundAt,omitempty"`
	AssignedTo        *string    `json:"assignedTo,omitempty"`
	AssignedUntil     *time.Time `json:"assignedUntil,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ClaimResult reports the outcome of a claim attempt. When the conversation
// was already held by a live claim, WasAlreadyAssigned is true and
// AssignedTo/AssignedUntil carry the standing assignment, unchanged.
type ClaimResult struct {
	WasAlreadyAssigned bool      `json:"wasAlreadyAssigned"`
	AssignedTo         string    `json:"assignedTo"`
	AssignedUntil      time.Time `json:"assignedUntil"`
}

// HasUnread reports whether inbound activity exists that has not been
// marked read.
func (c *Conversation) HasUnread() bool {
	if c.LastInboundAt == nil {
		return false
	}
	if c.LastReadInboundAt == nil {
		return true
	}
	return c.LastReadInboundAt.Before(*c.LastInboundAt)
}
