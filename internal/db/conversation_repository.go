package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-relay-server/internal/models"
)

// ConversationRepository defines the interface for the per-counterparty
// aggregate rows and the advisory claim columns.
type ConversationRepository interface {
	UpsertInbound(canonicalPhone string, atUTC time.Time) error
	UpsertOutbound(canonicalPhone string, atUTC time.Time) error
	MarkRead(canonicalPhone string) error
	Claim(canonicalPhone, operatorName string, minutes int) (*models.ClaimResult, error)
	Get(canonicalPhone string) (*models.Conversation, error)
	List(limit, offset int) ([]*models.Conversation, error)
}

// conversationRepository implements ConversationRepository interface
type conversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *sql.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// UpsertInbound records inbound activity. last_read_inbound_at is never
// touched by an arrival.
func (r *conversationRepository) UpsertInbound(canonicalPhone string, atUTC time.Time) error {
	if canonicalPhone == "" {
		return errors.New("phone is required")
	}

	_, err := r.db.Exec(
		`INSERT INTO conversations (customer_phone, last_inbound_at, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(customer_phone) DO UPDATE SET
			last_inbound_at = excluded.last_inbound_at,
			updated_at = excluded.updated_at`,
		canonicalPhone, atUTC.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert inbound for %s: %w", canonicalPhone, err)
	}
	return nil
}

// UpsertOutbound records outbound activity.
func (r *conversationRepository) UpsertOutbound(canonicalPhone string, atUTC time.Time) error {
	if canonicalPhone == "" {
		return errors.New("phone is required")
	}

	_, err := r.db.Exec(
		`INSERT INTO conversations (customer_phone, last_outbound_at, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(customer_phone) DO UPDATE SET
			last_outbound_at = excluded.last_outbound_at,
			updated_at = excluded.updated_at`,
		canonicalPhone, atUTC.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert outbound for %s: %w", canonicalPhone, err)
	}
	return nil
}

// MarkRead copies last_inbound_at into last_read_inbound_at. Absent row or
// null inbound timestamp is a no-op, not an error.
func (r *conversationRepository) MarkRead(canonicalPhone string) error {
	if canonicalPhone == "" {
		return errors.New("phone is required")
	}

	_, err := r.db.Exec(
		`UPDATE conversations
		 SET last_read_inbound_at = last_inbound_at, updated_at = ?
		 WHERE customer_phone = ? AND last_inbound_at IS NOT NULL`,
		time.Now().UTC(), canonicalPhone)
	if err != nil {
		return fmt.Errorf("failed to mark read for %s: %w", canonicalPhone, err)
	}
	return nil
}

// Claim attempts a time-bounded advisory assignment. A standing, unexpired
// claim is reported back unchanged with WasAlreadyAssigned set; an absent or
// expired claim is overwritten. Two claims racing on an expired lock resolve
// last-write-wins; callers tolerate that.
func (r *conversationRepository) Claim(canonicalPhone, operatorName string, minutes int) (*models.ClaimResult, error) {
	if canonicalPhone == "" {
		return nil, errors.New("phone is required")
	}
	if operatorName == "" {
		return nil, errors.New("operator name is required")
	}
	if minutes <= 0 {
		return nil, errors.New("claim minutes must be positive")
	}

	now := time.Now().UTC()

	_, err := r.db.Exec(
		`INSERT INTO conversations (customer_phone, updated_at) VALUES (?, ?)
		 ON CONFLICT(customer_phone) DO NOTHING`,
		canonicalPhone, now)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure conversation row for %s: %w", canonicalPhone, err)
	}

	existing, err := r.currentAssignment(canonicalPhone)
	if err != nil {
		return nil, err
	}
	if existing.until != nil && existing.until.After(now) {
		return &models.ClaimResult{
			WasAlreadyAssigned: true,
			AssignedTo:         deref(existing.to),
			AssignedUntil:      *existing.until,
		}, nil
	}

	until := now.Add(time.Duration(minutes) * time.Minute)
	res, err := r.db.Exec(
		`UPDATE conversations
		 SET assigned_to = ?, assigned_until = ?, updated_at = ?
		 WHERE customer_phone = ? AND (assigned_until IS NULL OR assigned_until <= ?)`,
		operatorName, until, now, canonicalPhone, now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s: %w", canonicalPhone, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Lost the race to a concurrent claim; report the winner.
		winner, err := r.currentAssignment(canonicalPhone)
		if err != nil {
			return nil, err
		}
		result := &models.ClaimResult{WasAlreadyAssigned: true, AssignedTo: deref(winner.to)}
		if winner.until != nil {
			result.AssignedUntil = *winner.until
		}
		return result, nil
	}

	return &models.ClaimResult{
		WasAlreadyAssigned: false,
		AssignedTo:         operatorName,
		AssignedUntil:      until,
	}, nil
}

// Get returns one aggregate row, nil when absent.
func (r *conversationRepository) Get(canonicalPhone string) (*models.Conversation, error) {
	if canonicalPhone == "" {
		return nil, errors.New("phone is required")
	}

	row := r.db.QueryRow(
		`SELECT customer_phone, last_inbound_at, last_outbound_at, last_read_inbound_at,
			assigned_to, assigned_until, updated_at
		 FROM conversations WHERE customer_phone = ?`, canonicalPhone)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", canonicalPhone, err)
	}
	return conv, nil
}

// List returns aggregate rows ordered by most recent activity.
func (r *conversationRepository) List(limit, offset int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(
		`SELECT customer_phone, last_inbound_at, last_outbound_at, last_read_inbound_at,
			assigned_to, assigned_until, updated_at
		 FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

type assignment struct {
	to    *string
	until *time.Time
}

func (r *conversationRepository) currentAssignment(canonicalPhone string) (assignment, error) {
	var a assignment
	err := r.db.QueryRow(
		`SELECT assigned_to, assigned_until FROM conversations WHERE customer_phone = ?`,
		canonicalPhone).Scan(&a.to, &a.until)
	if err != nil {
		return assignment{}, fmt.Errorf("failed to read assignment for %s: %w", canonicalPhone, err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(&conv.CustomerPhone, &conv.LastInboundAt, &conv.LastOutboundAt,
		&conv.LastReadInboundAt, &conv.AssignedTo, &conv.AssignedUntil, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
