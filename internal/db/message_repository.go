package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-relay-server/internal/models"

	"github.com/mattn/go-sqlite3"
)

// SaveOutcome reports the result of a dedup-aware insert. Duplicate means a
// row with the same provider message id already existed; it is an expected
// outcome under retried polling, not an error.
type SaveOutcome struct {
	ID        int64
	Duplicate bool
}

// MessageRepository defines the interface for message persistence
type MessageRepository interface {
	InsertReceived(msg *models.Message) (SaveOutcome, error)
	InsertSent(msg *models.Message) (int64, error)
	GetByID(id int64) (*models.Message, error)
	ListByPhone(canonicalPhone string, limit, offset int) ([]*models.Message, error)
}

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

// InsertReceived inserts an inbound message. A unique-index hit on
// provider_message_id is reported as Duplicate rather than an error; every
// other failure is a real save error.
func (r *messageRepository) InsertReceived(msg *models.Message) (SaveOutcome, error) {
	if msg == nil {
		return SaveOutcome{}, fmt.Errorf("message cannot be nil")
	}

	msg.Direction = models.DirectionReceived
	msg.CreatedAt = time.Now().UTC()
	if msg.MessageAt.IsZero() {
		msg.MessageAt = msg.CreatedAt
	}

	res, err := r.db.Exec(
		`INSERT INTO messages (originator, recipient, body, direction, message_at, created_at, provider_message_id, sent_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		msg.Originator, msg.Recipient, msg.Body, msg.Direction, msg.MessageAt, msg.CreatedAt, msg.ProviderMessageID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return SaveOutcome{Duplicate: true}, nil
		}
		return SaveOutcome{}, fmt.Errorf("failed to insert received message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("failed to read inserted message id: %w", err)
	}
	msg.ID = id
	return SaveOutcome{ID: id}, nil
}

// InsertSent inserts an outbound message. Sends have no dedup key; every
// send is unique by construction.
func (r *messageRepository) InsertSent(msg *models.Message) (int64, error) {
	if msg == nil {
		return 0, fmt.Errorf("message cannot be nil")
	}

	msg.Direction = models.DirectionSent
	msg.CreatedAt = time.Now().UTC()
	if msg.MessageAt.IsZero() {
		msg.MessageAt = msg.CreatedAt
	}

	res, err := r.db.Exec(
		`INSERT INTO messages (originator, recipient, body, direction, message_at, created_at, provider_message_id, sent_by)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		msg.Originator, msg.Recipient, msg.Body, msg.Direction, msg.MessageAt, msg.CreatedAt, msg.SentBy,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sent message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted message id: %w", err)
	}
	msg.ID = id
	return id, nil
}

// GetByID retrieves a single message
func (r *messageRepository) GetByID(id int64) (*models.Message, error) {
	row := r.db.QueryRow(
		`SELECT id, originator, recipient, body, direction, message_at, created_at, provider_message_id, sent_by
		 FROM messages WHERE id = ?`, id)

	msg := &models.Message{}
	err := row.Scan(&msg.ID, &msg.Originator, &msg.Recipient, &msg.Body, &msg.Direction,
		&msg.MessageAt, &msg.CreatedAt, &msg.ProviderMessageID, &msg.SentBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return msg, nil
}

// ListByPhone returns messages exchanged with one counterparty, newest
// first. The phone is matched in canonical form against both endpoints.
func (r *messageRepository) ListByPhone(canonicalPhone string, limit, offset int) ([]*models.Message, error) {
	if canonicalPhone == "" {
		return nil, errors.New("phone is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	e164 := "+" + canonicalPhone
	rows, err := r.db.Query(
		`SELECT id, originator, recipient, body, direction, message_at, created_at, provider_message_id, sent_by
		 FROM messages
		 WHERE originator IN (?, ?) OR recipient IN (?, ?)
		 ORDER BY message_at DESC LIMIT ? OFFSET ?`,
		canonicalPhone, e164, canonicalPhone, e164, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		err := rows.Scan(&msg.ID, &msg.Originator, &msg.Recipient, &msg.Body, &msg.Direction,
			&msg.MessageAt, &msg.CreatedAt, &msg.ProviderMessageID, &msg.SentBy)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint hit.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
