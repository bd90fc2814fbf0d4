package db

import (
	"database/sql"
	"fmt"
	"time"

	"sms-relay-server/internal/models"

	"github.com/google/uuid"
)

// OperatorRepository defines the interface for operator credential access
type OperatorRepository interface {
	Create(op *models.Operator) error
	GetByName(name string) (*models.Operator, error)
}

// operatorRepository implements OperatorRepository interface
type operatorRepository struct {
	db *sql.DB
}

// NewOperatorRepository creates a new OperatorRepository
func NewOperatorRepository(db *sql.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

// Create creates a new operator in the database
func (r *operatorRepository) Create(op *models.Operator) error {
	if op == nil {
		return fmt.Errorf("operator cannot be nil")
	}
	if op.Name == "" {
		return fmt.Errorf("operator name is required")
	}
	if op.PasswordHash == "" {
		return fmt.Errorf("operator password hash is required")
	}

	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	op.CreatedAt = time.Now().Unix()

	_, err := r.db.Exec(
		`INSERT INTO operators (id, name, password_hash, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		op.ID, op.Name, op.PasswordHash, op.Active, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

// GetByName retrieves an operator by name, nil when absent.
func (r *operatorRepository) GetByName(name string) (*models.Operator, error) {
	if name == "" {
		return nil, fmt.Errorf("operator name is required")
	}

	op := &models.Operator{}
	err := r.db.QueryRow(
		`SELECT id, name, password_hash, active, created_at FROM operators WHERE name = ?`,
		name).Scan(&op.ID, &op.Name, &op.PasswordHash, &op.Active, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator %s: %w", name, err)
	}
	return op, nil
}
