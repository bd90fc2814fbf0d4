package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-relay-server/internal/models"
)

// CallRepository defines the interface for the call-record staging table.
// Source-file idempotency is an application-level check: sentinel marker
// rows share the source_file namespace with data rows, so the column cannot
// carry a database uniqueness constraint.
type CallRepository interface {
	BulkInsert(records []*models.CallRecord) error
	InsertSentinel(sourceFile, statusText string) error
	HasSourceFile(sourceFile string) (bool, error)
	MaxID() (int64, error)
	ListNewerThan(id int64, limit int) ([]*models.CallRecord, error)
	ListBySourceFile(sourceFile string, loadedAfter *time.Time) ([]*models.CallRecord, error)
}

// callRepository implements CallRepository interface
type callRepository struct {
	db *sql.DB
}

// NewCallRepository creates a new CallRepository
func NewCallRepository(db *sql.DB) CallRepository {
	return &callRepository{db: db}
}

// BulkInsert loads one file's rows in a single transaction.
func (r *callRepository) BulkInsert(records []*models.CallRecord) error {
	if len(records) == 0 {
		return errors.New("no records to insert")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin bulk insert: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO call_records (date_and_time, phone_number, status_text, source_file, loaded_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	loadedAt := time.Now().UTC()
	for _, rec := range records {
		rec.LoadedAt = loadedAt
		if _, err := stmt.Exec(rec.DateAndTime.UTC(), rec.PhoneNumber, rec.StatusText, rec.SourceFile, loadedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert call record from %s: %w", rec.SourceFile, err)
		}
	}

	return tx.Commit()
}

// InsertSentinel writes a marker row so sourceFile is never reprocessed.
func (r *callRepository) InsertSentinel(sourceFile, statusText string) error {
	if sourceFile == "" {
		return errors.New("source file is required")
	}

	now := time.Now().UTC()
	_, err := r.db.Exec(
		`INSERT INTO call_records (date_and_time, phone_number, status_text, source_file, loaded_at)
		 VALUES (?, '', ?, ?, ?)`,
		now, statusText, sourceFile, now)
	if err != nil {
		return fmt.Errorf("failed to insert sentinel for %s: %w", sourceFile, err)
	}
	return nil
}

// HasSourceFile reports whether any row (data or sentinel) was already
// loaded for sourceFile.
func (r *callRepository) HasSourceFile(sourceFile string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(1) FROM call_records WHERE source_file = ?`, sourceFile).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check source file %s: %w", sourceFile, err)
	}
	return count > 0, nil
}

// MaxID returns the current maximum row id, zero on an empty table.
func (r *callRepository) MaxID() (int64, error) {
	var max sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(id) FROM call_records`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max call record id: %w", err)
	}
	return max.Int64, nil
}

// ListNewerThan returns up to limit rows with id greater than id, ascending.
func (r *callRepository) ListNewerThan(id int64, limit int) ([]*models.CallRecord, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(
		`SELECT id, date_and_time, phone_number, status_text, source_file, loaded_at
		 FROM call_records WHERE id > ? ORDER BY id ASC LIMIT ?`,
		id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCallRecords(rows)
}

// ListBySourceFile returns the rows loaded for one file, optionally
// restricted to a recent load-time window.
func (r *callRepository) ListBySourceFile(sourceFile string, loadedAfter *time.Time) ([]*models.CallRecord, error) {
	if sourceFile == "" {
		return nil, errors.New("source file is required")
	}

	query := `SELECT id, date_and_time, phone_number, status_text, source_file, loaded_at
		 FROM call_records WHERE source_file = ?`
	args := []any{sourceFile}
	if loadedAfter != nil {
		query += ` AND loaded_at >= ?`
		args = append(args, loadedAfter.UTC())
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCallRecords(rows)
}

func scanCallRecords(rows *sql.Rows) ([]*models.CallRecord, error) {
	var records []*models.CallRecord
	for rows.Next() {
		rec := &models.CallRecord{}
		err := rows.Scan(&rec.ID, &rec.DateAndTime, &rec.PhoneNumber, &rec.StatusText, &rec.SourceFile, &rec.LoadedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
