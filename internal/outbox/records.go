package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const selectColumns = "id, job_id, endpoint, payload, attempts, last_status, last_outcome, created_at, updated_at"

// Save persists a new pending delivery and returns it.
func (s *Store) Save(ctx context.Context, jobID, endpoint string, payload []byte) (Record, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Record{}, errors.New("outbox save: endpoint required")
	}
	now := s.timestamp()
	res, err := s.exec(ctx,
		`INSERT INTO deliveries (job_id, endpoint, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, endpoint, payload, now, now)
	if err != nil {
		return Record{}, fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("delivery id: %w", err)
	}
	return s.Get(ctx, id)
}

// RecordAttempt increments the attempt count and stores the latest outcome.
func (s *Store) RecordAttempt(ctx context.Context, id int64, status int, outcome string) error {
	res, err := s.exec(ctx,
		`UPDATE deliveries SET attempts = attempts + 1, last_status = ?, last_outcome = ?, updated_at = ? WHERE id = ?`,
		status, outcome, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return requireRow(res, id)
}

// Remove deletes a record.
func (s *Store) Remove(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove delivery: %w", err)
	}
	return requireRow(res, id)
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM deliveries WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("delivery %d: %w", id, ErrNotFound)
	}
	return rec, err
}

// Pending lists all records in creation order.
func (s *Store) Pending(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM deliveries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec              Record
		created, updated string
	)
	if err := row.Scan(&rec.ID, &rec.JobID, &rec.Endpoint, &rec.Payload, &rec.Attempts,
		&rec.LastStatus, &rec.LastOutcome, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan delivery: %w", err)
	}
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func requireRow(res interface{ RowsAffected() (int64, error) }, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delivery %d: %w", id, ErrNotFound)
	}
	return nil
}
