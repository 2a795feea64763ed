package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"guardiq-worker-go/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

const (
	// DefaultListLimit is used when List is called with a non-positive limit
	DefaultListLimit = 50
	MaxListLimit     = 1000

	// createdAtLayout is fixed width so text order matches time order
	createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Insert stores one dispatch attempt. A missing id is generated.
func (s *Store) Insert(ctx context.Context, record models.AlertRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.TrackIDs == nil {
		record.TrackIDs = []int64{}
	}

	trackIDs, err := json.Marshal(record.TrackIDs)
	if err != nil {
		return fmt.Errorf("failed to encode track ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, reason, caption, status, error, track_ids, frame_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Reason, record.Caption, string(record.Status), record.Error,
		string(trackIDs), record.FrameID, record.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", record.ID, err)
	}
	return nil
}

// Get returns one record by id
func (s *Store) Get(ctx context.Context, id string) (models.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, reason, caption, status, error, track_ids, frame_id, created_at
		FROM alerts WHERE id = ?`, id)

	record, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AlertRecord{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return record, err
}

// List returns the most recent records, newest first
func (s *Store) List(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reason, caption, status, error, track_ids, frame_id, created_at
		FROM alerts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	records := []models.AlertRecord{}
	for rows.Next() {
		record, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountByStatus returns the number of stored attempts per status
func (s *Store) CountByStatus(ctx context.Context) (map[models.AlertStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := map[models.AlertStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[models.AlertStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (models.AlertRecord, error) {
	var (
		record    models.AlertRecord
		status    string
		trackIDs  string
		createdAt string
	)
	if err := row.Scan(&record.ID, &record.Reason, &record.Caption, &status, &record.Error, &trackIDs, &record.FrameID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, err
		}
		return record, fmt.Errorf("failed to scan alert: %w", err)
	}

	record.Status = models.AlertStatus(status)
	if err := json.Unmarshal([]byte(trackIDs), &record.TrackIDs); err != nil {
		return record, fmt.Errorf("failed to decode track ids of alert %s: %w", record.ID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return record, fmt.Errorf("failed to parse created_at of alert %s: %w", record.ID, err)
	}
	record.CreatedAt = t
	return record, nil
}
