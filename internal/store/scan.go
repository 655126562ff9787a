package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Scan is one recorded decode event.
type Scan struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Device    int       `json:"device"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ScanRepository provides access to the scan history.
type ScanRepository struct {
	s *Store
}

// Scans returns the scan repository for this store.
func (s *Store) Scans() *ScanRepository {
	return &ScanRepository{s: s}
}

// Create inserts a scan. A missing ID or timestamp is filled in.
func (r *ScanRepository) Create(ctx context.Context, scan *Scan) error {
	if scan.Type == "" || scan.Content == "" {
		return errors.New("scan requires type and content")
	}
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = time.Now()
	}
	scan.ScannedAt = scan.ScannedAt.Truncate(time.Millisecond)

	_, err := r.s.db.ExecContext(ctx, r.s.rebind(
		`INSERT INTO scans (id, session_id, device, code_type, content, scanned_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		scan.ID, scan.SessionID, scan.Device, scan.Type, scan.Content, scan.ScannedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// Get retrieves a scan by its ID.
func (r *ScanRepository) Get(ctx context.Context, id string) (*Scan, error) {
	row := r.s.db.QueryRowContext(ctx, r.s.rebind(
		`SELECT id, session_id, device, code_type, content, scanned_at
		 FROM scans WHERE id = ?`),
		id,
	)

	scan, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return scan, nil
}

// List returns the most recent scans, newest first. A non-positive limit
// means DefaultListLimit.
func (r *ScanRepository) List(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.s.db.QueryContext(ctx, r.s.rebind(
		`SELECT id, session_id, device, code_type, content, scanned_at
		 FROM scans ORDER BY scanned_at DESC, id DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read scan: %w", err)
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// Count returns the number of recorded scans.
func (r *ScanRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

// DeleteAll removes every scan and returns how many were removed.
func (r *ScanRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.s.db.ExecContext(ctx, `DELETE FROM scans`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete scans: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*Scan, error) {
	s := &Scan{}
	var scannedAt int64
	if err := row.Scan(&s.ID, &s.SessionID, &s.Device, &s.Type, &s.Content, &scannedAt); err != nil {
		return nil, err
	}
	s.ScannedAt = time.UnixMilli(scannedAt)
	return s, nil
}
