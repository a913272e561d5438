package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jwhitden/muster/internal/model"
)

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Create(filename, s3Key string) (*model.Snapshot, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO snapshots (filename, s3_key, status, started_at) VALUES (?, ?, ?, ?)`,
		filename, s3Key, model.SnapshotStatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SnapshotStore) GetByID(id int64) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, filename, s3_key, size_bytes, status, error_message, started_at, completed_at, created_at, updated_at
		 FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Filename, &snap.S3Key, &snap.SizeBytes, &snap.Status, &errMsg, &startedAt, &completedAt, &snap.CreatedAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	snap.ErrorMessage = errMsg.String
	if startedAt.Valid {
		snap.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		snap.CompletedAt = &completedAt.Time
	}
	return snap, nil
}

func (s *SnapshotStore) List(limit int) ([]model.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, filename, s3_key, size_bytes, status, error_message, started_at, completed_at, created_at, updated_at
		 FROM snapshots ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var errMsg sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&snap.ID, &snap.Filename, &snap.S3Key, &snap.SizeBytes, &snap.Status, &errMsg, &startedAt, &completedAt, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.ErrorMessage = errMsg.String
		if startedAt.Valid {
			snap.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			snap.CompletedAt = &completedAt.Time
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(id int64, status model.SnapshotStatus, errorMsg string) error {
	_, err := s.db.Exec(
		`UPDATE snapshots SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) UpdateCompleted(id, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.SnapshotStatusCompleted, sizeBytes, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark snapshot completed: %w", err)
	}
	return nil
}

// CompletedBeyond returns the completed snapshots older than the newest
// keep rows, oldest first, so retention can prune them.
func (s *SnapshotStore) CompletedBeyond(keep int) ([]model.Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, filename, s3_key, size_bytes, status, error_message, started_at, completed_at, created_at, updated_at
		 FROM snapshots WHERE status = ?
		 ORDER BY created_at DESC LIMIT -1 OFFSET ?`,
		model.SnapshotStatusCompleted, keep,
	)
	if err != nil {
		return nil, fmt.Errorf("list prunable snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var errMsg sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&snap.ID, &snap.Filename, &snap.S3Key, &snap.SizeBytes, &snap.Status, &errMsg, &startedAt, &completedAt, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.ErrorMessage = errMsg.String
		if startedAt.Valid {
			snap.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			snap.CompletedAt = &completedAt.Time
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LatestCompleted() (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, filename, s3_key, size_bytes, status, error_message, started_at, completed_at, created_at, updated_at
		 FROM snapshots WHERE status = ? ORDER BY completed_at DESC LIMIT 1`,
		model.SnapshotStatusCompleted,
	).Scan(&snap.ID, &snap.Filename, &snap.S3Key, &snap.SizeBytes, &snap.Status, &errMsg, &startedAt, &completedAt, &snap.CreatedAt, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.ErrorMessage = errMsg.String
	if startedAt.Valid {
		snap.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		snap.CompletedAt = &completedAt.Time
	}
	return snap, nil
}
