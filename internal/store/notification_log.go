package store

import (
	"database/sql"
	"fmt"
	"time"
)

// NotificationLogStore records which notifications went out so each one
// fires at most once per (user, kind, reference).
type NotificationLogStore struct {
	db *sql.DB
}

func NewNotificationLogStore(db *sql.DB) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

func (s *NotificationLogStore) RecordSent(userID int64, kind string, refID int64) error {
	// sent_at is bound here rather than defaulted so CleanupSent compares
	// timestamps in one format.
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO notification_log (user_id, kind, ref_id, sent_at) VALUES (?, ?, ?, ?)`,
		userID, kind, refID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record sent notification: %w", err)
	}
	return nil
}

func (s *NotificationLogStore) WasSent(userID int64, kind string, refID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notification_log WHERE user_id = ? AND kind = ? AND ref_id = ?`,
		userID, kind, refID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes log rows older than the given time.
func (s *NotificationLogStore) CleanupSent(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM notification_log WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup notification log: %w", err)
	}
	return nil
}
