package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/rsvp"
)

// attendeeCols resolves display name and age group from the linked family
// profile when one exists; the attendee's own stored values are the
// fallback once the profile is gone.
const attendeeCols = `a.id, a.event_id, a.user_id, a.attendee_type,
	COALESCE(fp.name, a.name), COALESCE(fp.age_group, a.age_group),
	a.relationship, a.family_profile_id, a.rsvp_status, a.waitlisted_at,
	a.created_at, a.updated_at`

const attendeeFrom = `FROM attendees a
	LEFT JOIN family_profiles fp ON fp.id = a.family_profile_id`

type AttendeeStore struct {
	db *sql.DB
}

func NewAttendeeStore(db *sql.DB) *AttendeeStore {
	return &AttendeeStore{db: db}
}

func scanAttendee(scanner interface{ Scan(...any) error }) (*model.Attendee, error) {
	var a model.Attendee
	var userID, profileID sql.NullInt64
	var waitlistedAt sql.NullTime

	err := scanner.Scan(&a.ID, &a.EventID, &userID, &a.Type, &a.Name, &a.AgeGroup,
		&a.Relationship, &profileID, &a.Status, &waitlistedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		a.UserID = &userID.Int64
	}
	if profileID.Valid {
		a.FamilyProfileID = &profileID.Int64
	}
	if waitlistedAt.Valid {
		t := waitlistedAt.Time
		a.WaitlistedAt = &t
	}
	return &a, nil
}

func (s *AttendeeStore) Get(id int64) (*model.Attendee, error) {
	a, err := scanAttendee(s.db.QueryRow(
		`SELECT `+attendeeCols+` `+attendeeFrom+` WHERE a.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query attendee %d: %w", id, err)
	}
	return a, nil
}

func (s *AttendeeStore) List(eventID int64) ([]model.Attendee, error) {
	rows, err := s.db.Query(
		`SELECT `+attendeeCols+` `+attendeeFrom+`
		 WHERE a.event_id = ?
		 ORDER BY a.created_at ASC, a.id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// Create inserts one attendee record. The duplicate-primary rule and, when
// maxGoing is non-negative, the capacity rule are re-checked inside the
// transaction so concurrent writers cannot slip past an advisory read. The
// partial unique index on (event_id, user_id) backstops the primary check.
func (s *AttendeeStore) Create(a *model.Attendee, maxGoing int) (*model.Attendee, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if a.Type == model.AttendeePrimary && a.UserID != nil {
		var n int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM attendees
			 WHERE event_id = ? AND user_id = ? AND attendee_type = 'primary'`,
			a.EventID, *a.UserID,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("check primary: %w", err)
		}
		if n > 0 {
			return nil, rsvp.ErrDuplicatePrimary
		}
	}

	if a.Status == model.StatusGoing && maxGoing >= 0 {
		going, err := countGoing(tx, a.EventID, 0)
		if err != nil {
			return nil, err
		}
		if going >= maxGoing {
			return nil, rsvp.ErrCapacityExceeded
		}
	}

	var userID, profileID sql.NullInt64
	if a.UserID != nil {
		userID = sql.NullInt64{Int64: *a.UserID, Valid: true}
	}
	if a.FamilyProfileID != nil {
		profileID = sql.NullInt64{Int64: *a.FamilyProfileID, Valid: true}
	}
	var waitlistedAt sql.NullTime
	if a.Status == model.StatusWaitlisted {
		waitlistedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO attendees (event_id, user_id, attendee_type, name, age_group, relationship, family_profile_id, rsvp_status, waitlisted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.EventID, userID, a.Type, a.Name, a.AgeGroup, a.Relationship, profileID, a.Status, waitlistedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, rsvp.ErrDuplicatePrimary
		}
		return nil, fmt.Errorf("insert attendee: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.Get(id)
}

// UpdateStatuses applies a batch of status changes in one transaction,
// re-counting going attendees before each guarded change. Either every
// change commits or none does; a capacity violation rolls back the batch
// with rsvp.ErrCapacityExceeded. Rows come back in change order.
func (s *AttendeeStore) UpdateStatuses(eventID int64, changes []rsvp.StatusChange, maxGoing int) ([]model.Attendee, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, change := range changes {
		var current model.RSVPStatus
		err := tx.QueryRow(
			`SELECT rsvp_status FROM attendees WHERE id = ? AND event_id = ?`,
			change.AttendeeID, eventID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("attendee %d: %w", change.AttendeeID, rsvp.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("query attendee %d: %w", change.AttendeeID, err)
		}

		if change.Status == model.StatusGoing && maxGoing >= 0 {
			going, err := countGoing(tx, eventID, change.AttendeeID)
			if err != nil {
				return nil, err
			}
			if going >= maxGoing {
				return nil, rsvp.ErrCapacityExceeded
			}
		}

		var waitlistedAt sql.NullTime
		if change.Status == model.StatusWaitlisted {
			if current == model.StatusWaitlisted {
				continue // keep the original queue position
			}
			waitlistedAt = sql.NullTime{Time: now, Valid: true}
		}
		_, err = tx.Exec(
			`UPDATE attendees SET rsvp_status = ?, waitlisted_at = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			change.Status, waitlistedAt, change.AttendeeID,
		)
		if err != nil {
			return nil, fmt.Errorf("update attendee %d: %w", change.AttendeeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	updated := make([]model.Attendee, 0, len(changes))
	for _, change := range changes {
		a, err := s.Get(change.AttendeeID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("attendee %d: %w", change.AttendeeID, rsvp.ErrNotFound)
		}
		updated = append(updated, *a)
	}
	return updated, nil
}

// SetProfileLink points an attendee at a family profile and overwrites the
// stored name and age group with the profile's current values.
func (s *AttendeeStore) SetProfileLink(attendeeID, profileID int64, name, ageGroup string) (*model.Attendee, error) {
	result, err := s.db.Exec(
		`UPDATE attendees SET family_profile_id = ?, name = ?, age_group = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		profileID, name, ageGroup, attendeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("link attendee %d: %w", attendeeID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("attendee %d: %w", attendeeID, rsvp.ErrNotFound)
	}
	return s.Get(attendeeID)
}

func (s *AttendeeStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM attendees WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attendee %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attendee %d: %w", id, rsvp.ErrNotFound)
	}
	return nil
}

// Counts tallies the attendee set by status. MaxAttendees is left for the
// caller to fill from the event.
func (s *AttendeeStore) Counts(eventID int64) (*model.EventCapacity, error) {
	rows, err := s.db.Query(
		`SELECT rsvp_status, COUNT(*) FROM attendees WHERE event_id = ? GROUP BY rsvp_status`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("count attendees: %w", err)
	}
	defer rows.Close()

	var c model.EventCapacity
	for rows.Next() {
		var status model.RSVPStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		switch status {
		case model.StatusGoing:
			c.GoingCount = n
		case model.StatusNotGoing:
			c.NotGoingCount = n
		case model.StatusPending:
			c.PendingCount = n
		case model.StatusWaitlisted:
			c.WaitlistedCount = n
		}
	}
	return &c, rows.Err()
}

// Waitlist returns the waitlisted attendees oldest first; a row's 1-based
// position is its index + 1.
func (s *AttendeeStore) Waitlist(eventID int64) ([]model.Attendee, error) {
	rows, err := s.db.Query(
		`SELECT `+attendeeCols+` `+attendeeFrom+`
		 WHERE a.event_id = ? AND a.rsvp_status = 'waitlisted'
		 ORDER BY a.waitlisted_at ASC, a.id ASC`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query waitlist: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// ListByUser returns a user's attendee rows across events, newest event
// first.
func (s *AttendeeStore) ListByUser(userID int64) ([]model.Attendee, error) {
	rows, err := s.db.Query(
		`SELECT `+attendeeCols+` `+attendeeFrom+`
		 WHERE a.user_id = ?
		 ORDER BY a.event_id DESC, a.id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendees by user: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// countGoing counts going attendees for an event, excluding one row when
// excludeID is non-zero so a row re-targeting going does not count itself.
func countGoing(tx *sql.Tx, eventID, excludeID int64) (int, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM attendees WHERE event_id = ? AND rsvp_status = 'going' AND id != ?`,
		eventID, excludeID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count going: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
