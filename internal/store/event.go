package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jwhitden/muster/internal/model"
	"github.com/jwhitden/muster/internal/rsvp"
)

const eventCols = `id, organizer_id, title, description, location, starts_at, max_attendees, waitlist_enabled, created_at, updated_at`

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var maxAttendees sql.NullInt64
	var waitlistInt int

	err := scanner.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.Location,
		&e.StartsAt, &maxAttendees, &waitlistInt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if maxAttendees.Valid {
		n := int(maxAttendees.Int64)
		e.MaxAttendees = &n
	}
	e.WaitlistEnabled = waitlistInt != 0
	return &e, nil
}

func (s *EventStore) Create(organizerID int64, title, description, location string, startsAt time.Time, maxAttendees *int, waitlistEnabled bool) (*model.Event, error) {
	var max sql.NullInt64
	if maxAttendees != nil {
		max = sql.NullInt64{Int64: int64(*maxAttendees), Valid: true}
	}
	var waitlistInt int
	if waitlistEnabled {
		waitlistInt = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO events (organizer_id, title, description, location, starts_at, max_attendees, waitlist_enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		organizerID, title, description, location, startsAt.UTC(), max, waitlistInt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(
		`SELECT `+eventCols+` FROM events WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event %d: %w", id, err)
	}
	return e, nil
}

func (s *EventStore) List() ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT ` + eventCols + ` FROM events ORDER BY starts_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ListStartingBetween returns events whose start time falls in [from, to),
// used by the reminder scheduler.
func (s *EventStore) ListStartingBetween(from, to time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE starts_at >= ? AND starts_at < ? ORDER BY starts_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query upcoming events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *EventStore) Update(id int64, title, description, location string, startsAt time.Time, maxAttendees *int, waitlistEnabled bool) (*model.Event, error) {
	var max sql.NullInt64
	if maxAttendees != nil {
		max = sql.NullInt64{Int64: int64(*maxAttendees), Valid: true}
	}
	var waitlistInt int
	if waitlistEnabled {
		waitlistInt = 1
	}

	result, err := s.db.Exec(
		`UPDATE events SET title = ?, description = ?, location = ?, starts_at = ?, max_attendees = ?, waitlist_enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		title, description, location, startsAt.UTC(), max, waitlistInt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	return nil
}

// Descriptor resolves the capacity configuration the status engine gates
// transitions on. Nil means the event does not exist.
func (s *EventStore) Descriptor(eventID int64) (*rsvp.EventDescriptor, error) {
	e, err := s.GetByID(eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return &rsvp.EventDescriptor{
		EventID:         e.ID,
		OrganizerID:     e.OrganizerID,
		MaxAttendees:    e.MaxAttendees,
		WaitlistEnabled: e.WaitlistEnabled,
		StartsAt:        e.StartsAt,
	}, nil
}
