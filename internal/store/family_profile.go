package store

import (
	"database/sql"
	"fmt"

	"github.com/jwhitden/muster/internal/model"
)

type FamilyProfileStore struct {
	db *sql.DB
}

func NewFamilyProfileStore(db *sql.DB) *FamilyProfileStore {
	return &FamilyProfileStore{db: db}
}

const familyProfileCols = `id, user_id, name, age_group, created_at, updated_at`

func scanFamilyProfile(scanner interface{ Scan(...any) error }) (*model.FamilyProfile, error) {
	var p model.FamilyProfile
	err := scanner.Scan(&p.ID, &p.UserID, &p.Name, &p.AgeGroup, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *FamilyProfileStore) Create(userID int64, name, ageGroup string) (*model.FamilyProfile, error) {
	result, err := s.db.Exec(
		`INSERT INTO family_profiles (user_id, name, age_group) VALUES (?, ?, ?)`,
		userID, name, ageGroup,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(id)
}

func (s *FamilyProfileStore) Get(id int64) (*model.FamilyProfile, error) {
	p, err := scanFamilyProfile(s.db.QueryRow(
		`SELECT `+familyProfileCols+` FROM family_profiles WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query family profile %d: %w", id, err)
	}
	return p, nil
}

func (s *FamilyProfileStore) ListByUser(userID int64) ([]model.FamilyProfile, error) {
	rows, err := s.db.Query(
		`SELECT `+familyProfileCols+` FROM family_profiles WHERE user_id = ? ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query family profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.FamilyProfile
	for rows.Next() {
		p, err := scanFamilyProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *FamilyProfileStore) FindByName(userID int64, name string) (*model.FamilyProfile, error) {
	p, err := scanFamilyProfile(s.db.QueryRow(
		`SELECT `+familyProfileCols+` FROM family_profiles WHERE user_id = ? AND name = ?`,
		userID, name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find family profile: %w", err)
	}
	return p, nil
}

func (s *FamilyProfileStore) Update(id, userID int64, name, ageGroup string) (*model.FamilyProfile, error) {
	result, err := s.db.Exec(
		`UPDATE family_profiles SET name = ?, age_group = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		name, ageGroup, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update family profile %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.Get(id)
}

// Delete removes a profile. Attendees linked to it fall back to their own
// stored name and age group (the FK nulls out).
func (s *FamilyProfileStore) Delete(id, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM family_profiles WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete family profile %d: %w", id, err)
	}
	return nil
}
