package store

import (
	"testing"

	"github.com/jwhitden/muster/internal/database"
	"github.com/jwhitden/muster/internal/model"
)

func setupUserTestDB(t *testing.T) *UserStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db)
}

func TestUserFirstAccountIsAdmin(t *testing.T) {
	us := setupUserTestDB(t)

	first, err := us.Create("alice@example.com", "Alice", "hash")
	if err != nil {
		t.Fatalf("create first user: %v", err)
	}
	if first.Role != model.RoleAdmin {
		t.Errorf("first role = %q, want admin", first.Role)
	}

	second, err := us.Create("bob@example.com", "Bob", "hash")
	if err != nil {
		t.Fatalf("create second user: %v", err)
	}
	if second.Role != model.RoleMember {
		t.Errorf("second role = %q, want member", second.Role)
	}
}

func TestUserDuplicateEmail(t *testing.T) {
	us := setupUserTestDB(t)

	if _, err := us.Create("alice@example.com", "Alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := us.Create("alice@example.com", "Alice Again", "hash"); err == nil {
		t.Error("duplicate email succeeded")
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := setupUserTestDB(t)

	created, _ := us.Create("alice@example.com", "Alice", "hash")

	got, err := us.GetByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("got = %+v, want id %d", got, created.ID)
	}
	if got.PasswordHash != "hash" {
		t.Errorf("password_hash = %q, want hash", got.PasswordHash)
	}

	missing, err := us.GetByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserUpdate(t *testing.T) {
	us := setupUserTestDB(t)

	created, _ := us.Create("alice@example.com", "Alice", "hash")

	updated, err := us.Update(created.ID, "alice@new.example.com", "Alice B")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Email != "alice@new.example.com" || updated.Name != "Alice B" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Role != model.RoleAdmin {
		t.Errorf("role = %q, update must not touch it", updated.Role)
	}
}

func TestUserDelete(t *testing.T) {
	us := setupUserTestDB(t)

	created, _ := us.Create("alice@example.com", "Alice", "hash")

	if err := us.Delete(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := us.GetByID(created.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
