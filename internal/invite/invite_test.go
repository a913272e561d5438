package invite

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMintAndResolve(t *testing.T) {
	svc := NewService("test-signing-key")

	token, _, err := svc.Mint(42, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	eventID, err := svc.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if eventID != 42 {
		t.Errorf("eventID = %d, want 42", eventID)
	}
}

func TestResolveTampered(t *testing.T) {
	svc := NewService("test-signing-key")

	token, _, err := svc.Mint(42, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := svc.Resolve(tampered); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve tampered = %v, want ErrInvalid", err)
	}
}

func TestResolveWrongKey(t *testing.T) {
	minter := NewService("key-one")
	verifier := NewService("key-two")

	token, _, err := minter.Mint(7, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if _, err := verifier.Resolve(token); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve with wrong key = %v, want ErrInvalid", err)
	}
}

func TestResolveExpired(t *testing.T) {
	svc := NewService("test-signing-key")
	start := time.Now()

	token, _, err := svc.Mint(7, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	// Move the clock past the event start.
	svc.now = func() time.Time { return start.Add(2 * time.Hour) }

	if _, err := svc.Resolve(token); !errors.Is(err, ErrExpired) {
		t.Errorf("Resolve expired = %v, want ErrExpired", err)
	}
}

func TestMintCapsExpiryAtEventStart(t *testing.T) {
	svc := NewService("test-signing-key")
	start := time.Now()
	svc.now = func() time.Time { return start }

	token, expiresAt, err := svc.Mint(7, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !expiresAt.Equal(start.Add(time.Hour).UTC()) {
		t.Errorf("expiresAt = %v, want event start %v", expiresAt, start.Add(time.Hour).UTC())
	}

	// Valid just before the event starts.
	svc.now = func() time.Time { return start.Add(59 * time.Minute) }
	if _, err := svc.Resolve(token); err != nil {
		t.Errorf("Resolve before event start: %v", err)
	}

	// Invalid after.
	svc.now = func() time.Time { return start.Add(61 * time.Minute) }
	if _, err := svc.Resolve(token); !errors.Is(err, ErrExpired) {
		t.Errorf("Resolve after event start = %v, want ErrExpired", err)
	}
}

func TestMintPastEvent(t *testing.T) {
	svc := NewService("test-signing-key")

	if _, _, err := svc.Mint(7, time.Now().Add(-time.Hour)); err == nil {
		t.Error("expected error minting invite for a past event")
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewService("")

	if svc.Enabled() {
		t.Error("Enabled should be false with empty key")
	}
	if _, _, err := svc.Mint(7, time.Now().Add(time.Hour)); err == nil {
		t.Error("expected error minting without signing key")
	}
	if _, err := svc.Resolve("anything"); !errors.Is(err, ErrInvalid) {
		t.Error("expected ErrInvalid resolving without signing key")
	}
}

func TestTokensAreUnique(t *testing.T) {
	svc := NewService("test-signing-key")
	starts := time.Now().Add(48 * time.Hour)

	a, _, err := svc.Mint(42, starts)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	b, _, err := svc.Mint(42, starts)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if a == b {
		t.Error("expected distinct tokens for repeated mints")
	}
	if strings.Count(a, ".") != 2 {
		t.Errorf("token %q is not a three-part JWT", a)
	}
}
