package invite

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid is returned for malformed, tampered, or unsigned tokens.
	ErrInvalid = errors.New("invite token invalid")
	// ErrExpired is returned for well-formed tokens past their expiry.
	ErrExpired = errors.New("invite token expired")
)

const issuer = "muster"

// maxTTL caps invite lifetime for events far in the future.
const maxTTL = 30 * 24 * time.Hour

type claims struct {
	jwt.RegisteredClaims
	EventID int64 `json:"event_id"`
}

// Service mints and resolves signed invite tokens. A token grants access to
// view and RSVP to a single event without being on the attendee list yet.
type Service struct {
	key []byte
	now func() time.Time
}

// NewService creates an invite service. An empty signing key disables
// invites.
func NewService(signingKey string) *Service {
	return &Service{key: []byte(signingKey), now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (s *Service) Enabled() bool {
	return len(s.key) > 0
}

// Mint issues an invite token for an event and reports when it expires.
// Tokens expire at the event start or after 30 days, whichever comes first.
func (s *Service) Mint(eventID int64, startsAt time.Time) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, fmt.Errorf("invite signing key not configured")
	}

	now := s.now().UTC()
	exp := now.Add(maxTTL)
	if startsAt.UTC().Before(exp) {
		exp = startsAt.UTC()
	}
	if !exp.After(now) {
		return "", time.Time{}, fmt.Errorf("event already started")
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		EventID: eventID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invite: %w", err)
	}
	return signed, exp, nil
}

// Resolve validates a token and returns the event id it grants access to.
func (s *Service) Resolve(token string) (int64, error) {
	if !s.Enabled() {
		return 0, ErrInvalid
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpired
		}
		return 0, ErrInvalid
	}

	if c.EventID <= 0 || c.ID == "" {
		return 0, ErrInvalid
	}
	return c.EventID, nil
}
