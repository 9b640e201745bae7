// Package session keeps per-client state between requests: the timestamp
// the rate limiter compares against and the identity established by login.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// Session is the state held for one client cookie
type Session struct {
	ID string `json:"id"`

	// LastRequestTime is unix seconds with microsecond precision. Zero
	// means the session has not made a rate limited request yet.
	LastRequestTime float64 `json:"last_request_time,omitempty"`

	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// New creates an anonymous session with a random id
func New(ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsAuthenticated reports whether login has bound a user to the session
func (s *Session) IsAuthenticated() bool {
	return s.UserID != 0
}

// Unix converts a time to the float seconds stored in LastRequestTime
func Unix(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// Store is the key-value collaborator sessions live in
type Store interface {
	// Get returns ErrSessionNotFound for unknown ids and ErrSessionExpired
	// for sessions past ExpiresAt.
	Get(ctx context.Context, id string) (*Session, error)

	// Save creates or replaces the session.
	Save(ctx context.Context, s *Session) error

	// Touch moves ExpiresAt of a stored session without writing any other
	// field, so it cannot undo a concurrent Save.
	Touch(ctx context.Context, id string, expiresAt time.Time) error

	// Delete removes a session. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// CleanupExpired removes expired sessions and returns how many.
	CleanupExpired(ctx context.Context) (int, error)

	Close() error
}
