package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession means the request carries no valid session. It is a
// routing signal (redirect to the login flow), not a failure.
var ErrNoSession = errors.New("no session")

// Session is the server-side record behind the session cookie.
type Session struct {
	// ID is the opaque token stored in the cookie.
	ID string `json:"id"`

	// Subject is the identity the provider vouched for. Bookmark
	// ownership is scoped by it.
	Subject string `json:"subject"`

	// Email and Provider are profile attributes, display only.
	Email    string `json:"email"`
	Provider string `json:"provider"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists sessions. Implemented by the Redis store.
type Store interface {
	SaveSession(ctx context.Context, sess *Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
}
