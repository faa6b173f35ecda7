package domain

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation and lookup errors surfaced by the store and handlers.
var (
	ErrEmptyTitle = errors.New("bookmark title must not be empty")
	ErrEmptyURL   = errors.New("bookmark url must not be empty")
	ErrInvalidURL = errors.New("bookmark url must be a well-formed http(s) url")
	ErrNotFound   = errors.New("bookmark not found")
)

// Bookmark is a single saved link owned by one identity.
// Bookmarks are created by explicit user submission, never updated in
// place, and destroyed by explicit user deletion.
type Bookmark struct {
	// ID is the canonical unique identifier, assigned at creation.
	ID string `json:"id"`

	// Owner is the subject of the identity that created the bookmark.
	// Every store operation is scoped by it.
	Owner string `json:"owner"`

	// Title is the user-facing label. Never empty.
	Title string `json:"title"`

	// URL is the saved link. Well-formed http or https.
	URL string `json:"url"`

	// CreatedAt is assigned by the store at insert time and is
	// monotonically non-decreasing per owner.
	CreatedAt time.Time `json:"created_at"`
}

// NewBookmark validates the submitted fields and returns a record ready
// for insertion. CreatedAt is left zero; the store assigns it.
func NewBookmark(owner, title, rawURL string) (*Bookmark, error) {
	title = strings.TrimSpace(title)
	rawURL = strings.TrimSpace(rawURL)

	if title == "" {
		return nil, ErrEmptyTitle
	}
	if rawURL == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	return &Bookmark{
		ID:    uuid.NewString(),
		Owner: owner,
		Title: title,
		URL:   rawURL,
	}, nil
}
