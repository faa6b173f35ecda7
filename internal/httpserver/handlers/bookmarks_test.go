package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabmarks/tabmarks/internal/domain"
	"github.com/tabmarks/tabmarks/internal/feed"
	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
	"github.com/tabmarks/tabmarks/internal/logger"
	"github.com/tabmarks/tabmarks/internal/reconciler"
	"github.com/tabmarks/tabmarks/internal/session"
)

// memStore is a minimal reconciler.Store for handler tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*domain.Bookmark
	seq     int
	inserts int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*domain.Bookmark)}
}

func (s *memStore) ListBookmarks(_ context.Context, owner string) ([]*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Bookmark
	for _, b := range s.records {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) InsertBookmark(_ context.Context, b *domain.Bookmark) (*domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	s.seq++
	stored := *b
	stored.CreatedAt = time.Unix(int64(s.seq), 0).UTC()
	s.records[stored.ID] = &stored
	return &stored, nil
}

func (s *memStore) DeleteBookmark(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[id]
	if !ok || b.Owner != owner {
		return domain.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) seed(owner, id, title, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[id] = &domain.Bookmark{
		ID: id, Owner: owner, Title: title, URL: url,
		CreatedAt: time.Unix(int64(s.seq), 0).UTC(),
	}
}

// nullSub satisfies reconciler.Subscription without ever delivering.
type nullSub struct {
	events   chan domain.Event
	statuses chan feed.Status
	once     sync.Once
}

func newNullSub() *nullSub {
	return &nullSub{
		events:   make(chan domain.Event),
		statuses: make(chan feed.Status),
	}
}

func (s *nullSub) Events() <-chan domain.Event  { return s.events }
func (s *nullSub) Statuses() <-chan feed.Status { return s.statuses }

func (s *nullSub) Close() error {
	s.once.Do(func() {
		close(s.events)
		close(s.statuses)
	})
	return nil
}

func testDeps(t *testing.T, store *memStore) deps.Deps {
	t.Helper()
	views := reconciler.NewManager(reconciler.ManagerOptions{
		Store: store,
		Subscribe: func(ctx context.Context, owner string) (reconciler.Subscription, error) {
			return newNullSub(), nil
		},
		FallbackDelay: time.Millisecond,
		IdleTTL:       time.Minute,
		SweepInterval: time.Minute,
		Logger:        logger.Nop(),
	})
	t.Cleanup(views.Stop)

	return deps.Deps{
		Logger: logger.Nop(),
		Views:  views,
	}
}

func authedRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	sess := &session.Session{ID: "s-1", Subject: "user-1", Email: "u@example.com"}
	return r.WithContext(mw.WithSession(r.Context(), sess))
}

func TestListBookmarks(t *testing.T) {
	store := newMemStore()
	store.seed("user-1", "1", "A", "https://a.example")
	store.seed("user-2", "2", "B", "https://b.example")
	d := testDeps(t, store)

	rec := httptest.NewRecorder()
	ListBookmarks(d)(rec, authedRequest(http.MethodGet, "/api/bookmarks", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []*domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1, "only the identity's own records")
	assert.Equal(t, "1", got[0].ID)
}

func TestCreateBookmark(t *testing.T) {
	store := newMemStore()
	d := testDeps(t, store)

	rec := httptest.NewRecorder()
	CreateBookmark(d)(rec, authedRequest(http.MethodPost, "/api/bookmarks",
		`{"title":"Example","url":"https://a.example"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.Bookmark
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "user-1", got.Owner)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateBookmarkValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty title", body: `{"title":"","url":"https://a.example"}`},
		{name: "empty url", body: `{"title":"A","url":""}`},
		{name: "bad url", body: `{"title":"A","url":"not-a-url"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			d := testDeps(t, store)

			rec := httptest.NewRecorder()
			CreateBookmark(d)(rec, authedRequest(http.MethodPost, "/api/bookmarks", tt.body))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Zero(t, store.inserts, "validation failures must not reach the store")
		})
	}
}

func TestCreateBookmarkMalformedBody(t *testing.T) {
	d := testDeps(t, newMemStore())

	rec := httptest.NewRecorder()
	CreateBookmark(d)(rec, authedRequest(http.MethodPost, "/api/bookmarks", `{"title":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBookmark(t *testing.T) {
	store := newMemStore()
	store.seed("user-1", "1", "A", "https://a.example")
	d := testDeps(t, store)

	r := chi.NewRouter()
	r.Delete("/api/bookmarks/{id}", DeleteBookmark(d))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/bookmarks/1", ""))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDeleteBookmarkWrongOwner(t *testing.T) {
	store := newMemStore()
	store.seed("user-2", "theirs", "B", "https://b.example")
	d := testDeps(t, store)

	r := chi.NewRouter()
	r.Delete("/api/bookmarks/{id}", DeleteBookmark(d))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/bookmarks/theirs", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code, "cross-identity delete must fail")
}

// stubSessions implements mw.SessionReader.
type stubSessions struct {
	sess *session.Session
	err  error
}

func (s *stubSessions) FromRequest(*http.Request) (*session.Session, error) {
	return s.sess, s.err
}

func TestRequireSessionRejectsAnonymous(t *testing.T) {
	h := mw.RequireSession(&stubSessions{err: session.ErrNoSession}, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without a session")
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSessionPageRedirects(t *testing.T) {
	h := mw.RequireSessionPage(&stubSessions{err: session.ErrNoSession})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without a session")
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}
