package mw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tabmarks/tabmarks/internal/logger"
	"github.com/tabmarks/tabmarks/internal/session"
)

type ctxKey int

const sessionKey ctxKey = 0

// SessionReader resolves the session carried by a request. Satisfied by
// *session.Manager; tests substitute a stub.
type SessionReader interface {
	FromRequest(r *http.Request) (*session.Session, error)
}

// WithSession attaches a session to the context the way RequireSession
// does. Exported for handler tests.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok
}

// RequireSession guards API routes: requests without a valid session get
// 401, everything else proceeds with the session on the context.
func RequireSession(sessions SessionReader, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.FromRequest(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					log.Warn("session lookup failed", logger.Error(err))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireSessionPage guards browser destinations: no session means a
// redirect to the unauthenticated landing route, never an error.
func RequireSessionPage(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.FromRequest(r)
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RedirectAuthenticated sends signed-in users from the login landing
// back to the app.
func RedirectAuthenticated(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := sessions.FromRequest(r); err == nil {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
