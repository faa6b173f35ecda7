package handlers

import (
	"net/http"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/logger"
)

// LoginStart kicks off the OIDC auth-code flow.
func LoginStart(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Sessions.BeginLogin(w, r)
	}
}

// AuthCallback finishes the flow. Any failure sends the browser back to
// the login landing; details stay in the log.
func AuthCallback(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := d.Sessions.CompleteLogin(w, r)
		if err != nil {
			d.Logger.Warn("login failed", logger.Error(err))
			http.Redirect(w, r, "/login?error=login_failed", http.StatusFound)
			return
		}
		d.Logger.Info("login completed", logger.String("subject", sess.Subject))
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// Logout destroys the session and drops the identity's bookmark view so
// the stale subscription stops immediately.
func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sess, err := d.Sessions.FromRequest(r); err == nil {
			d.Views.Drop(sess.Subject)
		}
		if err := d.Sessions.Destroy(w, r); err != nil {
			d.Logger.Warn("logout failed", logger.Error(err))
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}
