package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/handlers"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	// The login surface is the only unauthenticated mutation path,
	// keep it rate limited per client IP.
	limited := r.With(httprate.LimitByIP(10, time.Minute))
	limited.Get("/login/start", handlers.LoginStart(d))
	limited.Get("/auth/callback", handlers.AuthCallback(d))

	r.Post("/logout", handlers.Logout(d))
}
