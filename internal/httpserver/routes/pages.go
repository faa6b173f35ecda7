package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/handlers"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
)

func init() { Register(registerPages) }

// Two protected destinations: the app itself (session required) and the
// login landing (redirects signed-in users back to the app).
func registerPages(r chi.Router, d deps.Deps) {
	r.With(mw.RequireSessionPage(d.Sessions)).Get("/", handlers.Index(d))
	r.With(mw.RedirectAuthenticated(d.Sessions)).Get("/login", handlers.Login(d))
}
