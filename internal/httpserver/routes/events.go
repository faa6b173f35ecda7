package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/handlers"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
)

func init() { Register(registerEvents) }

// No timeout middleware here: the stream lives as long as the tab.
func registerEvents(r chi.Router, d deps.Deps) {
	r.With(mw.RequireSession(d.Sessions, d.Logger)).Get("/api/events", handlers.Events(d))
}
