package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
	"github.com/tabmarks/tabmarks/internal/logger"
)

//go:embed web/*.html
var webFS embed.FS

var pageTemplates = template.Must(template.ParseFS(webFS, "web/*.html"))

type indexData struct {
	Email string
}

// Index is the authenticated landing: the bookmark app shell. The
// session is guaranteed by the page middleware.
func Index(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.SessionFromContext(r.Context())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplates.ExecuteTemplate(w, "index.html", indexData{Email: sess.Email}); err != nil {
			d.Logger.Error("failed to render index", logger.Error(err))
		}
	}
}

// Login is the unauthenticated landing.
func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplates.ExecuteTemplate(w, "login.html", nil); err != nil {
			d.Logger.Error("failed to render login", logger.Error(err))
		}
	}
}
