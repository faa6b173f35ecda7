package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tabmarks/tabmarks/internal/domain"
	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
	"github.com/tabmarks/tabmarks/internal/logger"
	"github.com/tabmarks/tabmarks/internal/reconciler"
)

type createBookmarkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ListBookmarks serves the initial load: the identity's reconciled
// view, newest first.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.SessionFromContext(r.Context())

		view, err := d.Views.Acquire(r.Context(), sess.Subject)
		if err != nil {
			d.Logger.Error("bookmark view unavailable",
				logger.String("subject", sess.Subject), logger.Error(err))
			writeError(w, http.StatusBadGateway, "bookmarks are unavailable, try again")
			return
		}
		defer d.Views.Release(view)

		writeJSON(w, http.StatusOK, view.Snapshot())
	}
}

// CreateBookmark validates and inserts a bookmark for the identity.
// Validation failures never reach the store.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.SessionFromContext(r.Context())

		var req createBookmarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		view, err := d.Views.Acquire(r.Context(), sess.Subject)
		if err != nil {
			writeError(w, http.StatusBadGateway, "bookmarks are unavailable, try again")
			return
		}
		defer d.Views.Release(view)

		b, err := view.Create(r.Context(), req.Title, req.URL)
		if err != nil {
			status, msg := createErrorStatus(err)
			writeError(w, status, msg)
			return
		}

		d.Logger.Info("bookmark created",
			logger.String("subject", sess.Subject),
			logger.String("id", b.ID))
		writeJSON(w, http.StatusCreated, b)
	}
}

// DeleteBookmark removes one of the identity's bookmarks. A duplicate
// delete while one is in flight is accepted and ignored.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.SessionFromContext(r.Context())
		id := chi.URLParam(r, "id")

		view, err := d.Views.Acquire(r.Context(), sess.Subject)
		if err != nil {
			writeError(w, http.StatusBadGateway, "bookmarks are unavailable, try again")
			return
		}
		defer d.Views.Release(view)

		if err := view.Delete(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "bookmark not found")
			case errors.Is(err, reconciler.ErrClosed):
				writeError(w, http.StatusServiceUnavailable, "session view is gone, reload")
			default:
				d.Logger.Error("bookmark delete failed",
					logger.String("subject", sess.Subject),
					logger.String("id", id), logger.Error(err))
				writeError(w, http.StatusBadGateway, "delete failed, try again")
			}
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func createErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyTitle),
		errors.Is(err, domain.ErrEmptyURL),
		errors.Is(err, domain.ErrInvalidURL):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, reconciler.ErrClosed):
		return http.StatusServiceUnavailable, "session view is gone, reload"
	default:
		return http.StatusBadGateway, "create failed, try again"
	}
}
