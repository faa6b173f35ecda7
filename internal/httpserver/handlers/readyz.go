package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready only when Redis answers: without the store there
// is nothing to serve.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := d.RedisClient.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{
				Ready: false,
				Error: "redis unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
