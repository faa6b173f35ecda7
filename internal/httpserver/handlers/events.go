package handlers

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tabmarks/tabmarks/internal/domain"
	"github.com/tabmarks/tabmarks/internal/httpserver/deps"
	"github.com/tabmarks/tabmarks/internal/httpserver/mw"
	"github.com/tabmarks/tabmarks/internal/logger"
)

// eventMessage is one frame on the tab sync socket. The first frame is
// always a snapshot; after that, inserts and deletes as they are
// applied to the identity's view.
type eventMessage struct {
	Type      string             `json:"type"` // "snapshot" | "insert" | "delete"
	Bookmarks []*domain.Bookmark `json:"bookmarks,omitempty"`
	Bookmark  *domain.Bookmark   `json:"bookmark,omitempty"`
	ID        string             `json:"id,omitempty"`
}

// Events streams the identity's bookmark changes to one browser tab.
// The connection holds a reference on the view, so at least one open
// tab keeps the feed subscription alive.
func Events(d deps.Deps) http.HandlerFunc {
	patterns := originPatterns(d.AllowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := mw.SessionFromContext(r.Context())

		view, err := d.Views.Acquire(r.Context(), sess.Subject)
		if err != nil {
			writeError(w, http.StatusBadGateway, "bookmarks are unavailable, try again")
			return
		}
		defer d.Views.Release(view)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: patterns,
		})
		if err != nil {
			d.Logger.Warn("websocket accept failed", logger.Error(err))
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream ended")

		events, cancel := view.Watch()
		defer cancel()

		// The tab never sends application data; CloseRead gives us a
		// context that cancels when it goes away.
		ctx := conn.CloseRead(r.Context())

		if err := wsjson.Write(ctx, conn, eventMessage{
			Type:      "snapshot",
			Bookmarks: view.Snapshot(),
		}); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// View torn down (logout or idle sweep): tell the
					// tab to reconnect rather than sit on stale state.
					conn.Close(websocket.StatusGoingAway, "view closed")
					return
				}
				var msg eventMessage
				switch ev.Kind {
				case domain.EventInsert:
					msg = eventMessage{Type: "insert", Bookmark: ev.Bookmark}
				case domain.EventDelete:
					msg = eventMessage{Type: "delete", ID: ev.ID}
				default:
					continue
				}
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					return
				}
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

// originPatterns turns configured CORS origins into websocket origin
// host patterns ("https://a.example" -> "a.example").
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}
