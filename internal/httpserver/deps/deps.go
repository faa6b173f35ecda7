package deps

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabmarks/tabmarks/internal/logger"
	"github.com/tabmarks/tabmarks/internal/reconciler"
	"github.com/tabmarks/tabmarks/internal/session"
)

// SessionManager is the session flow the handlers drive. Satisfied by
// *session.Manager; server tests substitute a stub.
type SessionManager interface {
	BeginLogin(w http.ResponseWriter, r *http.Request)
	CompleteLogin(w http.ResponseWriter, r *http.Request) (*session.Session, error)
	FromRequest(r *http.Request) (*session.Session, error)
	Destroy(w http.ResponseWriter, r *http.Request) error
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	Sessions       SessionManager      // cookie + OIDC session flow
	Views          *reconciler.Manager // per-identity bookmark views
	RedisClient    *redis.Client       // readiness ping only
	AllowedOrigins []string            // CORS + websocket origin patterns
}
