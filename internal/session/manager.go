package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tabmarks/tabmarks/internal/logger"
)

// stateCookie carries the CSRF state between /login/start and the
// provider callback. Short-lived on purpose.
const (
	stateCookie    = "tabmarks_oauth_state"
	stateCookieTTL = 10 * time.Minute
)

// Options configures the session manager.
type Options struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	CookieName   string
	Secure       bool
	TTL          time.Duration
	Store        Store
	Logger       logger.Logger
}

// Manager runs the OIDC auth-code flow and resolves the session cookie
// on incoming requests.
type Manager struct {
	store      Store
	verifier   *oidc.IDTokenVerifier
	oauth      oauth2.Config
	issuer     string
	cookieName string
	secure     bool
	ttl        time.Duration
	log        logger.Logger
}

// NewManager discovers the OIDC provider. Fails fast when the issuer is
// unreachable so misconfiguration surfaces at startup.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	provider, err := oidc.NewProvider(ctx, opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", opts.Issuer, err)
	}

	return &Manager{
		store:    opts.Store,
		verifier: provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		oauth: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  opts.RedirectURL,
			Scopes:       opts.Scopes,
		},
		issuer:     opts.Issuer,
		cookieName: opts.CookieName,
		secure:     opts.Secure,
		ttl:        opts.TTL,
		log:        opts.Logger,
	}, nil
}

// BeginLogin sends the browser to the provider's consent screen.
func (m *Manager) BeginLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, m.oauth.AuthCodeURL(state), http.StatusFound)
}

// CompleteLogin handles the provider callback: state check, code
// exchange, ID token verification, then a fresh server-side session.
func (m *Manager) CompleteLogin(w http.ResponseWriter, r *http.Request) (*Session, error) {
	ctx := r.Context()

	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" || stateC.Value != r.URL.Query().Get("state") {
		return nil, errors.New("oauth state mismatch")
	}
	clearCookie(w, stateCookie, m.secure)

	token, err := m.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("token response carries no id_token")
	}
	idToken, err := m.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Subject:   idToken.Subject,
		Email:     claims.Email,
		Provider:  m.issuer,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.SaveSession(ctx, sess, m.ttl); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	m.log.Info("session created",
		logger.String("subject", sess.Subject),
		logger.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// FromRequest is the point-in-time session read. ErrNoSession when the
// cookie is missing, unknown or expired.
func (m *Manager) FromRequest(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	return m.store.GetSession(r.Context(), c.Value)
}

// Destroy ends the session: server-side record deleted, cookie cleared.
// Destroying an absent session is a no-op.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(m.cookieName)
	if err == nil && c.Value != "" {
		if err := m.store.DeleteSession(r.Context(), c.Value); err != nil {
			return err
		}
	}
	clearCookie(w, m.cookieName, m.secure)
	return nil
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
