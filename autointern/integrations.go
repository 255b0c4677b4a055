package autointern

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/metrics"
)

// Reasons passed back to the dashboard when linking fails
const (
	linkDenied          = "oauth_denied"
	linkInvalidCallback = "invalid_callback"
	linkInvalidState    = "invalid_state"
	linkUnauthorized    = "unauthorized"
	linkNotConfigured   = "oauth_config"
	linkTokenExchange   = "token_exchange"
	linkUserInfo        = "user_info"
	linkStorage         = "storage"
)

const profileFetchTimeout = 10 * time.Second

// GoogleStart returns the consent page url the browser should be sent to
func (s *Server) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if !s.google.Configured() {
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Google OAuth not configured")
		return
	}

	state, err := s.tg.NewToken(userID(r))
	if err != nil {
		slog.Error("GoogleStart: failed to create state", "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to start OAuth flow")
		return
	}

	returnJSONResult(w, r, struct {
		AuthURL string `json:"authUrl"`
	}{
		AuthURL: s.google.AuthCodeURL(state),
	})
}

func (s *Server) redirectToDashboard(w http.ResponseWriter, r *http.Request, key string, value string) {
	q := url.Values{}
	q.Set(key, value)
	http.Redirect(w, r, strings.TrimSuffix(s.cfg.URL, "/")+"/dashboard?"+q.Encode(), http.StatusFound)
}

// GoogleCallback finishes linking a mailbox. The outcome is reported by redirecting to the dashboard.
func (s *Server) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	fail := func(reason string) {
		s.redirectToDashboard(w, r, "error", reason)
	}

	q := r.URL.Query()

	if q.Get("error") != "" {
		fail(linkDenied)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		fail(linkInvalidCallback)
		return
	}

	stateUserID, err := s.tg.VerifyToken(state)
	if err != nil {
		slog.Info("GoogleCallback: rejected state", "error", err)
		fail(linkInvalidState)
		return
	}

	session := s.getSessionFromCookie(r)
	if session.IsNew || session.UserID != stateUserID {
		fail(linkUnauthorized)
		return
	}

	if !s.google.Configured() {
		fail(linkNotConfigured)
		return
	}

	tok, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		slog.Warn("GoogleCallback: code exchange failed", "user_id", stateUserID, "error", err)
		fail(linkTokenExchange)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), profileFetchTimeout)
	defer cancel()

	address, err := s.google.FetchEmail(ctx, tok.AccessToken)
	if err != nil {
		slog.Warn("GoogleCallback: failed to fetch mailbox address", "user_id", stateUserID, "error", err)
		fail(linkUserInfo)
		return
	}

	now := s.now()
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(time.Hour)
	}

	_, err = s.db.UpsertMailAccount(r.Context(), data.MailAccount{
		ID:           uuid.New().String(),
		UserID:       stateUserID,
		Address:      address,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  expiry.Unix(),
		Scopes:       s.google.Scopes(),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	})
	if err != nil {
		slog.Error("GoogleCallback: failed to store account", "user_id", stateUserID, "error", err)
		fail(linkStorage)
		return
	}

	metrics.AccountsLinked.Inc()

	s.redirectToDashboard(w, r, "success", "gmail_connected")
}

// GoogleStatus reports whether the caller has a linked mailbox
func (s *Server) GoogleStatus(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	out := struct {
		Connected   bool   `json:"connected"`
		Address     string `json:"address,omitempty"`
		NeedsReauth bool   `json:"needsReauth"`
	}{}

	acct, err := s.db.GetMailAccountByUserID(r.Context(), id)
	switch {
	case err == nil:
		out.Connected = true
		out.Address = acct.Address
		out.NeedsReauth = acct.NeedsReauth
	case !errors.Is(err, data.ErrNotFound):
		slog.Error("GoogleStatus: failed to get account", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to get integration status")
		return
	}

	returnJSONResult(w, r, out)
}

// GoogleDisconnect forgets the caller's linked mailbox
func (s *Server) GoogleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	acct, err := s.db.GetMailAccountByUserID(r.Context(), id)
	if err == nil {
		err = s.db.DeleteMailAccount(r.Context(), id, acct.ID)
	}

	if errors.Is(err, data.ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, CodeNotFound, "No Gmail account connected")
		return
	} else if err != nil {
		slog.Error("GoogleDisconnect: failed to delete account", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to disconnect account")
		return
	}

	returnJSONResult(w, r, nil)
}
