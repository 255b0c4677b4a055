package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrReauthRequired is returned when a mailbox can no longer be used until its owner links it again
var ErrReauthRequired = errors.New("googleauth: mailbox needs to be re-linked")

// fallbackLifetime is used when the token endpoint doesn't say how long a token lives
const fallbackLifetime = time.Hour

// CredentialStore is the part of the database the TokenProvider reads and writes
type CredentialStore interface {
	GetMailAccountByID(ctx context.Context, id string) (data.MailAccount, error)
	UpdateMailAccountToken(ctx context.Context, id string, accessToken string, refreshToken string, expiry int64) error
	SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error
}

// Refresher exchanges a refresh token for a new access token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenProvider hands out usable access tokens for linked mailboxes
type TokenProvider struct {
	store     CredentialStore
	refresher Refresher
	now       func() time.Time
	flights   singleflight.Group
}

// NewTokenProvider returns a TokenProvider using the wall clock
func NewTokenProvider(store CredentialStore, refresher Refresher) *TokenProvider {
	return &TokenProvider{
		store:     store,
		refresher: refresher,
		now:       time.Now,
	}
}

// AccessToken returns a valid access token for acct. A stored token that hasn't expired is returned
// without any network call. Otherwise the token is refreshed, at most once at a time per account.
// When the refresh fails the account is flagged as needing re-authentication and
// ErrReauthRequired is returned.
func (p *TokenProvider) AccessToken(ctx context.Context, acct data.MailAccount) (string, error) {
	if acct.NeedsReauth {
		return "", ErrReauthRequired
	}

	if acct.TokenValid(p.now()) {
		return acct.AccessToken, nil
	}

	// the flight outlives any single caller so it must not inherit their cancellation
	flightCtx := context.WithoutCancel(ctx)

	v, err, _ := p.flights.Do(acct.ID, func() (interface{}, error) {
		return p.refresh(flightCtx, acct)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (p *TokenProvider) refresh(ctx context.Context, acct data.MailAccount) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RefreshTimeout)
	defer cancel()

	// another request or instance may have refreshed since acct was read
	current, err := p.store.GetMailAccountByID(ctx, acct.ID)
	switch {
	case errors.Is(err, data.ErrNotFound):
		return "", ErrReauthRequired
	case err != nil:
		slog.Warn("TokenProvider: failed to reload account, using caller's copy", "account_id", acct.ID, "error", err)
	case current.NeedsReauth:
		return "", ErrReauthRequired
	case current.TokenValid(p.now()):
		return current.AccessToken, nil
	default:
		acct = current
	}

	if acct.RefreshToken == "" {
		p.markReauth(ctx, acct.ID)
		return "", fmt.Errorf("%w: no refresh token stored", ErrReauthRequired)
	}

	tok, err := p.refresher.Refresh(ctx, acct.RefreshToken)
	if err != nil {
		slog.Info("TokenProvider: refresh failed", "account_id", acct.ID, "error", err)
		p.markReauth(ctx, acct.ID)
		return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	refreshToken := acct.RefreshToken
	if tok.RefreshToken != "" {
		refreshToken = tok.RefreshToken
	}

	expiry := p.expiry(tok)

	err = p.store.UpdateMailAccountToken(ctx, acct.ID, tok.AccessToken, refreshToken, expiry.Unix())
	if err != nil {
		slog.Error("TokenProvider: failed to persist refreshed token", "account_id", acct.ID, "error", err)
	}

	metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()

	return tok.AccessToken, nil
}

// expiry is now plus the lifetime the token endpoint reported
func (p *TokenProvider) expiry(tok *oauth2.Token) time.Time {
	if secs, ok := expiresIn(tok); ok {
		return p.now().Add(time.Duration(secs) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return p.now().Add(fallbackLifetime)
}

func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

func (p *TokenProvider) markReauth(ctx context.Context, id string) {
	metrics.TokenRefreshes.WithLabelValues("failed").Inc()

	err := p.store.SetMailAccountNeedsReauth(ctx, id, true)
	if err != nil {
		slog.Error("TokenProvider: failed to flag account for re-authentication", "account_id", id, "error", err)
	}
}
