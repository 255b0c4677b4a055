// Package googleauth links Google mailboxes with OAuth and keeps their access tokens fresh.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Scopes requested when linking a mailbox
const (
	ScopeGmailSend = "https://www.googleapis.com/auth/gmail.send"
	ScopeUserEmail = "https://www.googleapis.com/auth/userinfo.email"
)

// Google endpoints
const (
	DefaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL    = "https://oauth2.googleapis.com/token"
	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// RefreshTimeout bounds a single call to the token endpoint
const RefreshTimeout = 15 * time.Second

// Config holds the OAuth client settings. The URL fields default to Google's endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// Client performs the OAuth calls against Google
type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// New returns a Client for cfg
func New(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{ScopeGmailSend, ScopeUserEmail},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  &http.Client{Timeout: RefreshTimeout},
	}
}

// Configured reports whether client credentials were supplied
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// Scopes returns the requested scopes as a space separated list
func (c *Client) Scopes() string {
	return strings.Join(c.oauth.Scopes, " ")
}

// AuthCodeURL returns the consent page url. Offline access and a forced consent prompt make
// Google hand out a refresh token on every link.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Exchange swaps an authorization code for tokens
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("googleauth: failed to exchange code: %w", err)
	}
	return tok, nil
}

// Refresh runs the refresh token grant. Any non 2xx answer or a response without an
// access token is an error.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("googleauth: failed to refresh token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("googleauth: refresh response missing access_token")
	}

	return tok, nil
}

type userInfo struct {
	Email string `json:"email"`
}

// FetchEmail returns the address of the mailbox that owns accessToken
func (c *Client) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("googleauth: failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("googleauth: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("googleauth: userinfo returned HTTP %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("googleauth: failed to decode userinfo: %w", err)
	}

	if info.Email == "" {
		return "", fmt.Errorf("googleauth: userinfo response has no email")
	}

	return info.Email, nil
}
