package googleauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/data/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func jsonResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newProvider(db *inmemory.InMemory, tokenURL string) *TokenProvider {
	p := NewTokenProvider(db, New(Config{ClientID: "cid", ClientSecret: "secret", TokenURL: tokenURL}))
	p.now = func() time.Time { return fixedNow }
	return p
}

func saveAccount(t *testing.T, db *inmemory.InMemory, a data.MailAccount) data.MailAccount {
	t.Helper()
	stored, err := db.UpsertMailAccount(context.Background(), a)
	require.NoError(t, err)
	return stored
}

func TestAccessToken_ValidTokenNoNetwork(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint should not be called")
	})

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{
		ID:           "acct-1",
		UserID:       "user-1",
		Address:      "me@gmail.com",
		AccessToken:  "still-good",
		RefreshToken: "rt",
		TokenExpiry:  fixedNow.Add(10 * time.Minute).Unix(),
	})

	tok, err := newProvider(db, srv.URL).AccessToken(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "still-good", tok)
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestAccessToken_RefreshesExpiredToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		jsonResponse(w, http.StatusOK, `{"access_token":"at-new","expires_in":3599,"token_type":"Bearer"}`)
	})

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{
		ID:           "acct-1",
		UserID:       "user-1",
		Address:      "me@gmail.com",
		AccessToken:  "at-old",
		RefreshToken: "rt-old",
		TokenExpiry:  fixedNow.Add(-time.Minute).Unix(),
	})

	tok, err := newProvider(db, srv.URL).AccessToken(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, "at-new", tok)
	assert.Equal(t, int32(1), srv.calls.Load())

	stored, err := db.GetMailAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-new", stored.AccessToken)
	assert.Equal(t, "rt-old", stored.RefreshToken, "refresh token kept when none returned")
	assert.Equal(t, fixedNow.Add(3599*time.Second).Unix(), stored.TokenExpiry)
	assert.False(t, stored.NeedsReauth)
}

func TestAccessToken_PersistsRotatedRefreshToken(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, `{"access_token":"at-new","refresh_token":"rt-new","expires_in":3600}`)
	})

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{ID: "acct-1", UserID: "u", Address: "me@gmail.com", RefreshToken: "rt-old"})

	_, err := newProvider(db, srv.URL).AccessToken(context.Background(), acct)
	require.NoError(t, err)

	stored, err := db.GetMailAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "rt-new", stored.RefreshToken)
}

func TestAccessToken_RefreshFailureFlagsAccount(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "invalid grant", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "missing access token", status: http.StatusOK, body: `{"expires_in":3600}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				jsonResponse(w, test.status, test.body)
			})

			db := inmemory.GetInMemoryDB()
			acct := saveAccount(t, db, data.MailAccount{
				ID:           "acct-1",
				UserID:       "user-1",
				Address:      "me@gmail.com",
				AccessToken:  "stale",
				RefreshToken: "rt",
				TokenExpiry:  fixedNow.Add(-time.Hour).Unix(),
			})

			tok, err := newProvider(db, srv.URL).AccessToken(context.Background(), acct)
			assert.Empty(t, tok)
			assert.True(t, errors.Is(err, ErrReauthRequired), "got %v", err)

			stored, err := db.GetMailAccountByID(context.Background(), acct.ID)
			require.NoError(t, err)
			assert.True(t, stored.NeedsReauth)
			assert.Equal(t, "stale", stored.AccessToken)
		})
	}
}

func TestAccessToken_TransportFailureFlagsAccount(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL
	srv.Close()

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{ID: "acct-1", UserID: "u", Address: "me@gmail.com", RefreshToken: "rt"})

	_, err := newProvider(db, tokenURL).AccessToken(context.Background(), acct)
	assert.True(t, errors.Is(err, ErrReauthRequired))

	stored, err := db.GetMailAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, stored.NeedsReauth)
}

func TestAccessToken_NeedsReauthShortCircuits(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint should not be called")
	})

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{ID: "acct-1", UserID: "u", Address: "me@gmail.com", RefreshToken: "rt"})
	require.NoError(t, db.SetMailAccountNeedsReauth(context.Background(), acct.ID, true))
	acct.NeedsReauth = true

	_, err := newProvider(db, srv.URL).AccessToken(context.Background(), acct)
	assert.Equal(t, ErrReauthRequired, err)
}

func TestAccessToken_UsesTokenRefreshedElsewhere(t *testing.T) {
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint should not be called")
	})

	db := inmemory.GetInMemoryDB()
	stale := saveAccount(t, db, data.MailAccount{
		ID:           "acct-1",
		UserID:       "u",
		Address:      "me@gmail.com",
		AccessToken:  "old",
		RefreshToken: "rt",
		TokenExpiry:  fixedNow.Add(-time.Minute).Unix(),
	})
	require.NoError(t, db.UpdateMailAccountToken(context.Background(), stale.ID, "fresh", "rt", fixedNow.Add(time.Hour).Unix()))

	tok, err := newProvider(db, srv.URL).AccessToken(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestAccessToken_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	srv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		jsonResponse(w, http.StatusOK, `{"access_token":"at-new","expires_in":3600}`)
	})

	db := inmemory.GetInMemoryDB()
	acct := saveAccount(t, db, data.MailAccount{ID: "acct-1", UserID: "u", Address: "me@gmail.com", RefreshToken: "rt"})
	p := newProvider(db, srv.URL)

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = p.AccessToken(context.Background(), acct)
		}(i)
	}

	// give every caller time to join the flight before the endpoint answers
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-new", tokens[i])
	}
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestAuthCodeURL(t *testing.T) {
	c := New(Config{ClientID: "cid", ClientSecret: "secret", RedirectURL: "https://autointern.test/api/v1/integrations/google/callback/"})

	u, err := url.Parse(c.AuthCodeURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "https://autointern.test/api/v1/integrations/google/callback/", q.Get("redirect_uri"))
	assert.Equal(t, ScopeGmailSend+" "+ScopeUserEmail, q.Get("scope"))
}

func TestExchangeAndFetchEmail(t *testing.T) {
	tokenSrv := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		jsonResponse(w, http.StatusOK, `{"access_token":"at","refresh_token":"rt","expires_in":3600}`)
	})

	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		jsonResponse(w, http.StatusOK, `{"id":"1","email":"me@gmail.com","verified_email":true}`)
	}))
	defer infoSrv.Close()

	c := New(Config{ClientID: "cid", ClientSecret: "secret", TokenURL: tokenSrv.URL, UserInfoURL: infoSrv.URL})

	tok, err := c.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)

	email, err := c.FetchEmail(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "me@gmail.com", email)

	_, err = c.FetchEmail(context.Background(), "wrong")
	assert.Error(t, err)
}
