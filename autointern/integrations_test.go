package autointern

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/data/inmemory"
	"github.com/haydenwoodhead/autointern/googleauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func callbackPath(v url.Values) string {
	return "/api/v1/integrations/google/callback/?" + v.Encode()
}

func assertDashboardRedirect(t *testing.T, rr *httptest.ResponseRecorder, key string, value string) {
	t.Helper()
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "autointern.example", loc.Host)
	assert.Equal(t, "/dashboard", loc.Path)
	assert.Equal(t, value, loc.Query().Get(key))
}

func TestServer_GoogleStart(t *testing.T) {
	mGA := new(MockGoogleAuth)
	mGA.On("Configured").Return(true)
	mGA.On("AuthCodeURL", mock.Anything).Return("https://accounts.example/consent")

	s := newTestServer(t, newMockDB(), Services{Google: mGA})

	rr := do(s, http.MethodPost, "/api/v1/integrations/google/start/", "", sessionCookie(t, s, "user-1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	res, _ := decodeResponse(t, rr)
	assert.Equal(t, map[string]interface{}{"authUrl": "https://accounts.example/consent"}, res.Result)

	// the state handed to google names the caller
	state := mGA.Calls[1].Arguments.String(0)
	id, err := s.tg.VerifyToken(state)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestServer_GoogleStart_NotConfigured(t *testing.T) {
	mGA := new(MockGoogleAuth)
	mGA.On("Configured").Return(false)

	s := newTestServer(t, newMockDB(), Services{Google: mGA})

	rr := do(s, http.MethodPost, "/api/v1/integrations/google/start/", "", sessionCookie(t, s, "user-1"))
	assertErrorCode(t, rr, http.StatusInternalServerError, CodeInternal)
	mGA.AssertNotCalled(t, "AuthCodeURL", mock.Anything)
}

func TestServer_GoogleCallback_Failures(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: fixedNow.Add(time.Hour)}

	tests := []struct {
		Name       string
		Query      func(s *Server) url.Values
		CookieUser string
		Setup      func(g *MockGoogleAuth, db *MockDatabase)
		Reason     string
	}{
		{
			Name:   "user denied consent",
			Query:  func(s *Server) url.Values { return url.Values{"error": {"access_denied"}} },
			Reason: linkDenied,
		},
		{
			Name:   "missing code",
			Query:  func(s *Server) url.Values { return url.Values{"state": {"abc"}} },
			Reason: linkInvalidCallback,
		},
		{
			Name:       "forged state",
			Query:      func(s *Server) url.Values { return url.Values{"code": {"c"}, "state": {"user-1.00.99"}} },
			CookieUser: "user-1",
			Reason:     linkInvalidState,
		},
		{
			Name:   "no session",
			Query:  validCallback("user-1"),
			Reason: linkUnauthorized,
		},
		{
			Name:       "state for another user",
			Query:      validCallback("user-2"),
			CookieUser: "user-1",
			Reason:     linkUnauthorized,
		},
		{
			Name:       "not configured",
			Query:      validCallback("user-1"),
			CookieUser: "user-1",
			Setup: func(g *MockGoogleAuth, db *MockDatabase) {
				g.On("Configured").Return(false)
			},
			Reason: linkNotConfigured,
		},
		{
			Name:       "exchange fails",
			Query:      validCallback("user-1"),
			CookieUser: "user-1",
			Setup: func(g *MockGoogleAuth, db *MockDatabase) {
				g.On("Configured").Return(true)
				g.On("Exchange", mock.Anything, "the-code").Return(nil, errors.New("invalid_grant"))
			},
			Reason: linkTokenExchange,
		},
		{
			Name:       "userinfo fails",
			Query:      validCallback("user-1"),
			CookieUser: "user-1",
			Setup: func(g *MockGoogleAuth, db *MockDatabase) {
				g.On("Configured").Return(true)
				g.On("Exchange", mock.Anything, "the-code").Return(tok, nil)
				g.On("FetchEmail", mock.Anything, "at").Return("", errors.New("HTTP 401"))
			},
			Reason: linkUserInfo,
		},
		{
			Name:       "storage fails",
			Query:      validCallback("user-1"),
			CookieUser: "user-1",
			Setup: func(g *MockGoogleAuth, db *MockDatabase) {
				g.On("Configured").Return(true)
				g.On("Scopes").Return("scope")
				g.On("Exchange", mock.Anything, "the-code").Return(tok, nil)
				g.On("FetchEmail", mock.Anything, "at").Return("jane@gmail.com", nil)
				db.On("UpsertMailAccount", mock.Anything, mock.Anything).Return(data.MailAccount{}, errors.New("disk full"))
			},
			Reason: linkStorage,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			mGA := new(MockGoogleAuth)
			mDB := newMockDB()
			if test.Setup != nil {
				test.Setup(mGA, mDB)
			}

			s := newTestServer(t, mDB, Services{Google: mGA})

			var c *http.Cookie
			if test.CookieUser != "" {
				c = sessionCookie(t, s, test.CookieUser)
			}

			rr := do(s, http.MethodGet, callbackPath(test.Query(s)), "", c)
			assertDashboardRedirect(t, rr, "error", test.Reason)

			mGA.AssertExpectations(t)
			mDB.AssertExpectations(t)
		})
	}
}

func validCallback(user string) func(s *Server) url.Values {
	return func(s *Server) url.Values {
		state, _ := s.tg.NewToken(user)
		return url.Values{"code": {"the-code"}, "state": {state}}
	}
}

// TestServer_GoogleCallback links a mailbox against fake google endpoints
func TestServer_GoogleCallback(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "the-code", r.PostForm.Get("code"))
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"token_type":"Bearer"}`))
		case "/userinfo":
			assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"email":"jane@gmail.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer google.Close()

	ga := googleauth.New(googleauth.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  testConfig.URL + "/api/v1/integrations/google/callback/",
		AuthURL:      google.URL + "/auth",
		TokenURL:     google.URL + "/token",
		UserInfoURL:  google.URL + "/userinfo",
	})

	db := inmemory.GetInMemoryDB()
	s := newTestServer(t, db, Services{Google: ga})
	c := sessionCookie(t, s, "user-1")

	// an earlier link that went stale is replaced
	_, err := db.UpsertMailAccount(context.Background(), data.MailAccount{ID: "old", UserID: "user-1", Address: "jane@gmail.com", NeedsReauth: true})
	require.NoError(t, err)

	rr := do(s, http.MethodGet, callbackPath(validCallback("user-1")(s)), "", c)
	assertDashboardRedirect(t, rr, "success", "gmail_connected")

	acct, err := db.GetMailAccountByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@gmail.com", acct.Address)
	assert.Equal(t, "at-1", acct.AccessToken)
	assert.Equal(t, "rt-1", acct.RefreshToken)
	assert.False(t, acct.NeedsReauth)
	assert.Equal(t, ga.Scopes(), acct.Scopes)
	assert.Greater(t, acct.TokenExpiry, time.Now().Unix())

	rr = do(s, http.MethodGet, "/api/v1/integrations/google/", "", c)
	require.Equal(t, http.StatusOK, rr.Code)
	res, _ := decodeResponse(t, rr)
	assert.Equal(t, map[string]interface{}{"connected": true, "address": "jane@gmail.com", "needsReauth": false}, res.Result)
}

func TestServer_GoogleStatus(t *testing.T) {
	mDB := newMockDB()
	mDB.On("GetMailAccountByUserID", mock.Anything, "linked").Return(data.MailAccount{ID: "a1", Address: "jane@gmail.com", NeedsReauth: true}, nil)
	mDB.On("GetMailAccountByUserID", mock.Anything, "unlinked").Return(data.MailAccount{}, data.ErrNotFound)
	mDB.On("GetMailAccountByUserID", mock.Anything, "broken").Return(data.MailAccount{}, errors.New("boom"))

	s := newTestServer(t, mDB, Services{})

	rr := do(s, http.MethodGet, "/api/v1/integrations/google/", "", sessionCookie(t, s, "linked"))
	res, _ := decodeResponse(t, rr)
	assert.Equal(t, map[string]interface{}{"connected": true, "address": "jane@gmail.com", "needsReauth": true}, res.Result)

	rr = do(s, http.MethodGet, "/api/v1/integrations/google/", "", sessionCookie(t, s, "unlinked"))
	res, _ = decodeResponse(t, rr)
	assert.Equal(t, map[string]interface{}{"connected": false, "needsReauth": false}, res.Result)

	assertErrorCode(t, do(s, http.MethodGet, "/api/v1/integrations/google/", "", sessionCookie(t, s, "broken")), http.StatusInternalServerError, CodeInternal)
}

func TestServer_GoogleDisconnect(t *testing.T) {
	ctx := context.Background()
	db := inmemory.GetInMemoryDB()
	s := newTestServer(t, db, Services{})
	c := sessionCookie(t, s, "user-1")

	_, err := db.UpsertMailAccount(ctx, data.MailAccount{ID: "a1", UserID: "user-1", Address: "jane@gmail.com"})
	require.NoError(t, err)

	rr := do(s, http.MethodDelete, "/api/v1/integrations/google/", "", c)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	_, err = db.GetMailAccountByUserID(ctx, "user-1")
	assert.Equal(t, data.ErrNotFound, err)

	assertErrorCode(t, do(s, http.MethodDelete, "/api/v1/integrations/google/", "", c), http.StatusNotFound, CodeNotFound)
}
