package autointern

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/context"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const FAKEHANDLERRESP = "fake handler"

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

var testConfig = Config{
	Key:          "testtest1234testtest1234",
	URL:          "https://autointern.example",
	AdminKey:     "admin-secret",
	PlatformFrom: "Auto Intern <noreply@mg.example.com>",
	Developing:   true,
}

func newMockDB() *MockDatabase {
	mDB := new(MockDatabase)
	mDB.On("Start").Return(nil)
	return mDB
}

func newTestServer(t *testing.T, db data.Database, svc Services) *Server {
	t.Helper()
	s, err := New(testConfig, db, svc)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

// sessionCookie returns a cookie signing in userID
func sessionCookie(t *testing.T, s *Server, userID string) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	sess := s.getSessionFromCookie(r)
	require.NoError(t, sess.SetUserID(userID, rr))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func do(s *Server, method string, path string, body string, c *http.Cookie) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	if c != nil {
		r.AddCookie(c)
	}

	s.Router.ServeHTTP(rr, r)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) (Response, map[string]interface{}) {
	t.Helper()
	var res Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res), rr.Body.String())

	errs, _ := res.Errors.(map[string]interface{})
	return res, errs
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rr.Code, rr.Body.String())

	res, errs := decodeResponse(t, rr)
	assert.False(t, res.Success)
	require.NotNil(t, errs, rr.Body.String())
	assert.Equal(t, code, errs["code"])
	assert.NotEmpty(t, errs["msg"])
}

func fakeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(FAKEHANDLERRESP))
}

func TestServer_Ping(t *testing.T) {
	s := newTestServer(t, newMockDB(), Services{})

	rr := do(s, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PONG", rr.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, newMockDB(), Services{})

	rr := do(s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestServer_RequireSession(t *testing.T) {
	s := newTestServer(t, newMockDB(), Services{})

	paths := []struct {
		Method string
		Path   string
	}{
		{http.MethodGet, "/api/v1/me/"},
		{http.MethodPut, "/api/v1/me/onboarding/"},
		{http.MethodPost, "/api/v1/generate-email/"},
		{http.MethodPost, "/api/v1/generate-smart-email/"},
		{http.MethodPost, "/api/v1/resume-enhancements/"},
		{http.MethodPost, "/api/v1/integrations/google/start/"},
		{http.MethodGet, "/api/v1/integrations/google/"},
		{http.MethodDelete, "/api/v1/integrations/google/"},
		{http.MethodPost, "/api/v1/email/send/"},
		{http.MethodGet, "/api/v1/email/sent/"},
		{http.MethodGet, "/api/v1/email/sent/1234/"},
		{http.MethodPost, "/api/v1/send-email/"},
	}

	for _, p := range paths {
		rr := do(s, p.Method, p.Path, "{}", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, p.Path)
		assert.JSONEq(t, `{"success":false,"errors":{"code":"UNAUTHENTICATED","msg":"Unauthorized"},"result":null,"meta":{"version":"dev","by":"Auto Intern"}}`, rr.Body.String(), p.Path)
	}
}

func TestServer_RequireSession_TamperedCookie(t *testing.T) {
	s := newTestServer(t, newMockDB(), Services{})

	c := sessionCookie(t, s, "user-1")
	c.Value = c.Value[:len(c.Value)-4] + "AAAA"

	rr := do(s, http.MethodGet, "/api/v1/me/", "", c)
	assertErrorCode(t, rr, http.StatusUnauthorized, CodeUnauthenticated)
}

func TestServer_RequireSession_ClearsRequestData(t *testing.T) {
	mDB := newMockDB()
	mDB.On("GetMailAccountByUserID", mock.Anything, "user-1").Return(data.MailAccount{}, data.ErrNotFound)

	s := newTestServer(t, mDB, Services{})
	c := sessionCookie(t, s, "user-1")
	h := context.ClearHandler(s.Router)

	context.Purge(0)

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/google/", nil)
		r.AddCookie(c)
		h.ServeHTTP(rr, r)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Equal(t, 0, context.Purge(0))
}
