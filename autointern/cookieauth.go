package autointern

import (
	"fmt"
	"net/http"

	"github.com/gorilla/context"
	"github.com/gorilla/sessions"
)

// Session Related constants
const sessionKey = "autointern"
const userIDKey = "user_id"

type ctxKey int

const userIDCtxKey ctxKey = 0

type session struct {
	UserID string
	IsNew  bool
	cookie *sessions.Session
	r      *http.Request
}

func (s *session) SetUserID(userID string, w http.ResponseWriter) error {
	s.UserID = userID
	s.cookie.Values[userIDKey] = userID
	err := s.cookie.Save(s.r, w)
	if err != nil {
		return fmt.Errorf("cookie - failed to save user id: %w", err)
	}
	return nil
}

func (s *session) Delete(w http.ResponseWriter) error {
	s.cookie.Options.MaxAge = -1
	err := s.cookie.Save(s.r, w)
	if err != nil {
		return fmt.Errorf("cookie - failed to delete cookie: %w", err)
	}
	return nil
}

func (s *Server) getSessionFromCookie(r *http.Request) session {
	cookie, _ := s.sessionStore.Get(r, sessionKey)

	session := session{
		cookie: cookie,
		r:      r,
		IsNew:  true,
	}

	if !cookie.IsNew {
		id, ok := cookie.Values[userIDKey].(string)
		if ok && id != "" {
			session.UserID = id
			session.IsNew = false
		}
	}

	return session
}

// RequireSession rejects requests without a signed in user and stores the user id for handlers
func (s *Server) RequireSession(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := s.getSessionFromCookie(r)
		if session.IsNew {
			returnJSONError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "Unauthorized")
			return
		}

		// mux hands us a copy of the request so ClearHandler in main never sees this entry
		defer context.Clear(r)

		context.Set(r, userIDCtxKey, session.UserID)
		h.ServeHTTP(w, r)
	})
}

// userID returns the id stored by RequireSession
func userID(r *http.Request) string {
	id, _ := context.Get(r, userIDCtxKey).(string)
	return id
}
