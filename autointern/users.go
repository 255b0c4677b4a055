package autointern

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/metrics"
)

type userOut struct {
	data.User
	Onboarding json.RawMessage `json:"onboarding,omitempty"`
}

type meOut struct {
	User            userOut            `json:"user"`
	Subscription    *data.Subscription `json:"subscription"`
	EmailsUsed      int                `json:"emailsUsed"`
	EmailLimit      int                `json:"emailLimit"`
	EmailsRemaining int                `json:"emailsRemaining"`
}

// CreateUser starts onboarding. It saves a new user and signs the caller in as them.
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	in.Name = strings.TrimSpace(in.Name)
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if in.Name == "" || err != nil {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "A name and a valid email address are required")
		return
	}

	now := s.now().Unix()
	u := data.User{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Email:     addr.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.SaveNewUser(r.Context(), u)
	if err != nil {
		slog.Error("CreateUser: failed to save user", "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	session := s.getSessionFromCookie(r)
	err = session.SetUserID(u.ID, w)
	if err != nil {
		slog.Error("CreateUser: failed to set session", "user_id", u.ID, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to create user")
		return
	}

	metrics.UsersCreated.Inc()

	returnJSONResult(w, r, userOut{User: u})
}

// GetMe returns the signed in user together with their plan usage for the current month
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	u, err := s.db.GetUserByID(r.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, CodeNotFound, "User not found")
		return
	} else if err != nil {
		slog.Error("GetMe: failed to get user", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to fetch user data")
		return
	}

	out := meOut{User: userOut{User: u}}
	if u.Onboarding != "" {
		out.User.Onboarding = json.RawMessage(u.Onboarding)
	}

	sub, err := s.db.GetSubscriptionByUserID(r.Context(), id)
	switch {
	case err == nil:
		out.Subscription = &sub
	case !errors.Is(err, data.ErrNotFound):
		slog.Error("GetMe: failed to get subscription", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to fetch user data")
		return
	}

	used, err := s.db.CountSentSince(r.Context(), id, data.ChannelPlatform, data.MonthStart(s.now()).Unix())
	if err != nil {
		slog.Error("GetMe: failed to count sent emails", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to fetch user data")
		return
	}

	out.EmailsUsed = used
	out.EmailLimit = sub.MonthlyLimit()
	out.EmailsRemaining = remaining(out.EmailLimit, used)

	returnJSONResult(w, r, out)
}

func remaining(limit int, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

// UpdateOnboarding stores the answers of the onboarding wizard. The body must be a JSON object.
func (s *Server) UpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "Failed to read request body")
		return
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "Onboarding data must be a JSON object")
		return
	}

	err = s.db.UpdateOnboarding(r.Context(), id, string(b), s.now().Unix())
	if errors.Is(err, data.ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, CodeNotFound, "User not found")
		return
	} else if err != nil {
		slog.Error("UpdateOnboarding: failed to save onboarding data", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to update onboarding data")
		return
	}

	returnJSONResult(w, r, nil)
}

// SetSubscription puts a user on a plan
func (s *Server) SetSubscription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userID"]

	var in struct {
		PlanName string `json:"planName"`
		Status   string `json:"status"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	if strings.TrimSpace(in.PlanName) == "" || strings.TrimSpace(in.Status) == "" {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "planName and status are required")
		return
	}

	_, err := s.db.GetUserByID(r.Context(), id)
	if errors.Is(err, data.ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, CodeNotFound, "User not found")
		return
	} else if err != nil {
		slog.Error("SetSubscription: failed to get user", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to save subscription")
		return
	}

	sub := data.Subscription{
		UserID:    id,
		PlanName:  strings.TrimSpace(in.PlanName),
		Status:    strings.TrimSpace(in.Status),
		UpdatedAt: s.now().Unix(),
	}

	err = s.db.SaveSubscription(r.Context(), sub)
	if err != nil {
		slog.Error("SetSubscription: failed to save subscription", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to save subscription")
		return
	}

	returnJSONResult(w, r, sub)
}
