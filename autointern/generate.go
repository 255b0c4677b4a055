package autointern

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/emailgenerator"
	"github.com/haydenwoodhead/autointern/resume"
)

// GenerateEmail writes an email from the template matching the caller's goal
func (s *Server) GenerateEmail(w http.ResponseWriter, r *http.Request) {
	var in emailgenerator.TemplateInput
	if !decodeJSON(w, r, &in) {
		return
	}

	e, err := s.eg.Template(in)
	if err != nil {
		slog.Error("GenerateEmail: failed to generate email", "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to generate email")
		return
	}

	returnJSONResult(w, r, e)
}

// GenerateSmartEmail writes a personalised email for a company and position
func (s *Server) GenerateSmartEmail(w http.ResponseWriter, r *http.Request) {
	var in emailgenerator.SmartInput
	if !decodeJSON(w, r, &in) {
		return
	}

	e, err := s.eg.Smart(r.Context(), in)
	if errors.Is(err, emailgenerator.ErrMissingFields) {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "Missing required fields")
		return
	} else if err != nil {
		slog.Error("GenerateSmartEmail: failed to generate email", "user_id", userID(r), "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to generate email")
		return
	}

	returnJSONResult(w, r, e)
}

// EnhanceResume rewrites the caller's resume. It needs an active subscription.
func (s *Server) EnhanceResume(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	var in resume.Request
	if !decodeJSON(w, r, &in) {
		return
	}

	sub, err := s.db.GetSubscriptionByUserID(r.Context(), id)
	if err != nil && !errors.Is(err, data.ErrNotFound) {
		slog.Error("EnhanceResume: failed to get subscription", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to enhance resume")
		return
	}

	if !sub.Active() {
		returnJSONError(w, r, http.StatusForbidden, CodeSubscriptionRequired, "Premium subscription required for Resume Builder")
		return
	}

	res, err := s.resume.Enhance(r.Context(), id, in)
	if errors.Is(err, resume.ErrMissingFields) {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "Resume text and answers are required")
		return
	} else if err != nil {
		slog.Error("EnhanceResume: failed to enhance resume", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to enhance resume")
		return
	}

	returnJSONResult(w, r, res)
}
