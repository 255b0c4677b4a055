package autointern

import (
	"errors"
	"html"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/email"
	"github.com/haydenwoodhead/autointern/metrics"
	"github.com/haydenwoodhead/autointern/mimemessage"
	"github.com/haydenwoodhead/autointern/outbox"
)

type sentEmailOut struct {
	data.SendRecord
	SentAgo    string `json:"sentAgo,omitempty"`
	WebmailURL string `json:"webmailUrl,omitempty"`
}

func newSentEmailOut(rec data.SendRecord) sentEmailOut {
	out := sentEmailOut{SendRecord: rec}
	if rec.Channel == data.ChannelGmail && rec.RemoteThreadID != "" {
		out.WebmailURL = outbox.WebmailURL(rec.FromAddress, rec.RemoteThreadID)
	}
	return out
}

// SendEmail sends an email from the caller's linked Gmail account
func (s *Server) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req mimemessage.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.outbox.Send(r.Context(), userID(r), req)

	var oErr *outbox.Error
	if errors.As(err, &oErr) {
		if oErr.Status >= http.StatusInternalServerError {
			slog.Error("SendEmail: send failed", "user_id", userID(r), "kind", oErr.Kind, "error", oErr.Err)
		}
		returnJSONError(w, r, oErr.Status, string(oErr.Kind), oErr.Message)
		return
	} else if err != nil {
		slog.Error("SendEmail: send failed", "user_id", userID(r), "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to send email")
		return
	}

	returnJSONResult(w, r, res)
}

// SentEmails lists everything the caller has sent, newest first
func (s *Server) SentEmails(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	recs, err := s.db.GetSendRecordsByUserID(r.Context(), id)
	if err != nil {
		slog.Error("SentEmails: failed to get records", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to fetch sent emails")
		return
	}

	ago := data.GetSentDetails(recs, s.now())

	out := make([]sentEmailOut, 0, len(recs))
	for i, rec := range recs {
		o := newSentEmailOut(rec)
		o.SentAgo = ago[i]
		out = append(out, o)
	}

	returnJSONResult(w, r, out)
}

// SentEmail returns one of the caller's send records
func (s *Server) SentEmail(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	recordID := mux.Vars(r)["recordID"]

	rec, err := s.db.GetSendRecord(r.Context(), id, recordID)
	if errors.Is(err, data.ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, CodeNotFound, "Email record not found")
		return
	} else if err != nil {
		slog.Error("SentEmail: failed to get record", "user_id", id, "record_id", recordID, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to fetch email record")
		return
	}

	returnJSONResult(w, r, newSentEmailOut(rec))
}

type quickSendIn struct {
	Email          string `json:"email"`
	RecipientEmail string `json:"recipientEmail"`
	Subject        string `json:"subject"`
	TargetCompany  string `json:"targetCompany"`
}

// QuickSend sends a generated email from the platform's own domain. It counts towards the plan's monthly limit.
func (s *Server) QuickSend(w http.ResponseWriter, r *http.Request) {
	id := userID(r)

	var in quickSendIn
	if !decodeJSON(w, r, &in) {
		return
	}

	to, err := mail.ParseAddress(strings.TrimSpace(in.RecipientEmail))
	if err != nil || strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.Email) == "" {
		returnJSONError(w, r, http.StatusBadRequest, CodeValidation, "email, recipientEmail and subject are required")
		return
	}

	sub, err := s.db.GetSubscriptionByUserID(r.Context(), id)
	if err != nil && !errors.Is(err, data.ErrNotFound) {
		slog.Error("QuickSend: failed to get subscription", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to send email")
		return
	}

	if !sub.Active() {
		returnJSONError(w, r, http.StatusForbidden, CodeSubscriptionRequired, "No active subscription found")
		return
	}

	used, err := s.db.CountSentSince(r.Context(), id, data.ChannelPlatform, data.MonthStart(s.now()).Unix())
	if err != nil {
		slog.Error("QuickSend: failed to count sent emails", "user_id", id, "error", err)
		returnJSONError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to send email")
		return
	}

	limit := sub.MonthlyLimit()
	if used >= limit {
		returnJSONError(w, r, http.StatusForbidden, CodeLimitReached, "Email limit reached for this month")
		return
	}

	if s.platform == nil {
		returnJSONError(w, r, http.StatusServiceUnavailable, CodeInternal, "Email sending is not configured")
		return
	}

	msg := email.Message{
		From:    s.cfg.PlatformFrom,
		To:      to.Address,
		Subject: strings.TrimSpace(in.Subject),
	}
	msg.Text, msg.HTML = bodies(in.Email)

	now := s.now().Unix()
	rec := data.SendRecord{
		ID:            uuid.New().String(),
		UserID:        id,
		Channel:       data.ChannelPlatform,
		FromAddress:   msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		BodyText:      msg.Text,
		BodyHTML:      msg.HTML,
		TargetCompany: strings.TrimSpace(in.TargetCompany),
		CreatedAt:     now,
	}

	remoteID, err := s.platform.Send(r.Context(), msg)
	if err != nil {
		slog.Error("QuickSend: failed to send", "user_id", id, "error", err)

		rec.Status = data.StatusFailed
		rec.ErrorCode = string(outbox.KindSendFailed)
		rec.ErrorMessage = "Failed to send email"
		s.saveRecord(r, rec)
		metrics.EmailsSent.WithLabelValues(data.ChannelPlatform, data.StatusFailed, rec.ErrorCode).Inc()

		returnJSONError(w, r, http.StatusBadGateway, string(outbox.KindSendFailed), "Failed to send email")
		return
	}

	rec.Status = data.StatusSent
	rec.RemoteMessageID = remoteID
	rec.SentAt = now
	s.saveRecord(r, rec)
	metrics.EmailsSent.WithLabelValues(data.ChannelPlatform, data.StatusSent, "").Inc()

	returnJSONResult(w, r, struct {
		Message         string `json:"message"`
		EmailsRemaining int    `json:"emailsRemaining"`
	}{
		Message:         "Email sent successfully!",
		EmailsRemaining: remaining(limit, used+1),
	})
}

func (s *Server) saveRecord(r *http.Request, rec data.SendRecord) {
	err := s.db.SaveSendRecord(r.Context(), rec)
	if err != nil {
		slog.Error("failed to save send record", "user_id", rec.UserID, "record_id", rec.ID, "error", err)
	}
}

// bodies returns the text and html versions of a quick send body, which may be either
func bodies(body string) (string, string) {
	if looksLikeHTML(body) {
		text, err := email.HTMLToText(body)
		if err != nil {
			slog.Warn("QuickSend: failed to derive text body", "error", err)
			text = body
		}
		return text, body
	}

	var b strings.Builder
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}

	return body, b.String()
}

func looksLikeHTML(s string) bool {
	s = strings.ToLower(s)
	for _, tag := range []string{"<p", "<div", "<br", "<html", "<a ", "<strong", "<em", "<ul", "<table"} {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}
