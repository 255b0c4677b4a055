// Package outbox sends a user's email through their linked Gmail account and records the outcome.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/gmail"
	"github.com/haydenwoodhead/autointern/googleauth"
	"github.com/haydenwoodhead/autointern/metrics"
	"github.com/haydenwoodhead/autointern/mimemessage"
)

// AuditTimeout bounds the write of a SendRecord
const AuditTimeout = 10 * time.Second

// Store is the part of the database the outbox needs
type Store interface {
	GetMailAccountByUserID(ctx context.Context, userID string) (data.MailAccount, error)
	SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error
	SaveSendRecord(ctx context.Context, r data.SendRecord) error
}

// TokenSource returns a usable access token for a mailbox
type TokenSource interface {
	AccessToken(ctx context.Context, acct data.MailAccount) (string, error)
}

// Sender submits an encoded message
type Sender interface {
	Send(ctx context.Context, accessToken string, raw string) (gmail.SendResult, error)
}

// Result is returned for a message Gmail accepted
type Result struct {
	Status     string `json:"status"`
	MessageID  string `json:"messageId"`
	ThreadID   string `json:"threadId"`
	RecordID   string `json:"recordId"`
	WebmailURL string `json:"webmailUrl"`
}

// Service sends messages. It makes exactly one attempt per call.
type Service struct {
	store  Store
	tokens TokenSource
	sender Sender
	now    func() time.Time
}

// New returns a Service
func New(store Store, tokens TokenSource, sender Sender) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		sender: sender,
		now:    time.Now,
	}
}

// Send delivers req from userID's linked mailbox. Failures are returned as *Error.
// Every attempt that reaches the token step is recorded as exactly one SendRecord.
func (s *Service) Send(ctx context.Context, userID string, req mimemessage.Request) (Result, error) {
	to := req.Recipients()
	if len(to) == 0 || strings.TrimSpace(req.Subject) == "" {
		return Result{}, newError(KindValidation, http.StatusBadRequest, msgValidation, nil)
	}

	acct, err := s.store.GetMailAccountByUserID(ctx, userID)
	if errors.Is(err, data.ErrNotFound) {
		return Result{}, newError(KindNoAccountLinked, http.StatusBadRequest, msgNoAccount, nil)
	} else if err != nil {
		return Result{}, newError(KindInternal, http.StatusInternalServerError, msgInternal, err)
	}

	if acct.NeedsReauth {
		return Result{}, newError(KindNeedsReauth, http.StatusUnauthorized, msgNeedsReauth, googleauth.ErrReauthRequired)
	}

	rec := s.newRecord(userID, acct.Address, to, req)

	accessToken, err := s.tokens.AccessToken(ctx, acct)
	if err != nil {
		e := newError(KindNeedsReauth, http.StatusUnauthorized, msgNeedsReauth, err)
		s.fail(ctx, &rec, e)
		return Result{}, e
	}

	raw, err := mimemessage.Encode(req, acct.Address)
	if err != nil {
		e := newError(KindSendFailed, http.StatusInternalServerError, msgSendFailed, err)
		s.fail(ctx, &rec, e)
		return Result{}, e
	}

	sendCtx, cancel := context.WithTimeout(ctx, gmail.Timeout)
	defer cancel()

	res, err := s.sender.Send(sendCtx, accessToken, raw)
	if err != nil {
		e := s.classify(err)
		if e.Kind == KindAuthExpired {
			s.flagReauth(ctx, acct.ID)
		}
		s.fail(ctx, &rec, e)
		return Result{}, e
	}

	rec.Status = data.StatusSent
	rec.RemoteMessageID = res.ID
	rec.RemoteThreadID = res.ThreadID
	rec.SentAt = s.now().Unix()

	recordID := rec.ID
	if !s.persist(ctx, rec) {
		recordID = ""
	}
	metrics.EmailsSent.WithLabelValues(data.ChannelGmail, data.StatusSent, "").Inc()

	return Result{
		Status:     data.StatusSent,
		MessageID:  res.ID,
		ThreadID:   res.ThreadID,
		RecordID:   recordID,
		WebmailURL: WebmailURL(acct.Address, res.ThreadID),
	}, nil
}

// WebmailURL links to a thread in the Gmail web client of address
func WebmailURL(address string, threadID string) string {
	if threadID == "" {
		return fmt.Sprintf("https://mail.google.com/mail/u/%s/#sent", url.PathEscape(address))
	}
	return fmt.Sprintf("https://mail.google.com/mail/u/%s/#inbox/%s", url.PathEscape(address), url.PathEscape(threadID))
}

func (s *Service) classify(err error) *Error {
	var apiErr *gmail.APIError
	if errors.As(err, &apiErr) {
		k, msg := classifyStatus(apiErr.StatusCode)
		slog.Info("outbox: gmail rejected message", "status", apiErr.StatusCode, "kind", k, "body", apiErr.Body)
		return newError(k, apiErr.StatusCode, msg, err)
	}

	if isTimeout(err) {
		return newError(KindSendFailed, http.StatusGatewayTimeout, msgTimeout, err)
	}

	return newError(KindSendFailed, http.StatusBadGateway, msgSendFailed, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Service) newRecord(userID string, from string, to []string, req mimemessage.Request) data.SendRecord {
	rec := data.SendRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		Channel:     data.ChannelGmail,
		FromAddress: from,
		To:          strings.Join(to, ","),
		Cc:          strings.Join(req.Cc, ","),
		Bcc:         strings.Join(req.Bcc, ","),
		Subject:     req.Subject,
		BodyText:    req.BodyText,
		BodyHTML:    req.BodyHTML,
		CreatedAt:   s.now().Unix(),
	}

	if len(req.Attachments) > 0 {
		rec.Attachments = attachmentSummary(req.Attachments)
	}

	return rec
}

type attachmentMeta struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// attachmentSummary records attachment metadata only, the content itself isn't stored
func attachmentSummary(as []mimemessage.Attachment) string {
	meta := make([]attachmentMeta, 0, len(as))
	for _, a := range as {
		meta = append(meta, attachmentMeta{Filename: a.Filename, MimeType: a.MimeType, Size: len(a.Content)})
	}

	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *Service) fail(ctx context.Context, rec *data.SendRecord, e *Error) {
	rec.Status = data.StatusFailed
	rec.ErrorCode = string(e.Kind)
	rec.ErrorMessage = e.Message

	s.persist(ctx, *rec)
	metrics.EmailsSent.WithLabelValues(data.ChannelGmail, data.StatusFailed, string(e.Kind)).Inc()
}

// persist writes rec on a context detached from the caller so an aborted request still leaves
// an audit entry. Failures are logged only.
func (s *Service) persist(ctx context.Context, rec data.SendRecord) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AuditTimeout)
	defer cancel()

	err := s.store.SaveSendRecord(ctx, rec)
	if err != nil {
		slog.Error("outbox: failed to save send record", "user_id", rec.UserID, "record_id", rec.ID, "error", err)
		return false
	}
	return true
}

func (s *Service) flagReauth(ctx context.Context, accountID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), AuditTimeout)
	defer cancel()

	err := s.store.SetMailAccountNeedsReauth(ctx, accountID, true)
	if err != nil {
		slog.Error("outbox: failed to flag account for re-authentication", "account_id", accountID, "error", err)
	}
}
