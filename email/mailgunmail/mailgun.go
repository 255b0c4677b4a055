package mailgunmail

import (
	"context"
	"log/slog"

	"github.com/haydenwoodhead/autointern/email"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	mailgun "gopkg.in/mailgun/mailgun-go.v1"
)

var _ email.Sender = &MailgunMail{}

// mailgunClient is the part of the mailgun api used for sending
type mailgunClient interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(m *mailgun.Message) (string, string, error)
}

// MailgunMail is a mailgun implementation of the Sender interface
type MailgunMail struct {
	mg     mailgunClient
	policy *bluemonday.Policy
}

// NewMailgunSender creates a new mailgun Sender for domain
func NewMailgunSender(domain string, key string) *MailgunMail {
	return &MailgunMail{
		mg:     mailgun.NewMailgun(domain, key, ""),
		policy: bluemonday.UGCPolicy(),
	}
}

// Send implements Sender. The mailgun client takes no context so ctx is only checked before sending.
func (m *MailgunMail) Send(ctx context.Context, msg email.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "Mailgun.Send: context done before sending")
	}

	mgMsg := m.mg.NewMessage(msg.From, msg.Subject, msg.Text, msg.To)

	if msg.HTML != "" {
		mgMsg.SetHtml(m.sanitize(msg.HTML))
	}

	resp, id, err := m.mg.Send(mgMsg)
	if err != nil {
		return "", errors.Wrap(err, "Mailgun.Send: failed to send message")
	}

	slog.Debug("Mailgun: message queued", "id", id, "response", resp)

	return id, nil
}

func (m *MailgunMail) sanitize(html string) string {
	return m.policy.Sanitize(html)
}
