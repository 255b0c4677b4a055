package data

import (
	"time"

	"github.com/haydenwoodhead/autointern/stringduration"
)

// User is an onboarded Auto Intern user. Onboarding holds the raw JSON document
// submitted by the onboarding wizard.
type User struct {
	ID         string `db:"id" dynamodbav:"user_id" json:"id"`
	Name       string `db:"name" dynamodbav:"name" json:"name"`
	Email      string `db:"email" dynamodbav:"email" json:"email"`
	Onboarding string `db:"onboarding" dynamodbav:"onboarding" json:"-"`
	CreatedAt  int64  `db:"created_at" dynamodbav:"created_at" json:"created_at"`
	UpdatedAt  int64  `db:"updated_at" dynamodbav:"updated_at" json:"updated_at"`
}

// Plan names
const (
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// SubscriptionActive is the only status which grants access to paid features
const SubscriptionActive = "active"

// Subscription is the plan a user is on
type Subscription struct {
	UserID    string `db:"user_id" dynamodbav:"user_id" json:"user_id"`
	PlanName  string `db:"plan_name" dynamodbav:"plan_name" json:"plan_name"`
	Status    string `db:"status" dynamodbav:"status" json:"status"`
	UpdatedAt int64  `db:"updated_at" dynamodbav:"updated_at" json:"updated_at"`
}

// Active reports whether the subscription grants access to paid features
func (s Subscription) Active() bool {
	return s.Status == SubscriptionActive
}

// MonthlyLimit returns how many platform emails the plan allows per calendar month
func (s Subscription) MonthlyLimit() int {
	switch s.PlanName {
	case PlanBasic:
		return 5
	case PlanPremium:
		return 50
	default:
		return 200
	}
}

// MailAccount is a linked mailbox together with its OAuth credentials. There is at most
// one per (user, address) pair.
type MailAccount struct {
	ID           string `db:"id" dynamodbav:"id" json:"id"`
	UserID       string `db:"user_id" dynamodbav:"user_id" json:"-"`
	Address      string `db:"address" dynamodbav:"address" json:"address"`
	AccessToken  string `db:"access_token" dynamodbav:"access_token" json:"-"`
	RefreshToken string `db:"refresh_token" dynamodbav:"refresh_token" json:"-"`
	TokenExpiry  int64  `db:"token_expiry" dynamodbav:"token_expiry" json:"-"`
	Scopes       string `db:"scopes" dynamodbav:"scopes" json:"-"`
	NeedsReauth  bool   `db:"needs_reauth" dynamodbav:"needs_reauth" json:"needs_reauth"`
	CreatedAt    int64  `db:"created_at" dynamodbav:"created_at" json:"created_at"`
	UpdatedAt    int64  `db:"updated_at" dynamodbav:"updated_at" json:"updated_at"`
}

// NewerThan orders accounts of one user by UpdatedAt, then CreatedAt, then ID
func (a MailAccount) NewerThan(b MailAccount) bool {
	if a.UpdatedAt != b.UpdatedAt {
		return a.UpdatedAt > b.UpdatedAt
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

// TokenValid reports whether the stored access token can still be used at now
func (a MailAccount) TokenValid(now time.Time) bool {
	return a.AccessToken != "" && now.Before(time.Unix(a.TokenExpiry, 0))
}

// Send channels
const (
	ChannelGmail    = "gmail"
	ChannelPlatform = "platform"
)

// Send statuses
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// SendRecord is the audit entry for one send attempt. Records are written once and never updated.
type SendRecord struct {
	ID              string `db:"id" dynamodbav:"id" json:"id"`
	UserID          string `db:"user_id" dynamodbav:"user_id" json:"-"`
	Channel         string `db:"channel" dynamodbav:"channel" json:"channel"`
	FromAddress     string `db:"from_address" dynamodbav:"from_address" json:"from"`
	To              string `db:"to_addresses" dynamodbav:"to_addresses" json:"to"`
	Cc              string `db:"cc_addresses" dynamodbav:"cc_addresses" json:"cc,omitempty"`
	Bcc             string `db:"bcc_addresses" dynamodbav:"bcc_addresses" json:"bcc,omitempty"`
	Subject         string `db:"subject" dynamodbav:"subject" json:"subject"`
	BodyText        string `db:"body_text" dynamodbav:"body_text" json:"-"`
	BodyHTML        string `db:"body_html" dynamodbav:"body_html" json:"-"`
	Attachments     string `db:"attachments" dynamodbav:"attachments" json:"-"`
	TargetCompany   string `db:"target_company" dynamodbav:"target_company" json:"target_company,omitempty"`
	Status          string `db:"status" dynamodbav:"status" json:"status"`
	ErrorCode       string `db:"error_code" dynamodbav:"error_code" json:"error_code,omitempty"`
	ErrorMessage    string `db:"error_message" dynamodbav:"error_message" json:"error_message,omitempty"`
	RemoteMessageID string `db:"remote_message_id" dynamodbav:"remote_message_id" json:"message_id,omitempty"`
	RemoteThreadID  string `db:"remote_thread_id" dynamodbav:"remote_thread_id" json:"thread_id,omitempty"`
	CreatedAt       int64  `db:"created_at" dynamodbav:"created_at" json:"created_at"`
	SentAt          int64  `db:"sent_at" dynamodbav:"sent_at" json:"sent_at,omitempty"`
}

// ResumeEnhancement stores one run of the resume builder
type ResumeEnhancement struct {
	ID             string `db:"id" dynamodbav:"id" json:"id"`
	UserID         string `db:"user_id" dynamodbav:"user_id" json:"-"`
	OriginalResume string `db:"original_resume" dynamodbav:"original_resume" json:"original_resume"`
	EnhancedResume string `db:"enhanced_resume" dynamodbav:"enhanced_resume" json:"enhanced_resume"`
	Answers        string `db:"answers" dynamodbav:"answers" json:"-"`
	CreatedAt      int64  `db:"created_at" dynamodbav:"created_at" json:"created_at"`
}

// MonthStart returns the first instant of t's calendar month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

//GetSentDetails takes a slice of SendRecord and returns a slice with a string corresponding to each record
// describing how long ago it was sent
func GetSentDetails(recs []SendRecord, now time.Time) []string {
	sent := make([]string, 0, len(recs))

	for _, r := range recs {
		at := r.SentAt
		if at == 0 {
			at = r.CreatedAt
		}

		sent = append(sent, stringduration.Ago(now.Sub(time.Unix(at, 0))))
	}

	return sent
}
