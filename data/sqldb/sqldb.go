package sqldb

import (
	"context"
	"database/sql"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ data.Database = &SQLDatabase{}

// SQLDatabase implements the database interface for sql databases which accept $n placeholders
// and ON CONFLICT upserts (postgres and sqlite3)
type SQLDatabase struct {
	*sqlx.DB
}

// New returns a new db or panics
func New(dbType string, dbURL string) *SQLDatabase {
	return &SQLDatabase{sqlx.MustOpen(dbType, dbURL)}
}

// Start implements Database Start()
func (s *SQLDatabase) Start() error {
	_, err := s.Exec(schema)
	return errors.Wrap(err, "SQLDatabase.Start: failed to create tables")
}

const schema = `create table if not exists app_user (
	id text not null,
	name text not null,
	email text not null,
	onboarding text not null default '{}',
	created_at bigint not null,
	updated_at bigint not null,
	primary key (id)
);

create table if not exists subscription (
	user_id text not null,
	plan_name text not null,
	status text not null,
	updated_at bigint not null,
	primary key (user_id)
);

create table if not exists mail_account (
	id text not null,
	user_id text not null,
	address text not null,
	access_token text not null default '',
	refresh_token text not null default '',
	token_expiry bigint not null default 0,
	scopes text not null default '',
	needs_reauth boolean not null default false,
	created_at bigint not null,
	updated_at bigint not null,
	primary key (id),
	unique (user_id, address)
);

create table if not exists send_record (
	id text not null,
	user_id text not null,
	channel text not null,
	from_address text not null,
	to_addresses text not null,
	cc_addresses text not null,
	bcc_addresses text not null,
	subject text not null,
	body_text text not null,
	body_html text not null,
	attachments text not null,
	target_company text not null,
	status text not null,
	error_code text not null,
	error_message text not null,
	remote_message_id text not null,
	remote_thread_id text not null,
	created_at bigint not null,
	sent_at bigint not null,
	primary key (id)
);

create index if not exists send_record_user_created on send_record (user_id, created_at);

create table if not exists resume_enhancement (
	id text not null,
	user_id text not null,
	original_resume text not null,
	enhanced_resume text not null,
	answers text not null,
	created_at bigint not null,
	primary key (id)
);`

const userColumns = "id, name, email, onboarding, created_at, updated_at"
const accountColumns = "id, user_id, address, access_token, refresh_token, token_expiry, scopes, needs_reauth, created_at, updated_at"
const recordColumns = "id, user_id, channel, from_address, to_addresses, cc_addresses, bcc_addresses, subject, body_text, body_html, attachments, target_company, status, error_code, error_message, remote_message_id, remote_thread_id, created_at, sent_at"

// SaveNewUser saves a new user
func (s *SQLDatabase) SaveNewUser(ctx context.Context, u data.User) error {
	_, err := s.NamedExecContext(ctx,
		"INSERT INTO app_user ("+userColumns+") VALUES (:id, :name, :email, :onboarding, :created_at, :updated_at)",
		map[string]interface{}{
			"id":         u.ID,
			"name":       u.Name,
			"email":      u.Email,
			"onboarding": u.Onboarding,
			"created_at": u.CreatedAt,
			"updated_at": u.UpdatedAt,
		},
	)
	return errors.Wrap(err, "SQLDatabase.SaveNewUser: failed to insert user")
}

// GetUserByID gets a user by id
func (s *SQLDatabase) GetUserByID(ctx context.Context, id string) (data.User, error) {
	var u data.User
	err := s.GetContext(ctx, &u, "SELECT "+userColumns+" FROM app_user WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return u, data.ErrNotFound
	}
	return u, errors.Wrap(err, "SQLDatabase.GetUserByID: failed to get user")
}

// UpdateOnboarding replaces the onboarding document of a user
func (s *SQLDatabase) UpdateOnboarding(ctx context.Context, userID string, doc string, updatedAt int64) error {
	res, err := s.ExecContext(ctx, "UPDATE app_user SET onboarding = $1, updated_at = $2 WHERE id = $3", doc, updatedAt, userID)
	return checkAffected(res, err, "SQLDatabase.UpdateOnboarding")
}

// SaveSubscription inserts or replaces a subscription
func (s *SQLDatabase) SaveSubscription(ctx context.Context, sub data.Subscription) error {
	_, err := s.NamedExecContext(ctx,
		`INSERT INTO subscription (user_id, plan_name, status, updated_at) VALUES (:user_id, :plan_name, :status, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET plan_name = excluded.plan_name, status = excluded.status, updated_at = excluded.updated_at`,
		map[string]interface{}{
			"user_id":    sub.UserID,
			"plan_name":  sub.PlanName,
			"status":     sub.Status,
			"updated_at": sub.UpdatedAt,
		},
	)
	return errors.Wrap(err, "SQLDatabase.SaveSubscription: failed to upsert subscription")
}

// GetSubscriptionByUserID gets the subscription of a user
func (s *SQLDatabase) GetSubscriptionByUserID(ctx context.Context, userID string) (data.Subscription, error) {
	var sub data.Subscription
	err := s.GetContext(ctx, &sub, "SELECT user_id, plan_name, status, updated_at FROM subscription WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return sub, data.ErrNotFound
	}
	return sub, errors.Wrap(err, "SQLDatabase.GetSubscriptionByUserID: failed to get subscription")
}

// UpsertMailAccount links a mailbox, replacing the credentials of an existing link
func (s *SQLDatabase) UpsertMailAccount(ctx context.Context, a data.MailAccount) (data.MailAccount, error) {
	_, err := s.NamedExecContext(ctx,
		`INSERT INTO mail_account (`+accountColumns+`) VALUES (:id, :user_id, :address, :access_token, :refresh_token, :token_expiry, :scopes, false, :created_at, :updated_at)
		ON CONFLICT (user_id, address) DO UPDATE SET access_token = excluded.access_token, refresh_token = excluded.refresh_token,
		token_expiry = excluded.token_expiry, scopes = excluded.scopes, needs_reauth = false, updated_at = excluded.updated_at`,
		map[string]interface{}{
			"id":            a.ID,
			"user_id":       a.UserID,
			"address":       a.Address,
			"access_token":  a.AccessToken,
			"refresh_token": a.RefreshToken,
			"token_expiry":  a.TokenExpiry,
			"scopes":        a.Scopes,
			"created_at":    a.CreatedAt,
			"updated_at":    a.UpdatedAt,
		},
	)
	if err != nil {
		return data.MailAccount{}, errors.Wrap(err, "SQLDatabase.UpsertMailAccount: failed to upsert account")
	}

	var stored data.MailAccount
	err = s.GetContext(ctx, &stored, "SELECT "+accountColumns+" FROM mail_account WHERE user_id = $1 AND address = $2", a.UserID, a.Address)
	return stored, errors.Wrap(err, "SQLDatabase.UpsertMailAccount: failed to read back account")
}

// GetMailAccountByID gets an account by id
func (s *SQLDatabase) GetMailAccountByID(ctx context.Context, id string) (data.MailAccount, error) {
	var a data.MailAccount
	err := s.GetContext(ctx, &a, "SELECT "+accountColumns+" FROM mail_account WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return a, data.ErrNotFound
	}
	return a, errors.Wrap(err, "SQLDatabase.GetMailAccountByID: failed to get account")
}

// GetMailAccountByUserID gets the most recently updated account of a user
func (s *SQLDatabase) GetMailAccountByUserID(ctx context.Context, userID string) (data.MailAccount, error) {
	var a data.MailAccount
	err := s.GetContext(ctx, &a, "SELECT "+accountColumns+" FROM mail_account WHERE user_id = $1 ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT 1", userID)
	if err == sql.ErrNoRows {
		return a, data.ErrNotFound
	}
	return a, errors.Wrap(err, "SQLDatabase.GetMailAccountByUserID: failed to get account")
}

// UpdateMailAccountToken stores refreshed credentials. Only the token columns are written.
func (s *SQLDatabase) UpdateMailAccountToken(ctx context.Context, id string, accessToken string, refreshToken string, expiry int64) error {
	res, err := s.ExecContext(ctx,
		"UPDATE mail_account SET access_token = $1, refresh_token = $2, token_expiry = $3 WHERE id = $4",
		accessToken, refreshToken, expiry, id,
	)
	return checkAffected(res, err, "SQLDatabase.UpdateMailAccountToken")
}

// SetMailAccountNeedsReauth sets or clears the needs_reauth flag
func (s *SQLDatabase) SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	res, err := s.ExecContext(ctx, "UPDATE mail_account SET needs_reauth = $1 WHERE id = $2", needsReauth, id)
	return checkAffected(res, err, "SQLDatabase.SetMailAccountNeedsReauth")
}

// DeleteMailAccount removes an account owned by userID
func (s *SQLDatabase) DeleteMailAccount(ctx context.Context, userID string, id string) error {
	res, err := s.ExecContext(ctx, "DELETE FROM mail_account WHERE id = $1 AND user_id = $2", id, userID)
	return checkAffected(res, err, "SQLDatabase.DeleteMailAccount")
}

// SaveSendRecord saves an audit record
func (s *SQLDatabase) SaveSendRecord(ctx context.Context, r data.SendRecord) error {
	_, err := s.NamedExecContext(ctx,
		`INSERT INTO send_record (`+recordColumns+`) VALUES (:id, :user_id, :channel, :from_address, :to_addresses, :cc_addresses,
		:bcc_addresses, :subject, :body_text, :body_html, :attachments, :target_company, :status, :error_code, :error_message,
		:remote_message_id, :remote_thread_id, :created_at, :sent_at)`,
		map[string]interface{}{
			"id":                r.ID,
			"user_id":           r.UserID,
			"channel":           r.Channel,
			"from_address":      r.FromAddress,
			"to_addresses":      r.To,
			"cc_addresses":      r.Cc,
			"bcc_addresses":     r.Bcc,
			"subject":           r.Subject,
			"body_text":         r.BodyText,
			"body_html":         r.BodyHTML,
			"attachments":       r.Attachments,
			"target_company":    r.TargetCompany,
			"status":            r.Status,
			"error_code":        r.ErrorCode,
			"error_message":     r.ErrorMessage,
			"remote_message_id": r.RemoteMessageID,
			"remote_thread_id":  r.RemoteThreadID,
			"created_at":        r.CreatedAt,
			"sent_at":           r.SentAt,
		},
	)
	return errors.Wrap(err, "SQLDatabase.SaveSendRecord: failed to insert record")
}

// GetSendRecord gets a record owned by userID
func (s *SQLDatabase) GetSendRecord(ctx context.Context, userID string, id string) (data.SendRecord, error) {
	var r data.SendRecord
	err := s.GetContext(ctx, &r, "SELECT "+recordColumns+" FROM send_record WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return r, data.ErrNotFound
	}
	return r, errors.Wrap(err, "SQLDatabase.GetSendRecord: failed to get record")
}

// GetSendRecordsByUserID returns all records of a user, newest first
func (s *SQLDatabase) GetSendRecordsByUserID(ctx context.Context, userID string) ([]data.SendRecord, error) {
	recs := []data.SendRecord{}
	err := s.SelectContext(ctx, &recs, "SELECT "+recordColumns+" FROM send_record WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return recs, errors.Wrap(err, "SQLDatabase.GetSendRecordsByUserID: failed to list records")
}

// CountSentSince counts sent records of a user on channel created at or after since
func (s *SQLDatabase) CountSentSince(ctx context.Context, userID string, channel string, since int64) (int, error) {
	var count int
	err := s.GetContext(ctx, &count, "SELECT COUNT(*) FROM send_record WHERE user_id = $1 AND channel = $2 AND status = $3 AND created_at >= $4", userID, channel, data.StatusSent, since)
	return count, errors.Wrap(err, "SQLDatabase.CountSentSince: failed to count records")
}

// SaveResumeEnhancement saves an enhancement
func (s *SQLDatabase) SaveResumeEnhancement(ctx context.Context, e data.ResumeEnhancement) error {
	_, err := s.NamedExecContext(ctx,
		"INSERT INTO resume_enhancement (id, user_id, original_resume, enhanced_resume, answers, created_at) VALUES (:id, :user_id, :original_resume, :enhanced_resume, :answers, :created_at)",
		map[string]interface{}{
			"id":              e.ID,
			"user_id":         e.UserID,
			"original_resume": e.OriginalResume,
			"enhanced_resume": e.EnhancedResume,
			"answers":         e.Answers,
			"created_at":      e.CreatedAt,
		},
	)
	return errors.Wrap(err, "SQLDatabase.SaveResumeEnhancement: failed to insert enhancement")
}

func checkAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return errors.Wrapf(err, "%v: failed to execute", op)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "%v: failed to get rows affected", op)
	}

	if n == 0 {
		return data.ErrNotFound
	}
	return nil
}
