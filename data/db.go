package data

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the requested row doesn't exist or belongs to someone else
var ErrNotFound = errors.New("data: not found")

// Database lists methods needed to implement a db
type Database interface {
	// Start is where you should do schema creation
	Start() error

	SaveNewUser(ctx context.Context, u User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdateOnboarding(ctx context.Context, userID string, doc string, updatedAt int64) error

	// SaveSubscription inserts or replaces the subscription of s.UserID
	SaveSubscription(ctx context.Context, s Subscription) error
	GetSubscriptionByUserID(ctx context.Context, userID string) (Subscription, error)

	// UpsertMailAccount inserts a or, when (a.UserID, a.Address) already exists, replaces its
	// credentials and clears needs_reauth. The stored account is returned.
	UpsertMailAccount(ctx context.Context, a MailAccount) (MailAccount, error)
	GetMailAccountByID(ctx context.Context, id string) (MailAccount, error)
	// GetMailAccountByUserID returns the most recently updated account of the user
	GetMailAccountByUserID(ctx context.Context, userID string) (MailAccount, error)
	UpdateMailAccountToken(ctx context.Context, id string, accessToken string, refreshToken string, expiry int64) error
	SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error
	DeleteMailAccount(ctx context.Context, userID string, id string) error

	SaveSendRecord(ctx context.Context, r SendRecord) error
	GetSendRecord(ctx context.Context, userID string, id string) (SendRecord, error)
	// GetSendRecordsByUserID returns records newest first
	GetSendRecordsByUserID(ctx context.Context, userID string) ([]SendRecord, error)
	// CountSentSince counts records of channel with status sent created at or after since
	CountSentSince(ctx context.Context, userID string, channel string, since int64) (int, error)

	SaveResumeEnhancement(ctx context.Context, e ResumeEnhancement) error
}
