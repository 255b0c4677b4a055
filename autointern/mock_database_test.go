package autointern

import (
	"context"

	"github.com/haydenwoodhead/autointern/data"
	mock "github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) SaveNewUser(ctx context.Context, u data.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockDatabase) GetUserByID(ctx context.Context, id string) (data.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(data.User), args.Error(1)
}

func (m *MockDatabase) UpdateOnboarding(ctx context.Context, userID string, doc string, updatedAt int64) error {
	args := m.Called(ctx, userID, doc, updatedAt)
	return args.Error(0)
}

func (m *MockDatabase) SaveSubscription(ctx context.Context, s data.Subscription) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockDatabase) GetSubscriptionByUserID(ctx context.Context, userID string) (data.Subscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(data.Subscription), args.Error(1)
}

func (m *MockDatabase) UpsertMailAccount(ctx context.Context, a data.MailAccount) (data.MailAccount, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(data.MailAccount), args.Error(1)
}

func (m *MockDatabase) GetMailAccountByID(ctx context.Context, id string) (data.MailAccount, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(data.MailAccount), args.Error(1)
}

func (m *MockDatabase) GetMailAccountByUserID(ctx context.Context, userID string) (data.MailAccount, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(data.MailAccount), args.Error(1)
}

func (m *MockDatabase) UpdateMailAccountToken(ctx context.Context, id string, accessToken string, refreshToken string, expiry int64) error {
	args := m.Called(ctx, id, accessToken, refreshToken, expiry)
	return args.Error(0)
}

func (m *MockDatabase) SetMailAccountNeedsReauth(ctx context.Context, id string, needsReauth bool) error {
	args := m.Called(ctx, id, needsReauth)
	return args.Error(0)
}

func (m *MockDatabase) DeleteMailAccount(ctx context.Context, userID string, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *MockDatabase) SaveSendRecord(ctx context.Context, r data.SendRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockDatabase) GetSendRecord(ctx context.Context, userID string, id string) (data.SendRecord, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(data.SendRecord), args.Error(1)
}

func (m *MockDatabase) GetSendRecordsByUserID(ctx context.Context, userID string) ([]data.SendRecord, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]data.SendRecord), args.Error(1)
}

func (m *MockDatabase) CountSentSince(ctx context.Context, userID string, channel string, since int64) (int, error) {
	args := m.Called(ctx, userID, channel, since)
	return args.Int(0), args.Error(1)
}

func (m *MockDatabase) SaveResumeEnhancement(ctx context.Context, e data.ResumeEnhancement) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
