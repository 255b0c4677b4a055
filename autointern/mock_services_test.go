package autointern

import (
	"context"

	"github.com/haydenwoodhead/autointern/email"
	"github.com/haydenwoodhead/autointern/emailgenerator"
	"github.com/haydenwoodhead/autointern/mimemessage"
	"github.com/haydenwoodhead/autointern/outbox"
	"github.com/haydenwoodhead/autointern/resume"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Send(ctx context.Context, userID string, req mimemessage.Request) (outbox.Result, error) {
	args := m.Called(ctx, userID, req)
	return args.Get(0).(outbox.Result), args.Error(1)
}

type MockEmailGenerator struct {
	mock.Mock
}

func (m *MockEmailGenerator) Template(in emailgenerator.TemplateInput) (emailgenerator.Email, error) {
	args := m.Called(in)
	return args.Get(0).(emailgenerator.Email), args.Error(1)
}

func (m *MockEmailGenerator) Smart(ctx context.Context, in emailgenerator.SmartInput) (emailgenerator.SmartEmail, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(emailgenerator.SmartEmail), args.Error(1)
}

type MockResumeEnhancer struct {
	mock.Mock
}

func (m *MockResumeEnhancer) Enhance(ctx context.Context, userID string, req resume.Request) (resume.Result, error) {
	args := m.Called(ctx, userID, req)
	return args.Get(0).(resume.Result), args.Error(1)
}

type MockGoogleAuth struct {
	mock.Mock
}

func (m *MockGoogleAuth) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockGoogleAuth) Scopes() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockGoogleAuth) AuthCodeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockGoogleAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	tok, _ := args.Get(0).(*oauth2.Token)
	return tok, args.Error(1)
}

func (m *MockGoogleAuth) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	args := m.Called(ctx, accessToken)
	return args.String(0), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg email.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}
