// Package autointern is the http api of Auto Intern.
package autointern

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/email"
	"github.com/haydenwoodhead/autointern/emailgenerator"
	"github.com/haydenwoodhead/autointern/mimemessage"
	"github.com/haydenwoodhead/autointern/outbox"
	"github.com/haydenwoodhead/autointern/resume"
	"github.com/haydenwoodhead/autointern/token"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

// version number - this is overridden at build time to inject the commit hash
var version = "dev"

// OAuth state tokens are only good for the round trip through google's consent page
const stateMaxAge = 10 * time.Minute

// Outbox sends email through a user's linked mailbox
type Outbox interface {
	Send(ctx context.Context, userID string, req mimemessage.Request) (outbox.Result, error)
}

// EmailGenerator writes outreach emails
type EmailGenerator interface {
	Template(in emailgenerator.TemplateInput) (emailgenerator.Email, error)
	Smart(ctx context.Context, in emailgenerator.SmartInput) (emailgenerator.SmartEmail, error)
}

// ResumeEnhancer rewrites resumes
type ResumeEnhancer interface {
	Enhance(ctx context.Context, userID string, req resume.Request) (resume.Result, error)
}

// GoogleAuth runs the oauth flow for linking a Gmail mailbox
type GoogleAuth interface {
	Configured() bool
	Scopes() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchEmail(ctx context.Context, accessToken string) (string, error)
}

// Server bundles several data types together for dependency injection into http handlers
type Server struct {
	sessionStore *sessions.CookieStore
	db           data.Database
	outbox       Outbox
	eg           EmailGenerator
	resume       ResumeEnhancer
	google       GoogleAuth
	platform     email.Sender
	tg           *token.Generator
	Router       *mux.Router
	now          func() time.Time

	cfg Config
}

//Config contains key configuration parameters to be passed to New()
type Config struct {
	Key           string
	URL           string
	AdminKey      string
	PlatformFrom  string
	Developing    bool
	RestoreRealIP bool
}

// Services are the collaborators the handlers call. Platform may be nil when no mail provider is configured.
type Services struct {
	Outbox    Outbox
	Generator EmailGenerator
	Resume    ResumeEnhancer
	Google    GoogleAuth
	Platform  email.Sender
}

// New returns a Server with the given settings
func New(cfg Config, db data.Database, svc Services) (*Server, error) {
	s := Server{
		sessionStore: sessions.NewCookieStore([]byte(cfg.Key)),
		db:           db,
		outbox:       svc.Outbox,
		eg:           svc.Generator,
		resume:       svc.Resume,
		google:       svc.Google,
		platform:     svc.Platform,
		tg:           token.NewGenerator(cfg.Key, stateMaxAge),
		now:          time.Now,
		cfg:          cfg,
	}

	s.sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   !cfg.Developing,
		// lax so the cookie comes back on google's redirect to the oauth callback
		SameSite: http.SameSiteLaxMode,
	}

	err := s.db.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start database: %w", err)
	}

	s.Router = mux.NewRouter()
	s.Router.StrictSlash(true) // means router will match both "/path" and "/path/"

	base := alice.New(SetVersionHeader, s.SecurityHeaders)
	authed := base.Append(s.RequireSession)
	limited := authed.Append(RateLimit(10, time.Minute))

	api := s.Router.PathPrefix("/api/v1").Subrouter()

	// onboarding
	api.Handle("/users/", base.ThenFunc(s.CreateUser)).Methods(http.MethodPost)
	api.Handle("/me/", authed.ThenFunc(s.GetMe)).Methods(http.MethodGet)
	api.Handle("/me/onboarding/", authed.ThenFunc(s.UpdateOnboarding)).Methods(http.MethodPut)

	// generation
	api.Handle("/generate-email/", authed.ThenFunc(s.GenerateEmail)).Methods(http.MethodPost)
	api.Handle("/generate-smart-email/", limited.ThenFunc(s.GenerateSmartEmail)).Methods(http.MethodPost)
	api.Handle("/resume-enhancements/", limited.ThenFunc(s.EnhanceResume)).Methods(http.MethodPost)

	// gmail linking
	api.Handle("/integrations/google/start/", authed.ThenFunc(s.GoogleStart)).Methods(http.MethodPost)
	api.Handle("/integrations/google/callback/", base.ThenFunc(s.GoogleCallback)).Methods(http.MethodGet)
	api.Handle("/integrations/google/", authed.ThenFunc(s.GoogleStatus)).Methods(http.MethodGet)
	api.Handle("/integrations/google/", authed.ThenFunc(s.GoogleDisconnect)).Methods(http.MethodDelete)

	// sending
	api.Handle("/email/send/", authed.ThenFunc(s.SendEmail)).Methods(http.MethodPost)
	api.Handle("/email/sent/", authed.ThenFunc(s.SentEmails)).Methods(http.MethodGet)
	api.Handle("/email/sent/{recordID}/", authed.ThenFunc(s.SentEmail)).Methods(http.MethodGet)
	api.Handle("/send-email/", authed.ThenFunc(s.QuickSend)).Methods(http.MethodPost)

	// admin
	api.Handle("/admin/users/{userID}/subscription/", base.Append(s.RequireAdminKey).ThenFunc(s.SetSubscription)).Methods(http.MethodPut)

	if cfg.RestoreRealIP {
		s.Router.Use(RestoreRealIP)
	}

	s.Router.Handle("/metrics", promhttp.Handler())
	s.Router.HandleFunc("/ping", s.Ping)

	return &s, nil
}

// Ping returns PONG when called
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	_, err := w.Write([]byte("PONG"))
	if err != nil {
		slog.Error("ping - failed to write out response", "error", err)
	}
}
