package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/context"
	"github.com/haydenwoodhead/autointern/assistant"
	"github.com/haydenwoodhead/autointern/autointern"
	"github.com/haydenwoodhead/autointern/email/mailgunmail"
	"github.com/haydenwoodhead/autointern/emailgenerator"
	"github.com/haydenwoodhead/autointern/gmail"
	"github.com/haydenwoodhead/autointern/googleauth"
	"github.com/haydenwoodhead/autointern/outbox"
	"github.com/haydenwoodhead/autointern/resume"
	"github.com/haydenwoodhead/gateway"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(setupLogger(cfg.LogLevel, cfg.LogFormat))

	db := cfg.database()

	google := googleauth.New(googleauth.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.redirectURL(),
	})
	if !google.Configured() {
		slog.Warn("google oauth is not configured, mailboxes can't be linked")
	}

	svc := autointern.Services{
		Outbox: outbox.New(db, googleauth.NewTokenProvider(db, google), gmail.New()),
		Google: google,
	}

	if cfg.OpenAIKey != "" {
		llm := assistant.New(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		svc.Generator = emailgenerator.New(llm)
		svc.Resume = resume.New(db, llm)
	} else {
		slog.Info("OPENAI_API_KEY not set, emails and resumes will be written from templates")
		svc.Generator = emailgenerator.New(nil)
		svc.Resume = resume.New(db, nil)
	}

	if cfg.mailgunEnabled() {
		svc.Platform = mailgunmail.NewMailgunSender(cfg.MGDomain, cfg.MGKey)
	} else {
		slog.Warn("mailgun is not configured, quick send is disabled")
	}

	s, err := autointern.New(autointern.Config{
		Key:           cfg.Key,
		URL:           cfg.URL,
		AdminKey:      cfg.AdminKey,
		PlatformFrom:  cfg.platformFrom(),
		Developing:    cfg.Developing,
		RestoreRealIP: cfg.RestoreRealIP,
	}, db, svc)
	if err != nil {
		slog.Error("failed to setup server", "error", err)
		os.Exit(1)
	}

	// wrap mux in ClearHandler as per docs to prevent leaking memory
	h := context.ClearHandler(s.Router)

	if cfg.UsingLambda {
		err = gateway.ListenAndServe("", h)
	} else {
		slog.Info("starting auto intern", "addr", cfg.ListenAddr, "db", cfg.DBType)
		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		}
		err = srv.ListenAndServe()
	}

	slog.Error("server stopped", "error", err)
	os.Exit(1)
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
