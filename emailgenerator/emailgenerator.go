// Package emailgenerator writes cold outreach emails, either from fixed templates or with an llm.
package emailgenerator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/gobuffalo/packr"
	"github.com/haydenwoodhead/autointern/email"
	"github.com/haydenwoodhead/autointern/metrics"
	"github.com/microcosm-cc/bluemonday"
)

var templates = packr.NewBox("../templates/email")

// Goals a template email can be written for
const (
	GoalInternships = "Internships"
	GoalJobs        = "Jobs"
	GoalResearch    = "Research"
	GoalReferrals   = "Referrals"
)

var goalFiles = map[string]string{
	GoalInternships: "internships.tmpl",
	GoalJobs:        "jobs.tmpl",
	GoalResearch:    "research.tmpl",
	GoalReferrals:   "referrals.tmpl",
}

// Where a smart email came from
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

// Input types for smart emails
const (
	InputText     = "text"
	InputLinkedIn = "linkedin"
	InputURL      = "url"
)

const (
	maxBackground = 4000
	maxPageBytes  = 2 << 20
	maxTokens     = 500

	// FetchTimeout bounds fetching a profile page
	FetchTimeout = 10 * time.Second
)

const systemPrompt = "You are an expert at writing professional cold emails for job applications. Create personalized, compelling emails that highlight relevant experience and show genuine interest in the company and role."

// ErrMissingFields is returned when a smart email request lacks content, company or position
var ErrMissingFields = errors.New("emailgenerator: missing required fields")

// Completer produces text from a prompt
type Completer interface {
	Complete(ctx context.Context, system string, prompt string, maxTokens int) (string, error)
}

// TemplateInput is what the onboarding wizard knows about the user
type TemplateInput struct {
	Goal       string `json:"goal"`
	CareerPath string `json:"careerPath"`
	Experience string `json:"experience"`
	Companies  string `json:"companies"`
}

// Email is a generated email
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"email"`
}

// SmartInput describes the recipient an llm written email is for
type SmartInput struct {
	InputType     string `json:"inputType"`
	InputContent  string `json:"inputContent"`
	TargetCompany string `json:"targetCompany"`
	Position      string `json:"position"`
}

// SmartEmail is an email written for a SmartInput
type SmartEmail struct {
	Body   string `json:"email"`
	Source string `json:"source"`
}

// Generator writes emails. It is safe for concurrent use.
type Generator struct {
	goals      map[string]*template.Template
	fallback   *template.Template
	prompt     *template.Template
	llm        Completer
	httpClient *http.Client
	strip      *bluemonday.Policy
}

// New returns a Generator. llm may be nil in which case smart emails always use the fallback template.
func New(llm Completer) *Generator {
	g := &Generator{
		goals:      make(map[string]*template.Template, len(goalFiles)),
		fallback:   mustParseTemplates(templates, "fallback.tmpl"),
		prompt:     mustParseTemplates(templates, "smart_prompt.tmpl"),
		llm:        llm,
		httpClient: newFetchClient(),
		strip:      bluemonday.StrictPolicy(),
	}

	for goal, file := range goalFiles {
		g.goals[goal] = mustParseTemplates(templates, "layout.tmpl", file)
	}

	return g
}

// mustParseTemplates parses the named files of box into one template set
func mustParseTemplates(box packr.Box, files ...string) *template.Template {
	t := template.New("root").Funcs(template.FuncMap{"lower": strings.ToLower})

	for _, f := range files {
		s, err := box.FindString(f)
		if err != nil {
			panic(fmt.Sprintf("emailgenerator: failed to find template %v: %v", f, err))
		}

		_, err = t.New(f).Parse(s)
		if err != nil {
			panic(fmt.Sprintf("emailgenerator: failed to parse template %v: %v", f, err))
		}
	}

	return t
}

func execute(t *template.Template, name string, data interface{}) (string, error) {
	var b bytes.Buffer
	if err := t.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("emailgenerator: failed to execute %v: %w", name, err)
	}
	return b.String(), nil
}

// Template writes an email for in.Goal. Unknown goals get the internship email.
func (g *Generator) Template(in TemplateInput) (Email, error) {
	t, ok := g.goals[in.Goal]
	if !ok {
		t = g.goals[GoalInternships]
	}

	data := struct {
		CareerPath string
		Experience string
		FAANG      bool
	}{
		CareerPath: in.CareerPath,
		Experience: in.Experience,
		FAANG:      in.Companies == "FAANG",
	}

	subject, err := execute(t, "subject", data)
	if err != nil {
		return Email{}, err
	}

	body, err := execute(t, "email", data)
	if err != nil {
		return Email{}, err
	}

	metrics.Generations.WithLabelValues("template_email", SourceTemplate).Inc()

	return Email{Subject: subject, Body: body}, nil
}

// Smart writes a personalised email. Any llm failure falls back to a fixed template
// so only missing fields produce an error.
func (g *Generator) Smart(ctx context.Context, in SmartInput) (SmartEmail, error) {
	if strings.TrimSpace(in.InputContent) == "" || strings.TrimSpace(in.TargetCompany) == "" || strings.TrimSpace(in.Position) == "" {
		return SmartEmail{}, ErrMissingFields
	}

	if g.llm != nil {
		body, err := g.complete(ctx, in)
		if err == nil {
			metrics.Generations.WithLabelValues("smart_email", SourceLLM).Inc()
			return SmartEmail{Body: body, Source: SourceLLM}, nil
		}
		slog.Warn("emailgenerator: llm failed, using fallback", "error", err)
	}

	body, err := execute(g.fallback, "email", struct{ Position, Company string }{in.Position, in.TargetCompany})
	if err != nil {
		return SmartEmail{}, err
	}

	metrics.Generations.WithLabelValues("smart_email", SourceTemplate).Inc()

	return SmartEmail{Body: body, Source: SourceTemplate}, nil
}

func (g *Generator) complete(ctx context.Context, in SmartInput) (string, error) {
	prompt, err := execute(g.prompt, "prompt", struct{ Position, Company, Background string }{
		Position:   in.Position,
		Company:    in.TargetCompany,
		Background: g.background(ctx, in),
	})
	if err != nil {
		return "", err
	}

	out, err := g.llm.Complete(ctx, systemPrompt, prompt, maxTokens)
	if err != nil {
		return "", err
	}

	// models sometimes answer with markup
	out = strings.TrimSpace(html.UnescapeString(g.strip.Sanitize(out)))
	if out == "" {
		return "", errors.New("emailgenerator: completion was empty after stripping html")
	}

	return out, nil
}

// background is the text the llm personalises the email with
func (g *Generator) background(ctx context.Context, in SmartInput) string {
	content := strings.TrimSpace(in.InputContent)

	switch in.InputType {
	case InputLinkedIn:
		content = "LinkedIn Profile: " + content
	case InputURL:
		text, err := g.fetchPageText(ctx, content)
		if err != nil {
			slog.Info("emailgenerator: failed to fetch profile page", "url", content, "error", err)
		} else if text != "" {
			content = text
		}
	}

	return truncate(content, maxBackground)
}

func (g *Generator) fetchPageText(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile page returned HTTP %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	return email.HTMLToText(string(b))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
