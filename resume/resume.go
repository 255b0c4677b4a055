// Package resume rewrites a resume around the answers a user gave to the resume builder questions.
package resume

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/gobuffalo/packr"
	"github.com/google/uuid"
	"github.com/haydenwoodhead/autointern/data"
	"github.com/haydenwoodhead/autointern/metrics"
)

var templates = packr.NewBox("../templates/resume")

// Question ids sent by the resume builder
const (
	QuestionTargetRole      = "target-role"
	QuestionTechnicalSkills = "technical-skills"
	QuestionAchievements    = "achievements"
	QuestionMetrics         = "metrics"
	QuestionIndustries      = "industries"
	QuestionResumeStyle     = "resume-style"
	QuestionExperienceLevel = "experience-level"
	QuestionCareerFocus     = "career-focus"
)

// SuccessMessage is returned with every enhanced resume
const SuccessMessage = "Resume enhanced successfully"

const (
	systemPrompt = "You rewrite resumes. Answer with plain text only."
	maxTokens    = 1500
)

// ErrMissingFields is returned when the resume text or the answers are missing
var ErrMissingFields = errors.New("resume: resume text and answers are required")

// Completer produces text from a prompt
type Completer interface {
	Complete(ctx context.Context, system string, prompt string, maxTokens int) (string, error)
}

// Store saves finished enhancements
type Store interface {
	SaveResumeEnhancement(ctx context.Context, e data.ResumeEnhancement) error
}

// Answer is the reply to one resume builder question
type Answer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// Request is one enhancement request
type Request struct {
	ResumeText string   `json:"resumeText"`
	Answers    []Answer `json:"answers"`
}

// Result is returned to the user
type Result struct {
	EnhancedResume string `json:"enhancedResume"`
	Message        string `json:"message"`
}

// Enhancer produces enhanced resumes
type Enhancer struct {
	store  Store
	llm    Completer
	prompt *template.Template
	mock   *template.Template
	now    func() time.Time
}

// New returns an Enhancer. With a nil llm every resume is written from the built in template.
func New(store Store, llm Completer) *Enhancer {
	return &Enhancer{
		store:  store,
		llm:    llm,
		prompt: mustParse("prompt.tmpl"),
		mock:   mustParse("enhanced.tmpl"),
		now:    time.Now,
	}
}

func mustParse(name string) *template.Template {
	s, err := templates.FindString(name)
	if err != nil {
		panic(fmt.Sprintf("resume: failed to find template %v: %v", name, err))
	}

	return template.Must(template.New(name).Funcs(template.FuncMap{
		"split": splitSkills,
		"join":  strings.Join,
	}).Parse(s))
}

func splitSkills(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

type preferences struct {
	Resume          string
	TargetRole      string
	Skills          string
	Achievements    string
	Metrics         string
	Industries      string
	Style           string
	ExperienceLevel string
	CareerFocus     string
}

func newPreferences(resume string, answers []Answer) preferences {
	m := make(map[string]string, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = strings.TrimSpace(a.Answer)
	}

	return preferences{
		Resume:          resume,
		TargetRole:      m[QuestionTargetRole],
		Skills:          m[QuestionTechnicalSkills],
		Achievements:    m[QuestionAchievements],
		Metrics:         m[QuestionMetrics],
		Industries:      m[QuestionIndustries],
		Style:           m[QuestionResumeStyle],
		ExperienceLevel: m[QuestionExperienceLevel],
		CareerFocus:     m[QuestionCareerFocus],
	}
}

// withDefaults fills the gaps the offline template can't leave blank
func (p preferences) withDefaults() preferences {
	def := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}

	def(&p.TargetRole, "Software Engineer")
	def(&p.Skills, "JavaScript, React, Node.js")
	def(&p.Achievements, "Led successful projects")
	def(&p.Metrics, "Improved efficiency by 25%")
	def(&p.Industries, "Technology")
	def(&p.ExperienceLevel, "Mid Level")

	return p
}

func execute(t *template.Template, name string, p preferences) (string, error) {
	var b bytes.Buffer
	if err := t.ExecuteTemplate(&b, name, p); err != nil {
		return "", fmt.Errorf("resume: failed to execute %v: %w", name, err)
	}
	return b.String(), nil
}

// Enhance rewrites req.ResumeText for userID and stores the result
func (e *Enhancer) Enhance(ctx context.Context, userID string, req Request) (Result, error) {
	if strings.TrimSpace(req.ResumeText) == "" || len(req.Answers) == 0 {
		return Result{}, ErrMissingFields
	}

	prefs := newPreferences(req.ResumeText, req.Answers)

	enhanced, source, err := e.enhance(ctx, prefs)
	if err != nil {
		return Result{}, err
	}

	answers, err := json.Marshal(req.Answers)
	if err != nil {
		return Result{}, fmt.Errorf("resume: failed to marshal answers: %w", err)
	}

	err = e.store.SaveResumeEnhancement(ctx, data.ResumeEnhancement{
		ID:             uuid.New().String(),
		UserID:         userID,
		OriginalResume: req.ResumeText,
		EnhancedResume: enhanced,
		Answers:        string(answers),
		CreatedAt:      e.now().Unix(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("resume: failed to save enhancement: %w", err)
	}

	metrics.Generations.WithLabelValues("resume", source).Inc()

	return Result{EnhancedResume: enhanced, Message: SuccessMessage}, nil
}

func (e *Enhancer) enhance(ctx context.Context, prefs preferences) (string, string, error) {
	if e.llm != nil {
		prompt, err := execute(e.prompt, "prompt", prefs)
		if err != nil {
			return "", "", err
		}

		out, err := e.llm.Complete(ctx, systemPrompt, prompt, maxTokens)
		if err == nil {
			return out, "llm", nil
		}
		slog.Warn("resume: llm failed, using template", "error", err)
	}

	out, err := execute(e.mock, "enhanced", prefs.withDefaults())
	if err != nil {
		return "", "", err
	}
	return out, "template", nil
}
