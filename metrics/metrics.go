package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "autointern"

var (
	// EmailsSent counts send attempts by channel (gmail, platform), status (sent, failed) and error code
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent",
		Help:      "number of send attempts",
	}, []string{"channel", "status", "code"})

	// TokenRefreshes counts access token refreshes by outcome
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes",
		Help:      "number of oauth token refreshes",
	}, []string{"outcome"})

	// Generations counts generated emails and resumes by kind and by whether the llm or a template produced them
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations",
		Help:      "number of generated emails and resumes",
	}, []string{"kind", "source"})

	// AccountsLinked counts completed oauth links
	AccountsLinked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accounts_linked",
		Help:      "number of mailboxes linked",
	})

	// UsersCreated counts onboarded users
	UsersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created",
		Help:      "number of users onboarded",
	})
)
