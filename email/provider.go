// Package email holds the platform mail sender abstraction and html helpers.
package email

import "context"

// Message is an email sent from the platform's own domain
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers platform email and returns the provider's message id
type Sender interface {
	Send(ctx context.Context, m Message) (string, error)
}
