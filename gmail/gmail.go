// Package gmail sends raw MIME messages through the Gmail REST API.
package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSendURL is the messages.send endpoint for the authenticated user
const DefaultSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// Timeout bounds a single send call
const Timeout = 30 * time.Second

// SendResult holds the identifiers Gmail assigned to a sent message
type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// APIError is returned when Gmail answers with a non 2xx status
type APIError struct {
	StatusCode int
	// Body is the raw response body. It is meant for logs only.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail: send failed with HTTP %d", e.StatusCode)
}

// Client calls the Gmail API
type Client struct {
	sendURL    string
	httpClient *http.Client
}

// New returns a client for the public Gmail API
func New() *Client {
	return NewWithURL(DefaultSendURL, &http.Client{Timeout: Timeout})
}

// NewWithURL returns a client which posts to sendURL, used for testing
func NewWithURL(sendURL string, client *http.Client) *Client {
	return &Client{sendURL: sendURL, httpClient: client}
}

// Send posts raw, a URL safe base64 encoded message, as the owner of accessToken.
// Exactly one request is made.
func (c *Client) Send(ctx context.Context, accessToken string, raw string) (SendResult, error) {
	body, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("gmail send rejected", "status", resp.StatusCode, "body", string(respBody))
		return SendResult{}, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// a 2xx means gmail accepted the message, so an unreadable body must not turn into a resend
	var res SendResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		slog.Warn("gmail send accepted with undecodable response", "status", resp.StatusCode, "body", string(respBody), "error", err)
		return SendResult{}, nil
	}

	return res, nil
}
