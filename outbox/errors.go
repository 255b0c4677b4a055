package outbox

import (
	"fmt"
	"net/http"
)

// Kind is the machine readable class of a failed send
type Kind string

// Error kinds
const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindValidation      Kind = "VALIDATION"
	KindNoAccountLinked Kind = "NO_ACCOUNT_LINKED"
	KindNeedsReauth     Kind = "NEEDS_REAUTH"
	KindAuthExpired     Kind = "AUTH_EXPIRED"
	KindQuotaExceeded   Kind = "QUOTA_EXCEEDED"
	KindInvalidEmail    Kind = "INVALID_EMAIL"
	KindTooLarge        Kind = "TOO_LARGE"
	KindSendFailed      Kind = "SEND_FAILED"
	KindInternal        Kind = "INTERNAL"
)

// Messages shown to the user. Provider responses are never passed through.
const (
	msgValidation   = "Missing required fields: to and subject"
	msgNoAccount    = "No Gmail account connected. Please connect your Gmail account first."
	msgNeedsReauth  = "Gmail account needs re-authentication. Please reconnect your account."
	msgAuthExpired  = "Gmail authentication expired. Please reconnect your account."
	msgQuota        = "Daily sending limit reached. Please try again tomorrow."
	msgInvalidEmail = "Invalid email format or recipient address."
	msgTooLarge     = "Email or attachments too large."
	msgSendFailed   = "Failed to send email. Please try again."
	msgTimeout      = "Timed out sending email. Please try again."
	msgInternal     = "Something went wrong. Please try again."
)

// Error is returned by Service.Send. Status is the HTTP status to report to the caller, which for
// a remote rejection is the status Gmail answered with.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("outbox: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("outbox: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(k Kind, status int, msg string, err error) *Error {
	return &Error{Kind: k, Status: status, Message: msg, Err: err}
}

// classifyStatus maps a Gmail error status onto a kind and message
func classifyStatus(status int) (Kind, string) {
	switch status {
	case http.StatusUnauthorized:
		return KindAuthExpired, msgAuthExpired
	case http.StatusForbidden:
		return KindQuotaExceeded, msgQuota
	case http.StatusBadRequest:
		return KindInvalidEmail, msgInvalidEmail
	case http.StatusRequestEntityTooLarge:
		return KindTooLarge, msgTooLarge
	default:
		return KindSendFailed, msgSendFailed
	}
}
