package assessment

import (
	"errors"
	"net/http"
	"time"
)

// Kind classifies an Error and fixes its HTTP status.
type Kind int

// Error kinds. KindInternal is never constructed directly; any error that is not an
// *Error is treated as internal.
const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindRateLimited
	KindNotFound
	KindIncomplete
	KindInvalidOrExpired
	KindValidation
)

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated, KindInvalidOrExpired:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindIncomplete:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Machine-readable error codes carried in the response envelope.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeIncomplete       = "INCOMPLETE"
	CodeInvalidOrExpired = "INVALID_OR_EXPIRED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeQuestionMismatch = "QUESTION_MISMATCH"
	CodeInvalidAnswer    = "INVALID_ANSWER"
	CodeSessionCompleted = "SESSION_COMPLETED"
	CodeSessionPaused    = "SESSION_PAUSED"
	CodeDuplicateName    = "DUPLICATE_NAME"
	CodeInvalidTemplate  = "INVALID_TEMPLATE"
	CodeInternal         = "INTERNAL"
)

// Error is a failure the caller is allowed to see.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Missing lists unanswered required question ids for KindIncomplete.
	Missing []string
	// ResetAt is when the exhausted budget frees up for KindRateLimited.
	ResetAt *time.Time
}

func (e *Error) Error() string {
	return e.Message
}

// Status is the HTTP status of the error.
func (e *Error) Status() int {
	return e.Kind.HTTPStatus()
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Unauthenticated reports missing or invalid credentials.
func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: CodeUnauthenticated, Message: msg}
}

// RateLimited reports an exhausted budget that frees up at resetAt.
func RateLimited(code, msg string, resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimited, Code: code, Message: msg, ResetAt: &resetAt}
}

// NotFound reports an absent resource, or one owned by another organization.
func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

// Incomplete reports unanswered required questions.
func Incomplete(missing []string) *Error {
	return &Error{
		Kind:    KindIncomplete,
		Code:    CodeIncomplete,
		Message: "required questions have not been answered",
		Missing: missing,
	}
}

// InvalidOrExpired reports a session token that does not resolve to a usable session.
func InvalidOrExpired() *Error {
	return &Error{Kind: KindInvalidOrExpired, Code: CodeInvalidOrExpired, Message: "session token is invalid or expired"}
}

// Validation reports a malformed or inconsistent request.
func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}
