package imagegen

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"studio/internal/providers/genai"
)

// ErrKind is the internal failure taxonomy. The orchestrator only surfaces
// the message string to the UI, but the tag is kept for tests and logging.
type ErrKind string

const (
	ErrValidation  ErrKind = "validation"
	ErrCredential  ErrKind = "credential_invalid"
	ErrQuota       ErrKind = "quota_exceeded"
	ErrRateLimited ErrKind = "rate_limited"
	ErrNoImage     ErrKind = "no_image_returned"
	ErrStorage     ErrKind = "storage_write_failed"
	ErrTimeout     ErrKind = "timeout"
	ErrCanceled    ErrKind = "canceled"
	ErrUnknown     ErrKind = "unknown"
)

// Error pairs a taxonomy tag with a user-facing message and the underlying
// cause.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the taxonomy tag from any error produced by this package.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

// classifyProviderError maps a failed generation call onto the taxonomy.
// Structured signals (context errors, the Gemini status code and canonical
// status string) are preferred; substring matching on the message is the
// fallback for providers that return bare text.
func classifyProviderError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(ErrTimeout, "Generation timed out. Please try again.", err)
	}
	if errors.Is(err, context.Canceled) {
		return wrapError(ErrCanceled, "Cancelled by user", err)
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case "RESOURCE_EXHAUSTED":
			return wrapError(ErrQuota, "API quota exceeded. Check your plan and billing.", err)
		case "UNAUTHENTICATED", "PERMISSION_DENIED":
			return wrapError(ErrCredential, "API key was rejected. Verify your Gemini API key.", err)
		}
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return wrapError(ErrRateLimited, "Rate limited by the API. Wait a moment and retry.", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return wrapError(ErrCredential, "API key was rejected. Verify your Gemini API key.", err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return wrapError(ErrQuota, "API quota exceeded. Check your plan and billing.", err)
	case strings.Contains(msg, "rate limit"):
		return wrapError(ErrRateLimited, "Rate limited by the API. Wait a moment and retry.", err)
	case strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return wrapError(ErrCredential, "API key was rejected. Verify your Gemini API key.", err)
	}

	return wrapError(ErrUnknown, "Generation failed. Please try again.", err)
}
