package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures so callers can react without parsing messages.
type ErrorKind string

// Provider error kinds.
const (
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindAuthorizationDenied  ErrorKind = "authorization_denied"
	KindModelUnavailable     ErrorKind = "model_unavailable"
	KindUnsupportedModel     ErrorKind = "unsupported_model"
	KindRateLimited          ErrorKind = "rate_limited"
	KindMalformedRequest     ErrorKind = "malformed_request"
	KindUnexpectedResponse   ErrorKind = "unexpected_response"
	KindTransport            ErrorKind = "transport"
)

// ProviderError is the structured error returned by every provider.
type ProviderError struct {
	Kind     ErrorKind
	Provider string // provider display name
	Code     string // raw backend code, e.g. "ThrottlingException" or "429"
	Message  string
	Hint     string // remediation shown to the user
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// Unwrap allows errors.Is/As to reach the backend error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError checks if err is a ProviderError and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := IsProviderError(err)
	return ok && pe.Kind == kind
}

func newError(provider string, kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Provider: provider,
		Message:  message,
		Hint:     defaultHint(kind),
		Err:      err,
	}
}

func defaultHint(kind ErrorKind) string {
	switch kind {
	case KindConfigurationMissing:
		return "Update the intellipy settings (intellipy.yaml or INTELLIPY_* environment variables)"
	case KindAuthorizationDenied:
		return "Check your credentials and that your account has access to this model"
	case KindModelUnavailable:
		return "The model is not ready or not enabled; try again later or pick another model"
	case KindUnsupportedModel:
		return "Choose a supported model identifier"
	case KindRateLimited:
		return "Rate limit exceeded. Please try again later"
	case KindMalformedRequest:
		return "The backend rejected the request"
	case KindUnexpectedResponse:
		return "The backend replied in an unrecognized format"
	default:
		return ""
	}
}

// classifyStatus maps an HTTP status from an HTTP-based backend to a ProviderError.
func classifyStatus(provider string, status int, message string, err error) *ProviderError {
	if message == "" {
		message = fmt.Sprintf("request failed with status %d %s", status, http.StatusText(status))
	}

	var kind ErrorKind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthorizationDenied
	case status == http.StatusNotFound:
		kind = KindModelUnavailable
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = KindMalformedRequest
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status >= 500:
		kind = KindModelUnavailable
	default:
		kind = KindTransport
	}

	pe := newError(provider, kind, message, err)
	pe.Code = fmt.Sprintf("%d", status)
	return pe
}

// classifyTransport wraps a failure that happened before any backend status was received.
func classifyTransport(provider string, err error) *ProviderError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(provider, KindTransport, "request abandoned: "+err.Error(), err)
	}
	return newError(provider, KindTransport, err.Error(), err)
}
