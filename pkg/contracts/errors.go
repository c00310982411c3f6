package contracts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchError kinds, used by the chain to classify continuation.
const (
	ErrKindRateLimit   = "rate_limit"
	ErrKindAuth        = "auth"
	ErrKindTimeout     = "timeout"
	ErrKindUnavailable = "unavailable"
	ErrKindBadResponse = "bad_response"
)

// FetchError is the typed failure adapters hand to the chain. Every kind
// continues to the next adapter; auth and rate-limit outcomes are logged
// distinctly because they indicate configuration and budget problems
// rather than transient load.
type FetchError struct {
	Provider   string
	Kind       string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// NewRateLimitError marks a call skipped or rejected for quota reasons,
// including pre-call bypasses that never reached the network.
func NewRateLimitError(provider, message string) *FetchError {
	return &FetchError{Provider: provider, Kind: ErrKindRateLimit, Message: message}
}

// NewBadResponseError marks an upstream body that could not be decoded.
func NewBadResponseError(provider, message string) *FetchError {
	return &FetchError{Provider: provider, Kind: ErrKindBadResponse, Message: message}
}

// Classify maps a non-OK HTTP status to a FetchError.
func Classify(provider string, statusCode int, body string) *FetchError {
	kind := ErrKindBadResponse
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = ErrKindAuth
	case statusCode == http.StatusTooManyRequests:
		kind = ErrKindRateLimit
	case statusCode >= 500:
		kind = ErrKindUnavailable
	}
	return &FetchError{Provider: provider, Kind: kind, StatusCode: statusCode, Message: truncate(body, 200)}
}

// WrapTransport maps a transport-level failure (DNS, refused connection,
// deadline) to a FetchError, distinguishing timeouts from the rest.
func WrapTransport(provider string, err error) *FetchError {
	kind := ErrKindUnavailable
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		kind = ErrKindTimeout
	}
	return &FetchError{Provider: provider, Kind: kind, Message: err.Error(), Cause: err}
}

// ErrKind extracts the classification kind, or "" for untyped errors.
func ErrKind(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind string) bool {
	return ErrKind(err) == kind
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
