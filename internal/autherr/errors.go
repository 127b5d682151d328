package autherr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	pkgstrings "gatekeep/pkg/strings"
)

// ErrCancelled is returned when the caller abandons an interactive login
// before the redirect arrives.
var ErrCancelled = errors.New("interactive login cancelled")

// ErrNotAuthenticated is returned when an operation needs a session and none
// exists, including after the session ended because its refresh token was
// rejected.
var ErrNotAuthenticated = errors.New("not signed in")

// ErrConfirmationPending is returned by sign-up when the provider created the
// account but withholds a session until the email address is confirmed.
var ErrConfirmationPending = errors.New("email confirmation pending")

// ValidationError reports bad input supplied by the caller. It is never retried.
type ValidationError struct {
	// Field is the name of the offending input, e.g. "email".
	Field string

	// Message describes what is wrong with it.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// TransportError reports a network-level failure talking to a remote endpoint.
// It is safe to retry with backoff.
type TransportError struct {
	// Op names the operation that failed, e.g. "sign in".
	Op string

	// Err is the underlying network error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderError reports that the identity provider answered with a non-2xx
// status. Body holds the raw response body; Code and Message are filled from
// it when the provider returned a recognisable error document.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string

	// Code is the provider's machine-readable error code (e.g. "invalid_grant").
	Code string

	// Message is the provider's human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = pkgstrings.Truncate(e.Body, pkgstrings.DefaultDetailMaxLen)
	}
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: identity provider rejected request (status %d): %s", e.Op, e.StatusCode, detail)
}

// Terminal reports whether the rejection invalidates the credential that was
// presented. 4xx answers are terminal except for timeouts and rate limiting.
func (e *ProviderError) Terminal() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	return e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// Retryable reports whether the same request may succeed later.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// DecodeError reports a response body that could not be parsed into the
// expected shape. It is treated as a provider bug: surfaced, not retried.
type DecodeError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed provider response: %v", e.Op, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RedirectError reports a bad OAuth redirect: missing code, state mismatch or
// an error returned by the authorization server. Terminal for the attempt.
type RedirectError struct {
	Reason string

	// ProviderCode and Description carry the authorization server's
	// error/error_description query parameters, when present.
	ProviderCode string
	Description  string
}

// Error implements the error interface.
func (e *RedirectError) Error() string {
	if e.ProviderCode == "" {
		return "oauth redirect failed: " + e.Reason
	}
	if e.Description != "" {
		return fmt.Sprintf("oauth redirect failed: %s (%s: %s)", e.Reason, e.ProviderCode, e.Description)
	}
	return fmt.Sprintf("oauth redirect failed: %s (%s)", e.Reason, e.ProviderCode)
}

// TimeoutError reports that no redirect arrived within the configured window.
type TimeoutError struct {
	After time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for the oauth redirect", e.After)
}

// EnvironmentError reports that the interactive flow cannot run on this
// machine, typically because no browser launcher is available. URL is the
// authorization URL the user can open manually.
type EnvironmentError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *EnvironmentError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("cannot launch browser: %v", e.Err)
	}
	return fmt.Sprintf("cannot launch browser: %v; open this URL manually: %s", e.Err, e.URL)
}

// Unwrap returns the launcher error.
func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// PersistenceError reports that local credential storage is unavailable.
// Callers degrade to memory-only operation.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential store %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether err means the current session is no longer
// usable and the user has to authenticate again.
func IsTerminal(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Terminal()
	}
	return false
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return false
}

// UserMessage renders err as a short, human-readable sentence.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		validationErr *ValidationError
		transportErr  *TransportError
		provErr       *ProviderError
		decodeErr     *DecodeError
		redirectErr   *RedirectError
		timeoutErr    *TimeoutError
		envErr        *EnvironmentError
		persistErr    *PersistenceError
	)

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "You are not signed in."
	case errors.As(err, &validationErr):
		return fmt.Sprintf("Please check the %s: %s.", validationErr.Field, validationErr.Message)
	case errors.As(err, &transportErr):
		return "Could not reach the identity provider. Check your connection and try again."
	case errors.As(err, &provErr):
		switch {
		case provErr.Message != "":
			return provErr.Message
		case provErr.StatusCode == http.StatusTooManyRequests:
			return "Too many attempts. Please wait a moment and try again."
		case provErr.Retryable():
			return "The identity provider is unavailable. Please try again later."
		default:
			return "The identity provider rejected the request."
		}
	case errors.As(err, &decodeErr):
		return "The identity provider returned an unexpected response."
	case errors.As(err, &redirectErr):
		return "Sign-in did not complete: " + redirectErr.Reason + "."
	case errors.As(err, &timeoutErr):
		return "Sign-in timed out waiting for the browser."
	case errors.Is(err, ErrCancelled):
		return "Sign-in was cancelled."
	case errors.Is(err, ErrConfirmationPending):
		return "Check your inbox to confirm your email address, then sign in."
	case errors.As(err, &envErr):
		if envErr.URL != "" {
			return "Could not open a browser. Open this URL to continue: " + envErr.URL
		}
		return "Could not open a browser."
	case errors.As(err, &persistErr):
		return "Signed in, but the session could not be saved on this machine."
	default:
		return err.Error()
	}
}
