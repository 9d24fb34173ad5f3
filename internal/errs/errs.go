// Package errs defines the error taxonomy shared by every stage.
//
// Only ErrConfig and ErrNoIncidents abort a run. Everything else is
// recorded as a warning or flips the report into degraded mode.
package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNetwork marks a transient transport failure. Retryable.
	ErrNetwork = errors.New("network error")
	// ErrParse marks a document that could not be parsed. Not retried.
	ErrParse = errors.New("parse error")
	// ErrProviderFormat marks a structured API response that does not match
	// the expected schema. Not retried.
	ErrProviderFormat = errors.New("provider format error")
	// ErrLowConfidence marks a generic scrape that found no incident structure.
	ErrLowConfidence = errors.New("low-confidence scrape")
	// ErrValidation marks a record rejected by the normalizer.
	ErrValidation = errors.New("validation error")
	// ErrConfig marks invalid run configuration. Fatal.
	ErrConfig = errors.New("config error")
	// ErrNoIncidents is returned when every adapter came back empty for the target.
	ErrNoIncidents = errors.New("no incidents fetched")
	// ErrLimiterClosed is returned by a token bucket used after its run ended.
	ErrLimiterClosed = errors.New("rate limiter closed")
)

// ProviderErrorKind classifies AI provider failures.
type ProviderErrorKind string

const (
	RateLimited     ProviderErrorKind = "rate-limited"
	InvalidResponse ProviderErrorKind = "invalid-response"
	AuthFailure     ProviderErrorKind = "auth-failure"
	Unavailable     ProviderErrorKind = "unavailable"
)

// ProviderError is a failure talking to an AI provider.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps err as a ProviderError of the given kind.
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsProviderKind reports whether err is a ProviderError of the given kind.
func IsProviderKind(err error, kind ProviderErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

// Configf returns an ErrConfig-wrapped error.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Validationf returns an ErrValidation-wrapped error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrNetwork):
		return true
	case IsProviderKind(err, RateLimited), IsProviderKind(err, Unavailable):
		return true
	default:
		return false
	}
}

// Fatal reports whether err must abort the whole run.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrNoIncidents)
}
