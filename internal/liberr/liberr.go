// Package liberr defines the error taxonomy shared by the registry workers,
// the resilience layer, and the resolver.
package liberr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the library or version is absent upstream.
	// It is never retried and marks only the affected node unresolved.
	ErrNotFound = errors.New("library not found")

	// ErrUpstreamUnavailable indicates every mirror was exhausted or had an
	// open circuit. Like ErrNotFound it is non-fatal to a resolution.
	ErrUpstreamUnavailable = errors.New("upstream registry unavailable")

	// ErrUnsupportedEcosystem indicates no worker is registered for the
	// requested ecosystem. Fatal to the whole request.
	ErrUnsupportedEcosystem = errors.New("unsupported ecosystem")
)

// NotFound wraps ErrNotFound with ecosystem/library context.
func NotFound(ecosystem, name string) error {
	return fmt.Errorf("%s/%s: %w", ecosystem, name, ErrNotFound)
}

// StatusError carries an upstream HTTP status so the retry policy can
// classify it without string matching.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.URL)
}

// IsTransient reports whether err should be retried. Timeouts, connection
// errors and 5xx responses are transient; 4xx responses and the sentinel
// errors above are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupportedEcosystem) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == 429
	}
	// Unclassified errors from the HTTP client (timeouts, refused
	// connections, DNS) come through as plain transport errors.
	return !errors.Is(err, ErrUpstreamUnavailable)
}
