package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError reports a missing or unusable credential or setting.
// It is never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Provider, e.Reason)
}

// UnsupportedProviderError is returned when a provider key is not registered.
type UnsupportedProviderError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q (supported: %s)", e.Name, strings.Join(e.Supported, ", "))
}

// ProviderCallError is the terminal failure of a remote call after the
// retry budget is spent. Err is the last underlying failure.
type ProviderCallError struct {
	Provider string
	Model    string
	Attempts int
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s (model %s): call failed after %d attempt(s): %v", e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// InvalidMessageError reports a message shape that cannot be sent.
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return "invalid message: " + e.Reason
}

// StatusError is a non-2xx answer from a vendor endpoint.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, body)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// IsAuthError reports whether err carries a 401/403 from a vendor.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}
