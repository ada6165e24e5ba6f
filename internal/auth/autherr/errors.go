// Package autherr defines the error taxonomy shared by the session coordinator.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthExpired is returned when a 401 could not be recovered by a token refresh.
// All stored credentials have been cleared by the time it is returned.
var ErrAuthExpired = errors.New("authentication expired")

// ConfigurationError reports that no client id is available for the current runtime.
// It is fatal to the attempt and never retried.
type ConfigurationError struct {
	Runtime string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s runtime): %s", e.Runtime, e.Reason)
}

// APIError is any non-2xx response other than a recovered 401.
type APIError struct {
	Status  int
	Message string
	// Body is the best-effort decoded response body, nil when it was not JSON.
	Body any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: HTTP %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.Status, e.Message)
}

// VerificationError means the token exchange succeeded but the server profile
// could not be fetched afterwards, i.e. the account row is missing or unreadable.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("account verification failed: %v", e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// NetworkError wraps transport level failures (offline, DNS, timeouts).
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx response whose body is not valid JSON for the expected type.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ProviderError is an error reported by the identity provider on the redirect back
// (error and error_description query parameters).
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity provider error: %s", e.Code)
	}
	return fmt.Sprintf("identity provider error: %s: %s", e.Code, e.Description)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
