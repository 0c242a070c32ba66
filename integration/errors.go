package integration

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the credential lifecycle.
var (
	// ErrTokenExpired signals an access token the provider rejected as
	// expired or invalid. The caller should attempt a refresh.
	ErrTokenExpired = errors.New("access token expired or invalid")

	// ErrNoRefreshToken signals an expired token that cannot be refreshed;
	// the organizer must re-authenticate.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshFailed signals a refresh attempt the provider rejected.
	// The integration is left untouched.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNotFound signals a missing integration record.
	ErrNotFound = errors.New("integration not found")
)

// RateLimitError is raised when a call budget is exhausted. Callers should
// defer the work, not abandon it.
type RateLimitError struct {
	Provider Provider
	Current  int
	Limit    int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d/%d", e.Provider, e.Current, e.Limit)
}

// APIError is a generic upstream failure with the status code and body
// preserved for diagnostics.
type APIError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// IsTransient reports whether an error is worth a bounded retry: rate limits
// and connection-class failures qualify, credential and client errors do not.
func IsTransient(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
