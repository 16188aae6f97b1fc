package drive

import (
	"errors"
	"fmt"
)

// AuthKind classifies login failures.
type AuthKind string

const (
	// AuthInvalidCredentials means the appliance rejected the username or
	// password (HTTP 401/403). Terminal: retrying with the same credentials
	// cannot succeed.
	AuthInvalidCredentials AuthKind = "invalid_credentials"
	// AuthRateLimited means the appliance throttled the login endpoint
	// (HTTP 429). Retryable after backing off.
	AuthRateLimited AuthKind = "rate_limited"
	// AuthNetwork covers timeouts, refused connections, and TLS failures.
	AuthNetwork AuthKind = "network"
	// AuthProtocol means the login exchange did not follow the expected
	// shape, e.g. no CSRF token could be obtained.
	AuthProtocol AuthKind = "protocol"
)

// AuthError is returned by Client.Login and SessionManager.EnsureSession.
type AuthError struct {
	Kind   AuthKind
	Status int // HTTP status when the failure came from a response
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("login failed (%s): HTTP %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("login failed (%s): %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsInvalidCredentials reports whether err is a terminal credential failure.
func IsInvalidCredentials(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == AuthInvalidCredentials
}

// FetchKind classifies per-resource fetch failures.
type FetchKind string

const (
	// FetchUnauthorized means the session cookie or CSRF token was rejected
	// (HTTP 401/403). Drives the single re-login per cycle.
	FetchUnauthorized FetchKind = "unauthorized"
	// FetchNotFound means the resource does not exist on this firmware.
	FetchNotFound FetchKind = "not_found"
	// FetchMalformed means the response body could not be parsed.
	FetchMalformed FetchKind = "malformed"
	// FetchNetwork covers connection-level failures.
	FetchNetwork FetchKind = "network"
	// FetchTimeout means the request exceeded its deadline.
	FetchTimeout FetchKind = "timeout"
)

// FetchError is returned by Client.Fetch.
type FetchError struct {
	Resource string
	Kind     FetchKind
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s (%s): HTTP %d", e.Resource, e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Resource, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an auth-level fetch failure.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchUnauthorized
}
