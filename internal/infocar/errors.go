package infocar

import (
	"errors"
	"fmt"
)

// AuthErrorKind distinguishes the failure points of the login handshake and
// session lifecycle.
type AuthErrorKind string

const (
	// AuthErrCSRF means the CSRF token could not be found on the login page.
	AuthErrCSRF AuthErrorKind = "csrf"
	// AuthErrCredentials means the service rejected the username/password.
	AuthErrCredentials AuthErrorKind = "credentials"
	// AuthErrToken means the authorize redirect carried no access token.
	AuthErrToken AuthErrorKind = "token"
	// AuthErrExpired means the bearer token is no longer accepted (401).
	// This kind drives re-login; it is never retried.
	AuthErrExpired AuthErrorKind = "expired"
)

// AuthError is a failure of the authenticated session itself.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// IsSessionExpired reports whether err is the distinguished expired-session
// condition that requires a fresh login.
func IsSessionExpired(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == AuthErrExpired
}

// CaptchaError wraps a failure of the verification-solving capability.
type CaptchaError struct {
	Err error
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("captcha solve failed: %v", e.Err)
}

func (e *CaptchaError) Unwrap() error { return e.Err }

// NetworkError wraps a transport-level failure (connection, timeout).
// Eligible for the polling retry budget.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is an unexpected response from the scheduling service: a bad
// status code or a known rejection marker in the body.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("service rejected request: %s", e.Body)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
