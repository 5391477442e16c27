package domain

import (
	"errors"
	"net/http"
)

type AuthErrorKind string

const (
	AuthInvalidHeader           AuthErrorKind = "InvalidHeader"
	AuthInvalidSignature        AuthErrorKind = "InvalidSignature"
	AuthInvalidClaims           AuthErrorKind = "InvalidClaims"
	AuthKeySetUnavailable       AuthErrorKind = "KeySetUnavailable"
	AuthMissingPermissionsClaim AuthErrorKind = "MissingPermissionsClaim"
	AuthPermissionNotFound      AuthErrorKind = "PermissionNotFound"
)

const (
	CodeHeaderMissing      = "authorization_header_missing"
	CodeInvalidHeader      = "invalid_header"
	CodeInvalidSignature   = "invalid_signature"
	CodeInvalidClaims      = "invalid_claims"
	CodeTokenExpired       = "token_expired"
	CodeKeySetUnavailable  = "key_set_unavailable"
	CodePermissionsMissing = "permissions_not_included"
	CodeUnauthorized       = "unauthorized"
)

// AuthError is the only error type returned by a Verifier. Code and
// Description are safe to hand to clients; Err is the internal cause.
type AuthError struct {
	Kind        AuthErrorKind
	Status      int
	Code        string
	Description string
	Err         error
}

func NewAuthError(kind AuthErrorKind, code, description string, cause error) *AuthError {
	return &AuthError{
		Kind:        kind,
		Status:      kind.Status(),
		Code:        code,
		Description: description,
		Err:         cause,
	}
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Description + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Description
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether repeating the whole request may succeed.
func (e *AuthError) Retryable() bool {
	return e != nil && e.Kind == AuthKeySetUnavailable
}

func (k AuthErrorKind) Status() int {
	if k == AuthKeySetUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

func AsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
