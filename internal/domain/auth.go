package domain

import (
	"context"
	"time"
)

type Claims struct {
	Subject     string
	Issuer      string
	Audience    []string
	ExpiresAt   time.Time
	Permissions []string
}

// Verifier checks the raw Authorization header value of a request against a
// required permission. A failed verification always returns an *AuthError.
type Verifier interface {
	Verify(ctx context.Context, authorizationHeader string, permission string) (Claims, error)
}
