package domain

import "context"

// PermissionInput is what a PermissionPolicy sees of a verified token.
// HasClaim is false when the token carried no permissions claim at all.
type PermissionInput struct {
	Permissions []string `json:"permissions"`
	HasClaim    bool     `json:"has_permissions"`
	Required    string   `json:"required"`
}

type PermissionPolicy interface {
	Check(ctx context.Context, input PermissionInput) error
}

func MissingPermissionsError() *AuthError {
	return NewAuthError(AuthMissingPermissionsClaim, CodePermissionsMissing, "Permissions not included in JWT.", nil)
}

func PermissionNotFoundError() *AuthError {
	return NewAuthError(AuthPermissionNotFound, CodeUnauthorized, "Permission not found.", nil)
}
