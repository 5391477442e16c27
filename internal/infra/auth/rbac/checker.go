package rbac

import (
	"context"
	"slices"

	"coffeeshop/internal/domain"
)

// PermissionChecker requires the exact permission string in the token's
// permissions claim. There is no wildcard or role inheritance.
type PermissionChecker struct{}

func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{}
}

func (p *PermissionChecker) Check(_ context.Context, input domain.PermissionInput) error {
	if input.Required == "" {
		return nil
	}
	if !input.HasClaim {
		return domain.MissingPermissionsError()
	}
	if !slices.Contains(input.Permissions, input.Required) {
		return domain.PermissionNotFoundError()
	}
	return nil
}

var _ domain.PermissionPolicy = (*PermissionChecker)(nil)
