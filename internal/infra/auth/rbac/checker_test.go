package rbac

import (
	"context"
	"testing"

	"coffeeshop/internal/domain"
)

func TestPermissionChecker_MissingClaim(t *testing.T) {
	checker := NewPermissionChecker()
	err := checker.Check(context.Background(), domain.PermissionInput{Required: "post:drinks"})
	authErr, ok := domain.AsAuthError(err)
	if !ok {
		t.Fatalf("expected auth error, got %v", err)
	}
	if authErr.Kind != domain.AuthMissingPermissionsClaim {
		t.Fatalf("expected MissingPermissionsClaim, got %s", authErr.Kind)
	}
}

func TestPermissionChecker_PermissionNotFound(t *testing.T) {
	checker := NewPermissionChecker()
	err := checker.Check(context.Background(), domain.PermissionInput{
		Permissions: []string{"get:drinks-detail"},
		HasClaim:    true,
		Required:    "post:drinks",
	})
	authErr, ok := domain.AsAuthError(err)
	if !ok {
		t.Fatalf("expected auth error, got %v", err)
	}
	if authErr.Kind != domain.AuthPermissionNotFound {
		t.Fatalf("expected PermissionNotFound, got %s", authErr.Kind)
	}
	if authErr.Status != 401 {
		t.Fatalf("expected 401, got %d", authErr.Status)
	}
}

func TestPermissionChecker_EmptyClaimIsNotMissing(t *testing.T) {
	checker := NewPermissionChecker()
	err := checker.Check(context.Background(), domain.PermissionInput{
		Permissions: []string{},
		HasClaim:    true,
		Required:    "patch:drinks",
	})
	authErr, ok := domain.AsAuthError(err)
	if !ok || authErr.Kind != domain.AuthPermissionNotFound {
		t.Fatalf("expected PermissionNotFound, got %v", err)
	}
}

func TestPermissionChecker_ExactMatchOnly(t *testing.T) {
	checker := NewPermissionChecker()
	input := domain.PermissionInput{
		Permissions: []string{"delete:drinks-extra", "DELETE:drinks", "delete:*"},
		HasClaim:    true,
		Required:    "delete:drinks",
	}
	if err := checker.Check(context.Background(), input); err == nil {
		t.Fatal("expected near-miss permissions to be rejected")
	}
	input.Permissions = append(input.Permissions, "delete:drinks")
	if err := checker.Check(context.Background(), input); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestPermissionChecker_NoRequirement(t *testing.T) {
	if err := NewPermissionChecker().Check(context.Background(), domain.PermissionInput{}); err != nil {
		t.Fatalf("expected allow without requirement, got %v", err)
	}
}
