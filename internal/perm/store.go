package perm

import "context"

// Store describes persistence for the role matrix and custom grants.
type Store interface {
	// RolePermissions returns the permission keys granted to a role.
	RolePermissions(ctx context.Context, role string) ([]string, error)
	// CustomGrants returns per-account extra permission keys.
	CustomGrants(ctx context.Context, accountID string) ([]string, error)
	// Grant adds a custom grant; it is idempotent.
	Grant(ctx context.Context, accountID, key string) error
	// Revoke removes a custom grant, restoring the pre-grant state exactly.
	Revoke(ctx context.Context, accountID, key string) error
	// SetRolePermissions replaces the matrix row for a role.
	SetRolePermissions(ctx context.Context, role string, keys []string) error
}
