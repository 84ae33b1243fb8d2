package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts() AccountStore
	Tenants() TenantStore
	Sessions() SessionStore
}

// AccountStore manages staff identities.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// Deactivate flips the active flag off. Accounts are never hard-deleted.
	Deactivate(ctx context.Context, id string) error
	UpdateRole(ctx context.Context, id, role string) error
}

// TenantStore manages isolation boundaries.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	UpdatePlan(ctx context.Context, id, plan string) error
}

// SessionStore manages opaque session handles.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// FindLive resolves a token hash to its session together with the owning
	// account and tenant in one lookup. Expired and revoked sessions, inactive
	// or unverified accounts and inactive tenants all surface as ErrSessionInvalid
	// so a deactivation is observable on the very next request.
	FindLive(ctx context.Context, tokenHash string) (*Session, *Account, *Tenant, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID string) error
	MarkTwoFactorVerified(ctx context.Context, sessionID string) error
}
