package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords,
	// deliberately indistinguishable to prevent account enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountInactive marks a deactivated account. Offboarding sets the
	// flag; every live session dies on its next validation.
	ErrAccountInactive = errors.New("auth: account inactive")
	// ErrAccountUnverified marks an account that never completed verification.
	ErrAccountUnverified = errors.New("auth: account unverified")
	// ErrSessionInvalid covers missing, expired and revoked sessions.
	ErrSessionInvalid = errors.New("auth: session invalid")
	// ErrNoTenantAssociation marks a non-platform account without a tenant.
	ErrNoTenantAssociation = errors.New("auth: account has no tenant association")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("auth: not found")
	// ErrInvalidInput rejects malformed identifiers and fields.
	ErrInvalidInput = errors.New("auth: invalid input")
)
