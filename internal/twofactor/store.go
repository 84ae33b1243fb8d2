package twofactor

import "context"

// Store describes persistence for shared secrets and hashed backup codes.
type Store interface {
	// Upsert writes the credential for an account, replacing any pending one.
	Upsert(ctx context.Context, c *Credential) error
	// Find returns the credential, or ErrNotFound when setup never started.
	Find(ctx context.Context, accountID string) (*Credential, error)
	// Enable marks the credential confirmed.
	Enable(ctx context.Context, accountID string) error

	// ReplaceBackupCodes installs a fresh set of hashed backup codes.
	ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error
	// RedeemBackupCode deletes the code with the given hash and returns the
	// number of codes remaining. ErrNotFound means the code was never issued
	// or was already used: redemption is strictly one-time.
	RedeemBackupCode(ctx context.Context, accountID, hash string) (remaining int, err error)
}
