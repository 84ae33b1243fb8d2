package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"opticore.org/internal/ids"
)

const defaultSessionTTL = 12 * time.Hour

// Service implements the credential and session store: primary authentication,
// opaque token issuance and the per-request validation that backs the instant
// kill-switch.
type Service struct {
	store      Store
	now        func() time.Time
	sessionTTL time.Duration
	bcryptCost int
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSessionTTL configures issued session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithBcryptCost configures the credential hashing cost.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// TokenHash returns the hex SHA-256 digest under which a token is stored.
// Bearer values never touch the database in the clear.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newToken mints an unguessable opaque bearer value (256 bits of entropy).
func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Login is the result of a successful primary authentication. The token is
// returned to the client exactly once; only its hash persists.
type Login struct {
	Token   string
	Session *Session
	Account *Account
}

// Authenticate verifies primary credentials and issues a fresh session.
// Unknown account and wrong password collapse into ErrInvalidCredentials;
// inactive and unverified accounts keep their own sentinels for messaging,
// though the HTTP layer answers 401 either way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Login, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	account, err := s.store.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a bcrypt comparison anyway so the response time does
			// not reveal whether the email exists.
			_ = VerifyPassword(decoyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.Active {
		return nil, ErrAccountInactive
	}
	if !account.Verified {
		return nil, ErrAccountUnverified
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session := &Session{
		ID:        ids.New(),
		AccountID: account.ID,
		TokenHash: TokenHash(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, err
	}
	return &Login{Token: token, Session: session, Account: account}, nil
}

// Validate resolves a bearer token to an immutable RequestContext. Every call
// is a fresh store lookup: a token is trusted for exactly one request, so
// deactivation and revocation take effect with no propagation delay.
func (s *Service) Validate(ctx context.Context, token string) (RequestContext, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RequestContext{}, ErrSessionInvalid
	}
	session, account, tenant, err := s.store.Sessions().FindLive(ctx, TokenHash(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RequestContext{}, ErrSessionInvalid
		}
		return RequestContext{}, err
	}
	if s.now().After(session.ExpiresAt) || session.RevokedAt != nil {
		return RequestContext{}, ErrSessionInvalid
	}
	if !account.Active || !account.Verified {
		return RequestContext{}, ErrSessionInvalid
	}
	return NewRequestContext(account, tenant, session)
}

// Revoke invalidates a single session, used on logout.
func (s *Service) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrSessionInvalid
	}
	return s.store.Sessions().Revoke(ctx, TokenHash(token))
}

// RevokeAll invalidates every session an account holds, used on offboarding
// and administrative force-logout.
func (s *Service) RevokeAll(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return ErrInvalidInput
	}
	return s.store.Sessions().RevokeAllForAccount(ctx, accountID)
}

// MarkStepUpVerified flips the per-session two-factor sub-state after a
// successful code check. The flag lives on the session, not the account:
// step-up is owed once per session.
func (s *Service) MarkStepUpVerified(ctx context.Context, sessionID string) error {
	return s.store.Sessions().MarkTwoFactorVerified(ctx, sessionID)
}
