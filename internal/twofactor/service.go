package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"opticore.org/internal/obs"
)

const (
	backupCodeCount = 10
	backupCodeBytes = 5 // 8 base32 characters
	// backupLowWater triggers the low-confidence alert on redemption.
	backupLowWater = 3
)

// Service drives the enrollment state machine and per-session verification.
type Service struct {
	store  Store
	issuer string
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful in tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service. The issuer labels otpauth provisioning URLs.
func NewService(store Store, issuer string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("twofactor: store is required")
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "opticore"
	}
	s := &Service{store: store, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the enrollment state for an account.
func (s *Service) State(ctx context.Context, accountID string) (State, error) {
	cred, err := s.store.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StateDisabled, nil
		}
		return StateDisabled, err
	}
	return StateOf(cred), nil
}

// BeginSetup transitions Disabled→PendingSetup: it provisions a fresh shared
// secret and returns the otpauth URL for the authenticator QR code. Calling
// it again while pending rotates the pending secret; it refuses to touch a
// confirmed enrollment.
func (s *Service) BeginSetup(ctx context.Context, accountID, email string) (secret, provisioningURL string, err error) {
	existing, err := s.store.Find(ctx, accountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", "", err
	}
	if existing != nil && existing.Enabled {
		return "", "", ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
	})
	if err != nil {
		return "", "", fmt.Errorf("twofactor: generate secret: %w", err)
	}
	cred := &Credential{
		AccountID: accountID,
		Secret:    key.Secret(),
		Enabled:   false,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, cred); err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// ConfirmSetup transitions PendingSetup→Enabled on one correct code and mints
// the single-use backup codes. The plaintext codes are returned exactly once;
// only their hashes are stored.
func (s *Service) ConfirmSetup(ctx context.Context, accountID, code string) ([]string, error) {
	cred, err := s.store.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrSetupRequired
		}
		return nil, err
	}
	if cred.Enabled {
		return nil, ErrAlreadyEnabled
	}
	if !totp.Validate(strings.TrimSpace(code), cred.Secret) {
		return nil, ErrInvalidCode
	}
	if err := s.store.Enable(ctx, accountID); err != nil {
		return nil, err
	}

	codes, hashes, err := mintBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// VerifySession checks a TOTP or backup code at step-up time. Backup code
// redemption burns the code; running low raises an operational alert.
func (s *Service) VerifySession(ctx context.Context, accountID, code string) error {
	cred, err := s.store.Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSetupRequired
		}
		return err
	}
	if !cred.Enabled {
		return ErrSetupRequired
	}

	code = strings.TrimSpace(code)
	if totp.Validate(code, cred.Secret) {
		return nil
	}

	remaining, err := s.store.RedeemBackupCode(ctx, accountID, codeHash(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}
	if remaining <= backupLowWater {
		obs.TwoFactorBackupLowTotal.Inc()
		obs.Warn("two_factor_backup_codes_low", map[string]any{
			"account_id": accountID,
			"remaining":  remaining,
		})
	}
	return nil
}

func mintBackupCodes() (codes, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := strings.ToLower(enc.EncodeToString(raw))
		codes = append(codes, code)
		hashes = append(hashes, codeHash(code))
	}
	return codes, hashes, nil
}

func codeHash(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}
