// Package twofactor implements the mandatory step-up authentication state
// machine: TOTP enrollment, per-session verification and single-use backup
// codes.
package twofactor

import (
	"errors"
	"time"
)

// Account-level enrollment states.
type State string

const (
	// StateDisabled means no secret exists yet.
	StateDisabled State = "disabled"
	// StatePendingSetup means a secret was provisioned but never confirmed.
	// Pending secrets do not gate access.
	StatePendingSetup State = "pending_setup"
	// StateEnabled means enrollment is confirmed. Each session additionally
	// tracks its own verified sub-state.
	StateEnabled State = "enabled"
)

var (
	// ErrInvalidCode rejects a wrong TOTP or backup code.
	ErrInvalidCode = errors.New("twofactor: invalid code")
	// ErrAlreadyEnabled rejects a second enrollment while one is confirmed.
	ErrAlreadyEnabled = errors.New("twofactor: already enabled")
	// ErrSetupRequired tells a step-up role to complete enrollment first.
	ErrSetupRequired = errors.New("twofactor: setup required")
	// ErrStepUpRequired tells an enrolled session to verify a code first.
	ErrStepUpRequired = errors.New("twofactor: verification required for this session")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("twofactor: not found")
)

// Credential is the per-account shared secret and its enrollment state.
type Credential struct {
	AccountID   string
	Secret      string
	Enabled     bool
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// StateOf maps a stored credential (or its absence) to an enrollment state.
func StateOf(c *Credential) State {
	switch {
	case c == nil:
		return StateDisabled
	case !c.Enabled:
		return StatePendingSetup
	default:
		return StateEnabled
	}
}
