package twofactor

import (
	"context"

	"opticore.org/internal/auth"
)

// Gate enforces the step-up rule: for designated roles, a request may not
// reach the permission engine unless its session carries a verified second
// factor. Non-designated roles bypass the gate entirely.
type Gate struct {
	service     *Service
	stepUpRoles map[string]struct{}
}

// NewGate constructs a Gate for the configured step-up role set.
func NewGate(service *Service, stepUpRoles map[string]struct{}) *Gate {
	if stepUpRoles == nil {
		stepUpRoles = map[string]struct{}{}
	}
	return &Gate{service: service, stepUpRoles: stepUpRoles}
}

// Required reports whether the role is designated step-up required.
func (g *Gate) Required(role string) bool {
	_, ok := g.stepUpRoles[role]
	return ok
}

// Check rejects the request with ErrSetupRequired when enrollment is missing
// or unconfirmed, and with ErrStepUpRequired when the session has not yet
// verified a code. Both are distinguishable from a permission denial so the
// client can route the user to setup or step-up instead of an upgrade page.
func (g *Gate) Check(ctx context.Context, rc auth.RequestContext) error {
	if !g.Required(rc.Role) {
		return nil
	}
	state, err := g.service.State(ctx, rc.AccountID)
	if err != nil {
		return err
	}
	switch state {
	case StateDisabled, StatePendingSetup:
		return ErrSetupRequired
	}
	if !rc.TwoFactorVerified {
		return ErrStepUpRequired
	}
	return nil
}
