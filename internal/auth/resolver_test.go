package auth

import (
	"errors"
	"testing"
)

func TestNewRequestContextPlatformAdmin(t *testing.T) {
	account := &Account{ID: "acc-1", Role: RolePlatformAdmin, Active: true, Verified: true}
	session := &Session{ID: "sess-1", AccountID: "acc-1"}

	rc, err := NewRequestContext(account, nil, session)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !rc.IsPlatformAdmin {
		t.Fatal("expected platform admin context")
	}
	if rc.TenantID != "" || rc.Plan != "" {
		t.Fatalf("platform admin must carry no tenant: %+v", rc)
	}
}

func TestNewRequestContextNoTenantAssociation(t *testing.T) {
	account := &Account{ID: "acc-1", Role: RoleOptometrist, Active: true, Verified: true}
	session := &Session{ID: "sess-1", AccountID: "acc-1"}

	if _, err := NewRequestContext(account, nil, session); !errors.Is(err, ErrNoTenantAssociation) {
		t.Fatalf("got %v, want ErrNoTenantAssociation", err)
	}
}

func TestNewRequestContextInactiveTenant(t *testing.T) {
	account := &Account{ID: "acc-1", TenantID: "ten-1", Role: RoleDispenser, Active: true, Verified: true}
	session := &Session{ID: "sess-1", AccountID: "acc-1"}

	if _, err := NewRequestContext(account, nil, session); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("missing tenant: got %v, want ErrSessionInvalid", err)
	}

	tenant := &Tenant{ID: "ten-1", Plan: PlanEssential, Active: false}
	if _, err := NewRequestContext(account, tenant, session); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("inactive tenant: got %v, want ErrSessionInvalid", err)
	}
}

func TestNewRequestContextCarriesPlanAndStepUp(t *testing.T) {
	account := &Account{ID: "acc-1", TenantID: "ten-1", Role: RoleTenantAdmin, Active: true, Verified: true}
	tenant := &Tenant{ID: "ten-1", Plan: PlanEnterprise, Active: true}
	session := &Session{ID: "sess-1", AccountID: "acc-1", TwoFactorVerified: true}

	rc, err := NewRequestContext(account, tenant, session)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rc.Plan != PlanEnterprise || !rc.TwoFactorVerified || rc.SessionID != "sess-1" {
		t.Fatalf("rc = %+v", rc)
	}
}

func TestPlanCovers(t *testing.T) {
	if !PlanCovers(PlanEnterprise, PlanProfessional) {
		t.Fatal("enterprise should cover professional")
	}
	if PlanCovers(PlanEssential, PlanProfessional) {
		t.Fatal("essential must not cover professional")
	}
	if !PlanCovers(PlanEssential, "") {
		t.Fatal("empty minimum means no plan gate")
	}
	if PlanCovers("unknown", PlanEssential) {
		t.Fatal("unknown plan must not cover anything")
	}
}
