package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected HTTP_ADDR default: %s", cfg.HTTPAddr)
	}
	if cfg.SessionLifetime() != 12*time.Hour {
		t.Fatalf("unexpected session lifetime: %v", cfg.SessionLifetime())
	}
	if cfg.AuditRetentionYears != 6 {
		t.Fatalf("unexpected retention: %d", cfg.AuditRetentionYears)
	}
}

func TestLoadRejectsShortRetention(t *testing.T) {
	t.Setenv("AUDIT_RETENTION_YEARS", "2")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for retention below the regulatory floor")
	}
}

func TestLoadRejectsBadBcryptCost(t *testing.T) {
	t.Setenv("BCRYPT_COST", "99")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range bcrypt cost")
	}
}

func TestStepUpRoleSet(t *testing.T) {
	cfg := &Config{StepUpRoles: "Optometrist, tenant_admin,,platform_admin"}
	set := cfg.StepUpRoleSet()
	if len(set) != 3 {
		t.Fatalf("expected 3 roles, got %v", set)
	}
	if _, ok := set["optometrist"]; !ok {
		t.Fatalf("expected normalized role in set: %v", set)
	}
}
