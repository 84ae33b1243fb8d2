package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGSessionFindLive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"s.id", "s.account_id", "s.issued_at", "s.expires_at", "s.revoked_at", "s.two_factor_verified",
		"a.id", "a.tenant_id", "a.email", "a.password_hash", "a.role", "a.active", "a.verified", "a.created_at", "a.updated_at",
		"t.id", "t.name", "t.plan", "t.active", "t.created_at", "t.updated_at",
	}).AddRow(
		"sess-1", "acc-1", now, now.Add(12*time.Hour), nil, false,
		"acc-1", "ten-1", "jo@hillview.example", "x", RoleOptometrist, true, true, now, now,
		"ten-1", "Hillview Opticians", PlanProfessional, true, now, now,
	)
	mock.ExpectQuery("select s.id, s.account_id, .*from sessions s.*join accounts a.*left join tenants t").
		WithArgs("deadbeef").
		WillReturnRows(rows)

	store := NewPGStore(db)
	session, account, tenant, err := store.Sessions().FindLive(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("FindLive: %v", err)
	}
	if session.ID != "sess-1" || session.RevokedAt != nil {
		t.Fatalf("session = %+v", session)
	}
	if account.TenantID != "ten-1" || account.Role != RoleOptometrist {
		t.Fatalf("account = %+v", account)
	}
	if tenant == nil || tenant.Plan != PlanProfessional {
		t.Fatalf("tenant = %+v", tenant)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSessionFindLivePlatformAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"s.id", "s.account_id", "s.issued_at", "s.expires_at", "s.revoked_at", "s.two_factor_verified",
		"a.id", "a.tenant_id", "a.email", "a.password_hash", "a.role", "a.active", "a.verified", "a.created_at", "a.updated_at",
		"t.id", "t.name", "t.plan", "t.active", "t.created_at", "t.updated_at",
	}).AddRow(
		"sess-2", "acc-9", now, now.Add(time.Hour), nil, true,
		"acc-9", "", "root@opticore.org", "x", RolePlatformAdmin, true, true, now, now,
		nil, nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery("from sessions s").WithArgs("cafe").WillReturnRows(rows)

	store := NewPGStore(db)
	_, account, tenant, err := store.Sessions().FindLive(context.Background(), "cafe")
	if err != nil {
		t.Fatalf("FindLive: %v", err)
	}
	if account.TenantID != "" {
		t.Fatalf("expected empty tenant id, got %q", account.TenantID)
	}
	if tenant != nil {
		t.Fatalf("expected nil tenant, got %+v", tenant)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSessionFindLiveMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("from sessions s").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"s.id"}))

	store := NewPGStore(db)
	if _, _, _, err := store.Sessions().FindLive(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPGAccountDeactivateMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update accounts set active=false").
		WithArgs("acc-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	if err := store.Accounts().Deactivate(context.Background(), "acc-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
