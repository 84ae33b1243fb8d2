package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"opticore.org/internal/auth"
)

func TestBindAppliesTenantSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("select set_config\\('app.tenant_id', \\$1, false\\), set_config\\('app.is_platform_admin', \\$2, false\\)").
		WithArgs("ten-1", "off").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("select set_config\\('app.tenant_id', '', false\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	rc := auth.RequestContext{AccountID: "acc-1", TenantID: "ten-1", Role: auth.RoleDispenser}
	conn, err := store.Bind(context.Background(), rc)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBindPlatformAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("select set_config").
		WithArgs("", "on").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("select set_config").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	rc := auth.RequestContext{AccountID: "acc-root", IsPlatformAdmin: true, Role: auth.RolePlatformAdmin}
	conn, err := store.Bind(context.Background(), rc)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	_ = conn.Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordStoreGetMapsNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("select set_config").
		WithArgs("ten-1", "off").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, tenant_id, patient_ref, summary, clinical_notes, created_by, created_at, updated_at.*from clinical_records where id=\\$1").
		WithArgs("rec-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("select set_config").
		WillReturnResult(sqlmock.NewResult(0, 0))

	records := NewRecordStore(NewStore(db))
	rc := auth.RequestContext{AccountID: "acc-1", TenantID: "ten-1", Role: auth.RoleOptometrist}
	if _, err := records.Get(context.Background(), rc, "rec-404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
