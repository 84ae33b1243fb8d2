package pg

import (
	"context"
	"database/sql"
	"time"

	"opticore.org/internal/auth"
	"opticore.org/internal/ids"
)

// ClinicalRecord is the sample tenant-scoped, PHI-bearing resource served by
// the API. Note that none of the queries below filter by tenant: the
// row-level security policy on clinical_records is the backstop and the
// only tenant filter.
type ClinicalRecord struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	PatientRef    string    `json:"patient_ref"`
	Summary       string    `json:"summary"`
	ClinicalNotes string    `json:"clinical_notes"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RecordStore persists clinical records through tenant-bound connections.
type RecordStore struct {
	pg *Store
}

func NewRecordStore(pg *Store) *RecordStore {
	return &RecordStore{pg: pg}
}

func (s *RecordStore) Create(ctx context.Context, rc auth.RequestContext, rec *ClinicalRecord) error {
	conn, err := s.pg.Bind(ctx, rc)
	if err != nil {
		return err
	}
	defer conn.Close()

	if rec.ID == "" {
		rec.ID = ids.New()
	}
	// Platform admins may pre-set the target tenant; everyone else writes
	// into their own, and the insert policy rejects anything different.
	if rec.TenantID == "" {
		rec.TenantID = rc.TenantID
	}
	rec.CreatedBy = rc.AccountID
	_, err = conn.ExecContext(ctx, `
		insert into clinical_records(id, tenant_id, patient_ref, summary, clinical_notes, created_by)
		values($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.TenantID, rec.PatientRef, rec.Summary, rec.ClinicalNotes, rec.CreatedBy)
	return err
}

func (s *RecordStore) Get(ctx context.Context, rc auth.RequestContext, id string) (*ClinicalRecord, error) {
	conn, err := s.pg.Bind(ctx, rc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	row := conn.QueryRowContext(ctx, `
		select id, tenant_id, patient_ref, summary, clinical_notes, created_by, created_at, updated_at
		from clinical_records where id=$1`, id)
	var rec ClinicalRecord
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.PatientRef, &rec.Summary,
		&rec.ClinicalNotes, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			// Either the record does not exist or it belongs to another
			// tenant; the policy makes the two indistinguishable.
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *RecordStore) List(ctx context.Context, rc auth.RequestContext, limit int) ([]ClinicalRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	conn, err := s.pg.Bind(ctx, rc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `
		select id, tenant_id, patient_ref, summary, clinical_notes, created_by, created_at, updated_at
		from clinical_records order by created_at desc limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ClinicalRecord
	for rows.Next() {
		var rec ClinicalRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.PatientRef, &rec.Summary,
			&rec.ClinicalNotes, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *RecordStore) Update(ctx context.Context, rc auth.RequestContext, id, summary, notes string) (*ClinicalRecord, error) {
	conn, err := s.pg.Bind(ctx, rc)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, `
		update clinical_records set summary=$2, clinical_notes=$3, updated_at=now()
		where id=$1`, id, summary, notes)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.get(ctx, conn, id)
}

func (s *RecordStore) get(ctx context.Context, conn *TenantConn, id string) (*ClinicalRecord, error) {
	row := conn.QueryRowContext(ctx, `
		select id, tenant_id, patient_ref, summary, clinical_notes, created_by, created_at, updated_at
		from clinical_records where id=$1`, id)
	var rec ClinicalRecord
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.PatientRef, &rec.Summary,
		&rec.ClinicalNotes, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
