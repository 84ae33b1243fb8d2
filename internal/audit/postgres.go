package audit

import (
	"context"
	"database/sql"
	"encoding/json"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. The audit_records table has no
// update or delete grants; retention cleanup runs out-of-band and respects
// retention_until.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	var tenantID any
	if rec.TenantID != "" {
		tenantID = rec.TenantID
	}
	fields, _ := json.Marshal(rec.PHIFields)
	_, err := s.db.ExecContext(ctx, `
		insert into audit_records(
			id, actor_id, tenant_id, resource, resource_id, verb,
			status, success, error, before_ref, after_ref,
			phi_accessed, phi_fields, occurred_at, retention_until)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rec.ID, rec.ActorID, tenantID, rec.Resource, rec.ResourceID, rec.Verb,
		rec.Status, rec.Success, rec.Error, rec.BeforeRef, rec.AfterRef,
		rec.PHIAccessed, fields, rec.OccurredAt, rec.RetentionUntil,
	)
	return err
}

func (s *PGStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, coalesce(tenant_id,''), resource, resource_id, verb,
		       status, success, error, before_ref, after_ref,
		       phi_accessed, phi_fields, occurred_at, retention_until
		from audit_records
		where tenant_id = $1
		order by occurred_at desc
		limit $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var (
			rec    Record
			fields []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.ActorID, &rec.TenantID, &rec.Resource, &rec.ResourceID, &rec.Verb,
			&rec.Status, &rec.Success, &rec.Error, &rec.BeforeRef, &rec.AfterRef,
			&rec.PHIAccessed, &fields, &rec.OccurredAt, &rec.RetentionUntil,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(fields, &rec.PHIFields)
		res = append(res, rec)
	}
	return res, rows.Err()
}
