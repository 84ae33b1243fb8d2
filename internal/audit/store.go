package audit

import "context"

// Store appends immutable records. There are deliberately no update or
// delete operations.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// ListByTenant returns the newest records for a tenant, for the
	// tenant-admin review endpoint.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]Record, error)
}
