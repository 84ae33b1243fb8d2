package perm

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select permission_key from role_permissions where role=$1 order by permission_key`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *PGStore) CustomGrants(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select permission_key from custom_grants where account_id=$1 order by permission_key`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *PGStore) Grant(ctx context.Context, accountID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into custom_grants(account_id, permission_key) values($1,$2)
		 on conflict (account_id, permission_key) do nothing`,
		accountID, key)
	return err
}

func (s *PGStore) Revoke(ctx context.Context, accountID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from custom_grants where account_id=$1 and permission_key=$2`,
		accountID, key)
	return err
}

func (s *PGStore) SetRolePermissions(ctx context.Context, role string, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role=$1`, role); err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`insert into role_permissions(role, permission_key) values($1,$2)`, role, key); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func collectKeys(rows *sql.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
