package twofactor

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

func (s *PGStore) Upsert(ctx context.Context, c *Credential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into two_factor_credentials(account_id, secret, enabled, created_at)
		values($1,$2,$3,$4)
		on conflict (account_id) do update
		set secret = excluded.secret, enabled = excluded.enabled,
		    created_at = excluded.created_at, confirmed_at = null`,
		c.AccountID, c.Secret, c.Enabled, c.CreatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, accountID string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		select account_id, secret, enabled, created_at, confirmed_at
		from two_factor_credentials where account_id=$1`, accountID)
	var (
		c           Credential
		confirmedAt sql.NullTime
	)
	if err := row.Scan(&c.AccountID, &c.Secret, &c.Enabled, &c.CreatedAt, &confirmedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		c.ConfirmedAt = &t
	}
	return &c, nil
}

func (s *PGStore) Enable(ctx context.Context, accountID string) error {
	res, err := s.db.ExecContext(ctx, `
		update two_factor_credentials set enabled=true, confirmed_at=now()
		where account_id=$1 and enabled=false`, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from two_factor_backup_codes where account_id=$1`, accountID); err != nil {
		return err
	}
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`insert into two_factor_backup_codes(account_id, code_hash) values($1,$2)`,
			accountID, hash); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) RedeemBackupCode(ctx context.Context, accountID, hash string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from two_factor_backup_codes where account_id=$1 and code_hash=$2`,
		accountID, hash)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	var remaining int
	err = s.db.QueryRowContext(ctx,
		`select count(*) from two_factor_backup_codes where account_id=$1`, accountID).
		Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
