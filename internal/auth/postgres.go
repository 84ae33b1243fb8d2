package auth

import (
	"context"
	"database/sql"
	"time"

	"opticore.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts() AccountStore { return &accountStore{db: s.db} }
func (s *PGStore) Tenants() TenantStore   { return &tenantStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore { return &sessionStore{db: s.db} }

// Account store -------------------------------------------------------------
type accountStore struct{ db *sql.DB }

func (s *accountStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	var tenantID any
	if a.TenantID != "" {
		tenantID = a.TenantID
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, tenant_id, email, password_hash, role, active, verified)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, tenantID, a.Email, a.PasswordHash, a.Role, a.Active, a.Verified,
	)
	return err
}

const accountColumns = `id, coalesce(tenant_id, ''), email, password_hash, role, active, verified, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.PasswordHash, &a.Role,
		&a.Active, &a.Verified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *accountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *accountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *accountStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set active=false, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *accountStore) UpdateRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set role=$2, updated_at=now() where id=$1`, id, role)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Tenant store --------------------------------------------------------------
type tenantStore struct{ db *sql.DB }

func (s *tenantStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Plan == "" {
		t.Plan = PlanEssential
	}
	_, err := s.db.ExecContext(ctx,
		`insert into tenants(id, name, plan, active) values($1,$2,$3,$4)`,
		t.ID, t.Name, t.Plan, t.Active,
	)
	return err
}

func (s *tenantStore) Find(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, plan, active, created_at, updated_at from tenants where id=$1`, id)
	var t Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *tenantStore) UpdatePlan(ctx context.Context, id, plan string) error {
	res, err := s.db.ExecContext(ctx,
		`update tenants set plan=$2, updated_at=now() where id=$1`, id, plan)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Session store -------------------------------------------------------------
type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, account_id, token_hash, issued_at, expires_at, two_factor_verified)
		 values($1,$2,$3,$4,$5,$6)`,
		sess.ID, sess.AccountID, sess.TokenHash, sess.IssuedAt, sess.ExpiresAt, sess.TwoFactorVerified,
	)
	return err
}

// FindLive joins the session with its owning account and tenant in a single
// indexed lookup. The join is the kill-switch: the account row is read fresh
// on every request, so a deactivation is visible immediately.
func (s *sessionStore) FindLive(ctx context.Context, tokenHash string) (*Session, *Account, *Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		select s.id, s.account_id, s.issued_at, s.expires_at, s.revoked_at, s.two_factor_verified,
		       a.id, coalesce(a.tenant_id, ''), a.email, a.password_hash, a.role, a.active, a.verified, a.created_at, a.updated_at,
		       t.id, t.name, t.plan, t.active, t.created_at, t.updated_at
		from sessions s
		join accounts a on a.id = s.account_id
		left join tenants t on t.id = a.tenant_id
		where s.token_hash = $1`,
		tokenHash,
	)
	var (
		sess Session
		acct Account

		revokedAt    sql.NullTime
		tenantID     sql.NullString
		tenantName   sql.NullString
		tenantPlan   sql.NullString
		tenantActive sql.NullBool
		tenantCA     sql.NullTime
		tenantUA     sql.NullTime
	)
	err := row.Scan(
		&sess.ID, &sess.AccountID, &sess.IssuedAt, &sess.ExpiresAt, &revokedAt, &sess.TwoFactorVerified,
		&acct.ID, &acct.TenantID, &acct.Email, &acct.PasswordHash, &acct.Role, &acct.Active, &acct.Verified, &acct.CreatedAt, &acct.UpdatedAt,
		&tenantID, &tenantName, &tenantPlan, &tenantActive, &tenantCA, &tenantUA,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, nil, ErrNotFound
		}
		return nil, nil, nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	var tenant *Tenant
	if tenantID.Valid {
		tenant = &Tenant{
			ID:        tenantID.String,
			Name:      tenantName.String,
			Plan:      tenantPlan.String,
			Active:    tenantActive.Bool,
			CreatedAt: tenantCA.Time,
			UpdatedAt: tenantUA.Time,
		}
	}
	return &sess, &acct, tenant, nil
}

func (s *sessionStore) Revoke(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=$2 where token_hash=$1 and revoked_at is null`,
		tokenHash, time.Now().UTC())
	return err
}

func (s *sessionStore) RevokeAllForAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=$2 where account_id=$1 and revoked_at is null`,
		accountID, time.Now().UTC())
	return err
}

func (s *sessionStore) MarkTwoFactorVerified(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set two_factor_verified=true where id=$1 and revoked_at is null`,
		sessionID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
