package httpapi

import (
	"context"
	"slices"
	"sync"
	"time"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/twofactor"
)

// fakeAuthStore is an in-memory auth.Store for handler tests.
type fakeAuthStore struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	tenants  map[string]*auth.Tenant
	sessions map[string]*auth.Session // keyed by token hash
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		accounts: make(map[string]*auth.Account),
		tenants:  make(map[string]*auth.Tenant),
		sessions: make(map[string]*auth.Session),
	}
}

func (f *fakeAuthStore) Accounts() auth.AccountStore { return (*fakeAccounts)(f) }
func (f *fakeAuthStore) Tenants() auth.TenantStore   { return (*fakeTenants)(f) }
func (f *fakeAuthStore) Sessions() auth.SessionStore { return (*fakeSessions)(f) }

type fakeAccounts fakeAuthStore

func (f *fakeAccounts) Create(_ context.Context, a *auth.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeAccounts) Find(_ context.Context, id string) (*auth.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeAccounts) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Active = false
	return nil
}

func (f *fakeAccounts) UpdateRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Role = role
	return nil
}

type fakeTenants fakeAuthStore

func (f *fakeTenants) Create(_ context.Context, t *auth.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tenants[t.ID] = &cp
	return nil
}

func (f *fakeTenants) Find(_ context.Context, id string) (*auth.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenants) UpdatePlan(_ context.Context, id, plan string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.Plan = plan
	return nil
}

type fakeSessions fakeAuthStore

func (f *fakeSessions) Create(_ context.Context, s *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.TokenHash] = &cp
	return nil
}

func (f *fakeSessions) FindLive(_ context.Context, tokenHash string) (*auth.Session, *auth.Account, *auth.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, nil, nil, auth.ErrNotFound
	}
	a, ok := f.accounts[s.AccountID]
	if !ok {
		return nil, nil, nil, auth.ErrNotFound
	}
	sc, ac := *s, *a
	var tc *auth.Tenant
	if t, ok := f.tenants[a.TenantID]; ok {
		cp := *t
		tc = &cp
	}
	return &sc, &ac, tc, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	return nil
}

func (f *fakeSessions) RevokeAllForAccount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.AccountID == accountID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeSessions) MarkTwoFactorVerified(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == sessionID && s.RevokedAt == nil {
			s.TwoFactorVerified = true
			return nil
		}
	}
	return auth.ErrNotFound
}

// fakePermStore is an in-memory perm.Store.
type fakePermStore struct {
	mu     sync.Mutex
	roles  map[string][]string
	grants map[string][]string
}

func newFakePermStore() *fakePermStore {
	return &fakePermStore{
		roles:  make(map[string][]string),
		grants: make(map[string][]string),
	}
}

func (f *fakePermStore) RolePermissions(_ context.Context, role string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.roles[role]), nil
}

func (f *fakePermStore) CustomGrants(_ context.Context, accountID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.grants[accountID]), nil
}

func (f *fakePermStore) Grant(_ context.Context, accountID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.grants[accountID], key) {
		f.grants[accountID] = append(f.grants[accountID], key)
	}
	return nil
}

func (f *fakePermStore) Revoke(_ context.Context, accountID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[accountID] = slices.DeleteFunc(f.grants[accountID], func(k string) bool { return k == key })
	return nil
}

func (f *fakePermStore) SetRolePermissions(_ context.Context, role string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[role] = slices.Clone(keys)
	return nil
}

// fakeTwoFactorStore is an in-memory twofactor.Store.
type fakeTwoFactorStore struct {
	mu    sync.Mutex
	creds map[string]*twofactor.Credential
	codes map[string]map[string]struct{}
}

func newFakeTwoFactorStore() *fakeTwoFactorStore {
	return &fakeTwoFactorStore{
		creds: make(map[string]*twofactor.Credential),
		codes: make(map[string]map[string]struct{}),
	}
}

func (f *fakeTwoFactorStore) Upsert(_ context.Context, c *twofactor.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.creds[c.AccountID] = &cp
	return nil
}

func (f *fakeTwoFactorStore) Find(_ context.Context, accountID string) (*twofactor.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[accountID]
	if !ok {
		return nil, twofactor.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeTwoFactorStore) Enable(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[accountID]
	if !ok || c.Enabled {
		return twofactor.ErrNotFound
	}
	now := time.Now().UTC()
	c.Enabled = true
	c.ConfirmedAt = &now
	return nil
}

func (f *fakeTwoFactorStore) ReplaceBackupCodes(_ context.Context, accountID string, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	f.codes[accountID] = set
	return nil
}

func (f *fakeTwoFactorStore) RedeemBackupCode(_ context.Context, accountID, hash string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.codes[accountID]
	if _, ok := set[hash]; !ok {
		return 0, twofactor.ErrNotFound
	}
	delete(set, hash)
	return len(set), nil
}

// fakeAuditStore collects records for assertions.
type fakeAuditStore struct {
	mu      sync.Mutex
	records []audit.Record
}

func (f *fakeAuditStore) Append(_ context.Context, rec *audit.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeAuditStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]audit.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Record
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].TenantID == tenantID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}
