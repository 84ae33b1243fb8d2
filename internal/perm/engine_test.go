package perm

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"opticore.org/internal/auth"
)

// memStore is an in-memory permission store tracking lookup counts so tests
// can observe cache behavior.
type memStore struct {
	mu      sync.Mutex
	roles   map[string][]string
	grants  map[string][]string
	lookups int
}

func newMemStore() *memStore {
	return &memStore{
		roles:  make(map[string][]string),
		grants: make(map[string][]string),
	}
}

func (m *memStore) RolePermissions(_ context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return slices.Clone(m.roles[role]), nil
}

func (m *memStore) CustomGrants(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.grants[accountID]), nil
}

func (m *memStore) Grant(_ context.Context, accountID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.grants[accountID], key) {
		m.grants[accountID] = append(m.grants[accountID], key)
	}
	return nil
}

func (m *memStore) Revoke(_ context.Context, accountID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[accountID] = slices.DeleteFunc(m.grants[accountID], func(k string) bool { return k == key })
	return nil
}

func (m *memStore) SetRolePermissions(_ context.Context, role string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role] = slices.Clone(keys)
	return nil
}

func (m *memStore) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func seedDefaults(t *testing.T, store *memStore) {
	t.Helper()
	for role, keys := range RoleDefaults {
		if err := store.SetRolePermissions(context.Background(), role, keys); err != nil {
			t.Fatalf("seed %s: %v", role, err)
		}
	}
}

func dispenserContext() auth.RequestContext {
	return auth.RequestContext{
		AccountID: "acc-1",
		SessionID: "sess-1",
		TenantID:  "ten-1",
		Role:      auth.RoleDispenser,
		Plan:      auth.PlanProfessional,
	}
}

func TestEffectiveUnionOfRoleAndGrants(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()
	rc := dispenserContext()

	keys, err := engine.Effective(ctx, rc)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	want := []string{PermDispensingManage, PermPrescriptionsView, PermRecordsView}
	if !slices.Equal(keys, want) {
		t.Fatalf("effective = %v, want %v", keys, want)
	}

	// A custom grant widens the set without touching the role.
	if err := store.Grant(ctx, rc.AccountID, PermRecordsEdit); err != nil {
		t.Fatalf("grant: %v", err)
	}
	engine.Invalidate(rc.AccountID)
	ok, err := engine.HasPermission(ctx, rc, PermRecordsEdit)
	if err != nil || !ok {
		t.Fatalf("expected records:edit after grant, ok=%v err=%v", ok, err)
	}

	// Revoking the grant restores the pre-grant state exactly.
	if err := store.Revoke(ctx, rc.AccountID, PermRecordsEdit); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	engine.Invalidate(rc.AccountID)
	keys, err = engine.Effective(ctx, rc)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if !slices.Equal(keys, want) {
		t.Fatalf("effective after revoke = %v, want %v", keys, want)
	}
}

func TestPlanFiltersPermissions(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()

	rc := auth.RequestContext{
		AccountID: "acc-2",
		SessionID: "sess-2",
		TenantID:  "ten-1",
		Role:      auth.RoleTenantAdmin,
		Plan:      auth.PlanEssential,
	}

	// analytics:view needs enterprise, claims:submit needs professional.
	for _, key := range []string{PermAnalyticsView, PermClaimsSubmit} {
		ok, err := engine.HasPermission(ctx, rc, key)
		if err != nil {
			t.Fatalf("has %s: %v", key, err)
		}
		if ok {
			t.Fatalf("essential plan must not include %s", key)
		}
	}

	rc.Plan = auth.PlanEnterprise
	rc.SessionID = "sess-2b"
	for _, key := range []string{PermAnalyticsView, PermClaimsSubmit, PermAuditView} {
		ok, err := engine.HasPermission(ctx, rc, key)
		if err != nil {
			t.Fatalf("has %s: %v", key, err)
		}
		if !ok {
			t.Fatalf("enterprise plan should include %s", key)
		}
	}
}

func TestRequireReportsMissingKeys(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()
	rc := dispenserContext()

	err := engine.Require(ctx, rc, PermRecordsView, PermPrescriptionsSign, PermManageUsers)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("got %v, want DeniedError", err)
	}
	want := []string{PermPrescriptionsSign, PermManageUsers}
	if !slices.Equal(denied.RequiredKeys, want) {
		t.Fatalf("missing = %v, want %v", denied.RequiredKeys, want)
	}

	if err := engine.Require(ctx, rc, PermRecordsView); err != nil {
		t.Fatalf("require held key: %v", err)
	}
}

func TestCacheIsPerSessionAndInvalidated(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()
	rc := dispenserContext()

	if _, err := engine.Effective(ctx, rc); err != nil {
		t.Fatalf("effective: %v", err)
	}
	if _, err := engine.Effective(ctx, rc); err != nil {
		t.Fatalf("effective: %v", err)
	}
	if got := store.lookupCount(); got != 1 {
		t.Fatalf("lookups = %d, want 1 (second call should hit cache)", got)
	}

	// A new session must not reuse the previous session's cached set.
	rc.SessionID = "sess-1b"
	if _, err := engine.Effective(ctx, rc); err != nil {
		t.Fatalf("effective: %v", err)
	}
	if got := store.lookupCount(); got != 2 {
		t.Fatalf("lookups = %d, want 2 after session change", got)
	}

	engine.Invalidate(rc.AccountID)
	if _, err := engine.Effective(ctx, rc); err != nil {
		t.Fatalf("effective: %v", err)
	}
	if got := store.lookupCount(); got != 3 {
		t.Fatalf("lookups = %d, want 3 after invalidate", got)
	}
}

func TestInvalidateTenantDropsWholeTenant(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()

	first := dispenserContext()
	second := dispenserContext()
	second.AccountID = "acc-2"
	second.SessionID = "sess-2"
	other := dispenserContext()
	other.AccountID = "acc-3"
	other.SessionID = "sess-3"
	other.TenantID = "ten-2"

	for _, rc := range []auth.RequestContext{first, second, other} {
		if _, err := engine.Effective(ctx, rc); err != nil {
			t.Fatalf("effective: %v", err)
		}
	}
	base := store.lookupCount()

	engine.InvalidateTenant("ten-1")

	for _, rc := range []auth.RequestContext{first, second, other} {
		if _, err := engine.Effective(ctx, rc); err != nil {
			t.Fatalf("effective: %v", err)
		}
	}
	// Both ten-1 accounts refetch; the ten-2 account stays cached.
	if got := store.lookupCount(); got != base+2 {
		t.Fatalf("lookups = %d, want %d", got, base+2)
	}
}

func TestPlatformAdminHoldsFullCatalog(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store)
	rc := auth.RequestContext{
		AccountID:       "acc-root",
		SessionID:       "sess-root",
		Role:            auth.RolePlatformAdmin,
		IsPlatformAdmin: true,
	}

	keys, err := engine.Effective(context.Background(), rc)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if len(keys) != len(Catalog) {
		t.Fatalf("platform admin set = %d keys, want %d", len(keys), len(Catalog))
	}
	if store.lookupCount() != 0 {
		t.Fatal("platform admin set must not hit the store")
	}
}

func TestUnknownKeysAreDropped(t *testing.T) {
	store := newMemStore()
	if err := store.SetRolePermissions(context.Background(), auth.RoleDispenser,
		[]string{PermRecordsView, "records:delete_everything"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	engine := NewEngine(store)

	keys, err := engine.Effective(context.Background(), dispenserContext())
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	if !slices.Equal(keys, []string{PermRecordsView}) {
		t.Fatalf("effective = %v, want only records:view", keys)
	}
}

func TestIsTenantOwner(t *testing.T) {
	store := newMemStore()
	seedDefaults(t, store)
	engine := NewEngine(store)
	ctx := context.Background()

	admin := auth.RequestContext{
		AccountID: "acc-a", SessionID: "s-a", TenantID: "ten-1",
		Role: auth.RoleTenantAdmin, Plan: auth.PlanEssential,
	}
	ok, err := engine.IsTenantOwner(ctx, admin)
	if err != nil || !ok {
		t.Fatalf("tenant admin owner gate: ok=%v err=%v", ok, err)
	}
	ok, err = engine.IsTenantOwner(ctx, dispenserContext())
	if err != nil || ok {
		t.Fatalf("dispenser must fail owner gate: ok=%v err=%v", ok, err)
	}
}
