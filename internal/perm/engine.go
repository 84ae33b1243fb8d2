package perm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"opticore.org/internal/auth"
)

// DeniedError reports which permission keys the caller was missing. The keys
// are echoed to the client so it can show an upgrade/contact-admin path; no
// other account's data ever rides along.
type DeniedError struct {
	RequiredKeys []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("perm: missing permission %s", strings.Join(e.RequiredKeys, ", "))
}

// Engine is the single permission-checking path: RBAC matrix ∪ custom
// grants, filtered by the tenant plan, with a per-session cache that is
// invalidated explicitly on role, grant and plan changes rather than by TTL.
type Engine struct {
	store Store

	mu    sync.RWMutex
	cache map[string]cacheEntry // keyed by account id
}

type cacheEntry struct {
	sessionID string
	tenantID  string
	perms     map[string]struct{}
}

// NewEngine constructs an Engine backed by the given store.
func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		cache: make(map[string]cacheEntry),
	}
}

// Effective returns the sorted effective permission set for the request.
// Platform admins hold the full catalog implicitly.
func (e *Engine) Effective(ctx context.Context, rc auth.RequestContext) ([]string, error) {
	set, err := e.effectiveSet(ctx, rc)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission reports whether the request holds a single permission.
func (e *Engine) HasPermission(ctx context.Context, rc auth.RequestContext, key string) (bool, error) {
	set, err := e.effectiveSet(ctx, rc)
	if err != nil {
		return false, err
	}
	_, ok := set[key]
	return ok, nil
}

// HasAll reports whether the request holds every given permission.
func (e *Engine) HasAll(ctx context.Context, rc auth.RequestContext, keys ...string) (bool, error) {
	set, err := e.effectiveSet(ctx, rc)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if _, ok := set[key]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasAny reports whether the request holds at least one of the permissions.
func (e *Engine) HasAny(ctx context.Context, rc auth.RequestContext, keys ...string) (bool, error) {
	set, err := e.effectiveSet(ctx, rc)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		if _, ok := set[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Require returns *DeniedError naming the missing keys unless the request
// holds all of them.
func (e *Engine) Require(ctx context.Context, rc auth.RequestContext, keys ...string) error {
	set, err := e.effectiveSet(ctx, rc)
	if err != nil {
		return err
	}
	var missing []string
	for _, key := range keys {
		if _, ok := set[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &DeniedError{RequiredKeys: missing}
	}
	return nil
}

// IsTenantOwner reports whether the request passes the owner-only gate.
func (e *Engine) IsTenantOwner(ctx context.Context, rc auth.RequestContext) (bool, error) {
	return e.HasPermission(ctx, rc, PermManagePermissions)
}

// Invalidate drops the cached set for one account. Called synchronously on
// role changes and grant changes, before the mutating call returns.
func (e *Engine) Invalidate(accountID string) {
	e.mu.Lock()
	delete(e.cache, accountID)
	e.mu.Unlock()
}

// InvalidateTenant drops every cached set belonging to a tenant. Called on
// subscription plan changes.
func (e *Engine) InvalidateTenant(tenantID string) {
	if tenantID == "" {
		return
	}
	e.mu.Lock()
	for accountID, entry := range e.cache {
		if entry.tenantID == tenantID {
			delete(e.cache, accountID)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) effectiveSet(ctx context.Context, rc auth.RequestContext) (map[string]struct{}, error) {
	if rc.AccountID == "" {
		return nil, auth.ErrSessionInvalid
	}
	if rc.IsPlatformAdmin {
		set := make(map[string]struct{}, len(Catalog))
		for _, d := range Catalog {
			set[d.Key] = struct{}{}
		}
		return set, nil
	}

	e.mu.RLock()
	entry, ok := e.cache[rc.AccountID]
	e.mu.RUnlock()
	// A cache hit is only valid for the session that populated it: sets from
	// an older session must not outlive a re-login.
	if ok && entry.sessionID == rc.SessionID {
		return entry.perms, nil
	}

	rolePerms, err := e.store.RolePermissions(ctx, rc.Role)
	if err != nil {
		return nil, err
	}
	grants, err := e.store.CustomGrants(ctx, rc.AccountID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(rolePerms)+len(grants))
	for _, key := range append(rolePerms, grants...) {
		if !Known(key) {
			continue
		}
		if !auth.PlanCovers(rc.Plan, minPlanFor(key)) {
			continue
		}
		set[key] = struct{}{}
	}

	e.mu.Lock()
	e.cache[rc.AccountID] = cacheEntry{
		sessionID: rc.SessionID,
		tenantID:  rc.TenantID,
		perms:     set,
	}
	e.mu.Unlock()
	return set, nil
}
