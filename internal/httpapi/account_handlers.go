package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/ids"
	"opticore.org/internal/perm"
)

type createAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

// handleAccounts onboards a staff account. Tenant admins create accounts in
// their own tenant only; the tenant_id field is honoured for platform
// admins and rejected for everyone else.
func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManageUsers)
	if !ok {
		return
	}

	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "email and password are required")
		return
	}
	if !auth.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "unknown role")
		return
	}

	tenantID := rc.TenantID
	switch {
	case rc.IsPlatformAdmin:
		tenantID = req.TenantID
		if tenantID == "" && req.Role != auth.RolePlatformAdmin {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "tenant_id is required for tenant roles")
			return
		}
	case req.TenantID != "" && req.TenantID != rc.TenantID:
		writeError(w, r, http.StatusNotFound, codeNotFound, "tenant not found")
		return
	case req.Role == auth.RolePlatformAdmin:
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "cannot assign platform role")
		return
	}

	if _, err := a.deps.AuthStore.Accounts().FindByEmail(r.Context(), req.Email); err == nil {
		writeError(w, r, http.StatusConflict, codeInvalidRequest, "email is already registered")
		return
	} else if !errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "account creation failed")
		return
	}

	hash, err := auth.HashPassword(req.Password, a.deps.BcryptCost)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	account := &auth.Account{
		ID:           ids.New(),
		TenantID:     tenantID,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
		Verified:     true,
	}
	if err := a.deps.AuthStore.Accounts().Create(r.Context(), account); err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   tenantID,
			Resource:   "account",
			ResourceID: account.ID,
			Verb:       audit.VerbCreate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "account creation failed")
		return
	}

	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   tenantID,
		Resource:   "account",
		ResourceID: account.ID,
		Verb:       audit.VerbCreate,
		Status:     http.StatusCreated,
		Success:    true,
	})
	writeJSON(w, http.StatusCreated, account)
}

// handleAccountResource dispatches /v1/accounts/{id} and its sub-resources
// {id}/deactivate, {id}/role and {id}/grants.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "account not found")
		return
	}
	switch sub {
	case "":
		a.handleAccountGet(w, r, id)
	case "deactivate":
		a.handleAccountDeactivate(w, r, id)
	case "role":
		a.handleAccountRole(w, r, id)
	case "grants":
		a.handleAccountGrants(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	}
}

// loadAccount fetches the target account and applies the tenant boundary:
// a caller from another tenant gets the same 404 as a missing account, so
// probing cannot distinguish "exists elsewhere" from "does not exist".
func (a *API) loadAccount(w http.ResponseWriter, r *http.Request, rc auth.RequestContext, id string) (*auth.Account, bool) {
	account, err := a.deps.AuthStore.Accounts().Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "account not found")
		} else {
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "account lookup failed")
		}
		return nil, false
	}
	if !rc.IsPlatformAdmin && account.TenantID != rc.TenantID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "account not found")
		return nil, false
	}
	return account, true
}

func (a *API) handleAccountGet(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManageUsers)
	if !ok {
		return
	}
	account, ok := a.loadAccount(w, r, rc, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleAccountDeactivate is the kill switch. Alongside the flag flip it
// revokes every live session and drops the cached permission set, so the
// account's next request on any token fails.
func (a *API) handleAccountDeactivate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManageUsers)
	if !ok {
		return
	}
	account, ok := a.loadAccount(w, r, rc, id)
	if !ok {
		return
	}
	if account.ID == rc.AccountID {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "cannot deactivate your own account")
		return
	}
	deactivateFailed := func() {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   account.TenantID,
			Resource:   "account",
			ResourceID: id,
			Verb:       audit.VerbUpdate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "deactivation failed")
	}
	if err := a.deps.AuthStore.Accounts().Deactivate(r.Context(), id); err != nil {
		deactivateFailed()
		return
	}
	if err := a.deps.Auth.RevokeAll(r.Context(), id); err != nil {
		deactivateFailed()
		return
	}
	a.deps.Perms.Invalidate(id)

	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   account.TenantID,
		Resource:   "account",
		ResourceID: id,
		Verb:       audit.VerbUpdate,
		Status:     http.StatusOK,
		Success:    true,
		AfterRef:   "deactivated",
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleAccountRole(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManageUsers)
	if !ok {
		return
	}
	account, ok := a.loadAccount(w, r, rc, id)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if !auth.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "unknown role")
		return
	}
	if req.Role == auth.RolePlatformAdmin && !rc.IsPlatformAdmin {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "cannot assign platform role")
		return
	}
	if err := a.deps.AuthStore.Accounts().UpdateRole(r.Context(), id, req.Role); err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   account.TenantID,
			Resource:   "account",
			ResourceID: id,
			Verb:       audit.VerbUpdate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "role update failed")
		return
	}
	// The old role's cached set must not outlive the change.
	a.deps.Perms.Invalidate(id)

	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   account.TenantID,
		Resource:   "account",
		ResourceID: id,
		Verb:       audit.VerbUpdate,
		Status:     http.StatusOK,
		Success:    true,
		BeforeRef:  account.Role,
		AfterRef:   req.Role,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "role_updated", "role": req.Role})
}

type grantRequest struct {
	Permission string `json:"permission"`
}

// handleAccountGrants adds (POST) or removes (DELETE) a single custom grant.
// Revocation restores the pre-grant state exactly; role defaults are never
// touched here.
func (a *API) handleAccountGrants(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManagePermissions)
	if !ok {
		return
	}
	account, ok := a.loadAccount(w, r, rc, id)
	if !ok {
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if !perm.Known(req.Permission) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "unknown permission key")
		return
	}

	var err error
	status := "granted"
	if r.Method == http.MethodPost {
		err = a.deps.PermStore.Grant(r.Context(), id, req.Permission)
	} else {
		err = a.deps.PermStore.Revoke(r.Context(), id, req.Permission)
		status = "revoked"
	}
	if err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   account.TenantID,
			Resource:   "permission_grant",
			ResourceID: id,
			Verb:       audit.VerbUpdate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "grant update failed")
		return
	}
	a.deps.Perms.Invalidate(id)

	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   account.TenantID,
		Resource:   "permission_grant",
		ResourceID: id,
		Verb:       audit.VerbUpdate,
		Status:     http.StatusOK,
		Success:    true,
		AfterRef:   status + ":" + req.Permission,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "permission": req.Permission})
}

type createTenantRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

// handleTenants creates a tenant. Platform admins only.
func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	rc, ok := a.authorize(w, r)
	if !ok {
		return
	}
	if !rc.IsPlatformAdmin {
		writeDenied(w, r, []string{perm.PermManageSubscription})
		return
	}
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "name is required")
		return
	}
	if req.Plan == "" {
		req.Plan = auth.PlanEssential
	}
	if !auth.PlanCovers(req.Plan, auth.PlanEssential) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "unknown plan")
		return
	}
	tenant := &auth.Tenant{
		ID:     ids.New(),
		Name:   strings.TrimSpace(req.Name),
		Plan:   req.Plan,
		Active: true,
	}
	if err := a.deps.AuthStore.Tenants().Create(r.Context(), tenant); err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   tenant.ID,
			Resource:   "tenant",
			ResourceID: tenant.ID,
			Verb:       audit.VerbCreate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "tenant creation failed")
		return
	}
	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   tenant.ID,
		Resource:   "tenant",
		ResourceID: tenant.ID,
		Verb:       audit.VerbCreate,
		Status:     http.StatusCreated,
		Success:    true,
	})
	writeJSON(w, http.StatusCreated, tenant)
}

type updatePlanRequest struct {
	Plan string `json:"plan"`
}

// handleTenantResource serves /v1/tenants/{id}/plan. A plan change drops
// every cached permission set in the tenant so downgrades bite immediately.
func (a *API) handleTenantResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tenants/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || sub != "plan" {
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermManageSubscription)
	if !ok {
		return
	}
	if !rc.IsPlatformAdmin && id != rc.TenantID {
		writeError(w, r, http.StatusNotFound, codeNotFound, "tenant not found")
		return
	}

	tenant, err := a.deps.AuthStore.Tenants().Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, codeNotFound, "tenant not found")
		} else {
			writeError(w, r, http.StatusInternalServerError, codeInternalError, "tenant lookup failed")
		}
		return
	}

	var req updatePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if !auth.PlanCovers(req.Plan, auth.PlanEssential) {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "unknown plan")
		return
	}
	if err := a.deps.AuthStore.Tenants().UpdatePlan(r.Context(), id, req.Plan); err != nil {
		a.record(audit.Record{
			ActorID:    rc.AccountID,
			TenantID:   id,
			Resource:   "tenant",
			ResourceID: id,
			Verb:       audit.VerbUpdate,
			Status:     http.StatusInternalServerError,
			Error:      codeInternalError,
		})
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "plan update failed")
		return
	}
	a.deps.Perms.InvalidateTenant(id)

	a.record(audit.Record{
		ActorID:    rc.AccountID,
		TenantID:   id,
		Resource:   "tenant",
		ResourceID: id,
		Verb:       audit.VerbUpdate,
		Status:     http.StatusOK,
		Success:    true,
		BeforeRef:  tenant.Plan,
		AfterRef:   req.Plan,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "plan_updated", "plan": req.Plan})
}

// handleAuditList lets a tenant admin review their tenant's trail. Platform
// admins may pass ?tenant_id= to inspect any tenant.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rc, ok := a.authorize(w, r, perm.PermAuditView)
	if !ok {
		return
	}
	tenantID := rc.TenantID
	if rc.IsPlatformAdmin {
		tenantID = r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "tenant_id query parameter is required")
			return
		}
	}
	records, err := a.deps.AuditStore.ListByTenant(r.Context(), tenantID, 100)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeInternalError, "audit lookup failed")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"records":   records,
	})
}
