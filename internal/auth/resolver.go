package auth

// NewRequestContext derives the acting tenant and role for a validated
// session. A platform-admin account with no tenant id becomes cross-tenant
// capable; any other account without a tenant id is misconfigured and the
// request is rejected before it reaches a handler.
func NewRequestContext(account *Account, tenant *Tenant, session *Session) (RequestContext, error) {
	if account == nil || session == nil {
		return RequestContext{}, ErrSessionInvalid
	}
	rc := RequestContext{
		AccountID:         account.ID,
		SessionID:         session.ID,
		Role:              account.Role,
		TwoFactorVerified: session.TwoFactorVerified,
	}
	if account.TenantID == "" {
		if account.Role != RolePlatformAdmin {
			return RequestContext{}, ErrNoTenantAssociation
		}
		rc.IsPlatformAdmin = true
		return rc, nil
	}
	if tenant == nil || !tenant.Active {
		return RequestContext{}, ErrSessionInvalid
	}
	rc.TenantID = account.TenantID
	rc.Plan = tenant.Plan
	return rc, nil
}
