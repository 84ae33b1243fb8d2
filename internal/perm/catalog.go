// Package perm resolves effective permissions for an account: the fixed
// role matrix, per-account custom grants and the tenant subscription plan
// all feed one engine with a per-session cache.
package perm

import "opticore.org/internal/auth"

// Permission keys used across the service.
const (
	PermRecordsView        = "records:view"
	PermRecordsEdit        = "records:edit"
	PermPrescriptionsView  = "prescriptions:view"
	PermPrescriptionsSign  = "prescriptions:sign"
	PermContactLensFit     = "contact_lens:fit"
	PermDispensingManage   = "dispensing:manage"
	PermClaimsSubmit       = "claims:submit"
	PermAnalyticsView      = "analytics:view"
	PermAuditView          = "audit:view"
	PermManageUsers        = "manage_users"
	PermManagePermissions  = "manage_permissions"
	PermManageSubscription = "manage_subscription"
)

// Definition declares a capability and, optionally, the minimum subscription
// plan a tenant must hold before the capability becomes effective.
type Definition struct {
	Key         string
	Description string
	MinPlan     string
}

// Catalog is the full permission catalog. Keys not listed here are rejected.
var Catalog = []Definition{
	{Key: PermRecordsView, Description: "View clinical records"},
	{Key: PermRecordsEdit, Description: "Create and edit clinical records"},
	{Key: PermPrescriptionsView, Description: "View prescriptions"},
	{Key: PermPrescriptionsSign, Description: "Sign prescriptions"},
	{Key: PermContactLensFit, Description: "Run contact lens fitting workflows"},
	{Key: PermDispensingManage, Description: "Manage dispensing and point of sale"},
	{Key: PermClaimsSubmit, Description: "Submit NHS claims", MinPlan: auth.PlanProfessional},
	{Key: PermAnalyticsView, Description: "View practice analytics", MinPlan: auth.PlanEnterprise},
	{Key: PermAuditView, Description: "Review the tenant audit trail"},
	{Key: PermManageUsers, Description: "Onboard and offboard staff accounts"},
	{Key: PermManagePermissions, Description: "Manage roles and custom grants"},
	{Key: PermManageSubscription, Description: "Change the tenant subscription plan"},
}

// RoleDefaults is the fixed role→permission matrix, seeded into the store.
// The tenant-owner gate is PermManagePermissions; there is no separate owner
// flag to drift out of sync.
var RoleDefaults = map[string][]string{
	auth.RoleTenantAdmin: {
		PermRecordsView, PermRecordsEdit, PermPrescriptionsView,
		PermDispensingManage, PermClaimsSubmit, PermAnalyticsView, PermAuditView,
		PermManageUsers, PermManagePermissions, PermManageSubscription,
	},
	auth.RoleOptometrist: {
		PermRecordsView, PermRecordsEdit,
		PermPrescriptionsView, PermPrescriptionsSign, PermClaimsSubmit,
	},
	auth.RoleContactLensOptician: {
		PermRecordsView, PermRecordsEdit,
		PermPrescriptionsView, PermContactLensFit,
	},
	auth.RoleDispenser: {
		PermRecordsView, PermPrescriptionsView, PermDispensingManage,
	},
	auth.RoleSupplier: {
		PermDispensingManage,
	},
}

var catalogByKey = func() map[string]Definition {
	m := make(map[string]Definition, len(Catalog))
	for _, d := range Catalog {
		m[d.Key] = d
	}
	return m
}()

// Known reports whether key is part of the catalog.
func Known(key string) bool {
	_, ok := catalogByKey[key]
	return ok
}

// minPlanFor returns the declared minimum plan for key, if any.
func minPlanFor(key string) string {
	return catalogByKey[key].MinPlan
}
