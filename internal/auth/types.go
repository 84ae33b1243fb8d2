package auth

import "time"

// Roles are a fixed, platform-wide set. They are not tenant-scoped.
const (
	RolePlatformAdmin       = "platform_admin"
	RoleTenantAdmin         = "tenant_admin"
	RoleOptometrist         = "optometrist"
	RoleContactLensOptician = "contact_lens_optician"
	RoleDispenser           = "dispenser"
	RoleSupplier            = "supplier"
)

// Roles lists every valid role tag.
var Roles = []string{
	RolePlatformAdmin,
	RoleTenantAdmin,
	RoleOptometrist,
	RoleContactLensOptician,
	RoleDispenser,
	RoleSupplier,
}

// Subscription plans, ordered. Permissions may declare a minimum plan.
const (
	PlanEssential    = "essential"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

var planRank = map[string]int{
	PlanEssential:    1,
	PlanProfessional: 2,
	PlanEnterprise:   3,
}

// PlanCovers reports whether the tenant plan satisfies the required minimum.
// An empty requirement is satisfied by every plan.
func PlanCovers(plan, minimum string) bool {
	if minimum == "" {
		return true
	}
	return planRank[plan] >= planRank[minimum]
}

// ValidRole reports whether role is one of the fixed role tags.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Tenant is the isolation boundary for one practice organization.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a staff identity. TenantID is empty only for platform-admin
// accounts; for everyone else it is set at creation and immutable.
type Account struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a server-side record referenced by an opaque bearer token.
// Only the SHA-256 hash of the token is stored; the token itself carries
// no claims and is looked up, never decoded.
type Session struct {
	ID                string     `json:"id"`
	AccountID         string     `json:"account_id"`
	TokenHash         string     `json:"-"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
	TwoFactorVerified bool       `json:"two_factor_verified"`
}

// RequestContext is the single source of truth for the acting identity on a
// request. It is constructed once after session validation and never mutated
// or re-derived from client-supplied data.
type RequestContext struct {
	AccountID         string
	SessionID         string
	TenantID          string
	Role              string
	Plan              string
	IsPlatformAdmin   bool
	TwoFactorVerified bool
}
