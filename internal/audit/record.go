// Package audit is the durable access-trail pipeline: PHI-aware
// classification, regulatory retention stamping and a non-blocking
// background writer.
package audit

import "time"

// Verbs describe what the actor did to the resource.
const (
	VerbCreate      = "create"
	VerbRead        = "read"
	VerbUpdate      = "update"
	VerbDelete      = "delete"
	VerbAccess      = "access"
	VerbAuthAttempt = "auth_attempt"
	VerbLogout      = "logout"
)

// Record is an append-only fact about one access. Once written it is never
// mutated and never deleted before RetentionUntil.
type Record struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actor_id"`
	TenantID       string    `json:"tenant_id,omitempty"`
	Resource       string    `json:"resource"`
	ResourceID     string    `json:"resource_id,omitempty"`
	Verb           string    `json:"verb"`
	Status         int       `json:"status"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	BeforeRef      string    `json:"before_ref,omitempty"`
	AfterRef       string    `json:"after_ref,omitempty"`
	PHIAccessed    bool      `json:"phi_accessed"`
	PHIFields      []string  `json:"phi_fields,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	RetentionUntil time.Time `json:"retention_until"`
}
