package decision

import (
	"context"

	"github.com/frahmantamala/authz/internal/resolver"
)

// Deny reasons surfaced on the structured decision. Resource owners
// translate any deny into a generic forbidden response; the full
// reason stays in the audit trail and internal tooling.
const (
	ReasonInsufficientPermission = "INSUFFICIENT_PERMISSION"
	ReasonOrgMismatch            = "ORG_MISMATCH"
	ReasonStoreUnavailable       = "STORE_UNAVAILABLE"
)

// PermissionRef names a single (resource, action) pair.
type PermissionRef struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (p PermissionRef) String() string {
	return p.Resource + "." + p.Action
}

// Decision is the allow/deny outcome of a permission check. Missing
// lists the pairs that did not resolve when denied.
type Decision struct {
	Allow   bool            `json:"allow"`
	Reason  string          `json:"reason,omitempty"`
	Missing []PermissionRef `json:"missing,omitempty"`
}

// PermissionResolver is the read side the decision point consults.
type PermissionResolver interface {
	HasPermission(ctx context.Context, userID, resource, action string, organizationID *string) (bool, error)
	ResolveEffectivePermissions(ctx context.Context, userID string) ([]resolver.EffectivePermission, error)
}
