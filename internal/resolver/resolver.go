package resolver

import "context"

// EffectivePermission is one (resource, action) pair a user currently
// holds, with the catalog metadata UI rendering needs.
type EffectivePermission struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Snapshot is a consistent read of everything needed to answer
// permission checks for one user: the deduplicated effective
// permission set, the user's organization, and whether any effective
// grant is for a system role. An unknown user yields the zero
// snapshot, which denies everything.
type Snapshot struct {
	UserActive     bool
	OrganizationID *string
	HasSystemRole  bool
	Permissions    []EffectivePermission
}

func (s *Snapshot) HasPair(resource, action string) bool {
	if s == nil || !s.UserActive {
		return false
	}
	for _, p := range s.Permissions {
		if p.Resource == resource && p.Action == action {
			return true
		}
	}
	return false
}

// organizationAllows applies tenant scoping: a nil org context always
// passes, a matching organization passes, and a system role bypasses
// scoping entirely.
func (s *Snapshot) organizationAllows(organizationID *string) bool {
	if organizationID == nil {
		return true
	}
	if s.HasSystemRole {
		return true
	}
	return s.OrganizationID != nil && *s.OrganizationID == *organizationID
}

// RepositoryAPI is the read-only store contract for resolution. Both
// operations must observe a single consistent snapshot of the grant
// tables.
type RepositoryAPI interface {
	ResolveSnapshot(ctx context.Context, userID string) (*Snapshot, error)
	HasPermission(ctx context.Context, userID, resource, action string, organizationID *string) (bool, error)
}
