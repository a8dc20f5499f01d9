package admin

import (
	"context"
	"time"

	"github.com/frahmantamala/authz/internal/decision"
)

type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	IsSystemRole   bool      `json:"is_system_role"`
	IsDefault      bool      `json:"is_default"`
	OrganizationID *string   `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      *string   `json:"created_by,omitempty"`
}

type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	IsActive       bool      `json:"is_active"`
	OrganizationID *string   `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      *string   `json:"created_by,omitempty"`
}

// UserRoleInfo is one grant row on the user read surface, effective or
// not.
type UserRoleInfo struct {
	RoleID       string     `json:"role_id"`
	RoleName     string     `json:"role_name"`
	IsSystemRole bool       `json:"is_system_role"`
	IsActive     bool       `json:"is_active"`
	ExpiresAt    *time.Time `json:"expires_at"`
	AssignedAt   time.Time  `json:"assigned_at"`
}

// RepositoryAPI is the write-side store contract. Every method is one
// atomic transaction; duplicate-key conflicts surface as the sentinel
// conflict errors from the internal package.
type RepositoryAPI interface {
	// Transaction runs fn against a handle whose operations commit or
	// roll back as a single unit.
	Transaction(ctx context.Context, fn func(RepositoryAPI) error) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID string) (*Role, error)
	GetRoleByName(ctx context.Context, name string, organizationID *string) (*Role, error)
	ListRoles(ctx context.Context, organizationID *string) ([]Role, error)
	ListDefaultRoles(ctx context.Context, organizationID *string) ([]Role, error)

	CreatePermission(ctx context.Context, permission *Permission) error
	GetPermissionByPair(ctx context.Context, resource, action string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	AttachPermission(ctx context.Context, roleID, permissionID string, grantedBy *string) error
	DetachPermission(ctx context.Context, roleID, permissionID string) error

	UpsertGrant(ctx context.Context, userID, roleID string, assignedBy *string, expiresAt *time.Time) error
	RevokeGrant(ctx context.Context, userID, roleID string) error
	ListUserRoles(ctx context.Context, userID string) ([]UserRoleInfo, error)
	ListRoleUserIDs(ctx context.Context, roleID string) ([]string, error)

	CreateUser(ctx context.Context, user *User) error
	GetUserOrganization(ctx context.Context, userID string) (*string, error)
	OrganizationExists(ctx context.Context, organizationID string) (bool, error)
}

// AccessDecider is the slice of the decision point administration uses
// to authorize its own callers.
type AccessDecider interface {
	Decide(ctx context.Context, userID, resource, action string, organizationID *string) decision.Decision
	DecideAny(ctx context.Context, userID string, pairs []decision.PermissionRef, organizationID *string) decision.Decision
}
