package rbac

import "time"

type Organization struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	Name        string    `gorm:"column:name;not null"`
	Slug        string    `gorm:"column:slug;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	IsActive    bool      `gorm:"column:is_active;default:true"`
	Settings    string    `gorm:"column:settings"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy   *string   `gorm:"column:created_by;type:uuid"`
}

func (Organization) TableName() string { return "organizations" }

type User struct {
	ID             string     `gorm:"primaryKey;type:uuid"`
	Email          string     `gorm:"column:email;uniqueIndex;not null"`
	Username       string     `gorm:"column:username;uniqueIndex;not null"`
	FirstName      string     `gorm:"column:first_name"`
	LastName       string     `gorm:"column:last_name"`
	IsActive       bool       `gorm:"column:is_active;default:true"`
	IsVerified     bool       `gorm:"column:is_verified;default:false"`
	IsSystemUser   bool       `gorm:"column:is_system_user;default:false"`
	OrganizationID *string    `gorm:"column:organization_id;type:uuid"`
	LastLogin      *time.Time `gorm:"column:last_login"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy      *string    `gorm:"column:created_by;type:uuid"`
}

func (User) TableName() string { return "users" }

// Role is a named permission bundle. (name, organization_id) is unique
// per organization; global roles (organization_id NULL compares
// distinct) carry a partial index so each name exists at most once
// globally.
type Role struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	Name           string    `gorm:"column:name;not null;uniqueIndex:uniq_role_per_org;uniqueIndex:uniq_role_global,where:organization_id IS NULL"`
	Description    string    `gorm:"column:description"`
	IsSystemRole   bool      `gorm:"column:is_system_role;default:false"`
	IsDefault      bool      `gorm:"column:is_default;default:false"`
	OrganizationID *string   `gorm:"column:organization_id;type:uuid;uniqueIndex:uniq_role_per_org"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	CreatedBy      *string   `gorm:"column:created_by;type:uuid"`
}

func (Role) TableName() string { return "roles" }

// Permission is an atomic (resource, action) pair. Immutable after
// creation apart from the description.
type Permission struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	Resource    string    `gorm:"column:resource;not null;uniqueIndex:uniq_resource_action"`
	Action      string    `gorm:"column:action;not null;uniqueIndex:uniq_resource_action"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Permission) TableName() string { return "permissions" }

// UserRoleGrant links a user to a role. Revocation flips is_active
// instead of deleting, so assignment provenance survives.
type UserRoleGrant struct {
	ID         string     `gorm:"primaryKey;type:uuid"`
	UserID     string     `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uniq_user_role"`
	RoleID     string     `gorm:"column:role_id;type:uuid;not null;uniqueIndex:uniq_user_role"`
	AssignedBy *string    `gorm:"column:assigned_by;type:uuid"`
	AssignedAt time.Time  `gorm:"column:assigned_at;autoCreateTime"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	IsActive   bool       `gorm:"column:is_active;default:true"`
}

func (UserRoleGrant) TableName() string { return "user_roles" }

type RolePermissionLink struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	RoleID       string    `gorm:"column:role_id;type:uuid;not null;uniqueIndex:uniq_role_permission"`
	PermissionID string    `gorm:"column:permission_id;type:uuid;not null;uniqueIndex:uniq_role_permission"`
	GrantedBy    *string   `gorm:"column:granted_by;type:uuid"`
	GrantedAt    time.Time `gorm:"column:granted_at;autoCreateTime"`
}

func (RolePermissionLink) TableName() string { return "role_permissions" }
