package postgres

import (
	"context"
	"time"

	"github.com/frahmantamala/authz/internal/resolver"
	"gorm.io/gorm"
)

// ResolverRepository implements resolver.RepositoryAPI with read-only
// queries against the entity store. Each call runs inside a single
// transaction so mid-query grant changes cannot produce a partial
// result.
type ResolverRepository struct {
	db *gorm.DB
}

func NewResolverRepository(db *gorm.DB) resolver.RepositoryAPI {
	return &ResolverRepository{db: db}
}

const effectivePermissionsQuery = `
	SELECT DISTINCT p.resource, p.action, p.name, p.description
	FROM user_roles ur
	JOIN roles r ON ur.role_id = r.id
	JOIN role_permissions rp ON r.id = rp.role_id
	JOIN permissions p ON rp.permission_id = p.id
	WHERE ur.user_id = ?
	AND ur.is_active = true
	AND (ur.expires_at IS NULL OR ur.expires_at > ?)
	ORDER BY p.resource, p.action`

const hasSystemRoleQuery = `
	SELECT COUNT(1)
	FROM user_roles ur
	JOIN roles r ON ur.role_id = r.id
	WHERE ur.user_id = ?
	AND ur.is_active = true
	AND (ur.expires_at IS NULL OR ur.expires_at > ?)
	AND r.is_system_role = true`

const hasPermissionQuery = `
	SELECT COUNT(1)
	FROM users u
	JOIN user_roles ur ON u.id = ur.user_id
	JOIN roles r ON ur.role_id = r.id
	JOIN role_permissions rp ON r.id = rp.role_id
	JOIN permissions p ON rp.permission_id = p.id
	WHERE u.id = ?
	AND p.resource = ?
	AND p.action = ?
	AND u.is_active = true
	AND ur.is_active = true
	AND (ur.expires_at IS NULL OR ur.expires_at > ?)
	AND (
		? IS NULL
		OR u.organization_id = ?
		OR EXISTS (
			SELECT 1
			FROM user_roles ur2
			JOIN roles r2 ON ur2.role_id = r2.id
			WHERE ur2.user_id = u.id
			AND ur2.is_active = true
			AND (ur2.expires_at IS NULL OR ur2.expires_at > ?)
			AND r2.is_system_role = true
		)
	)`

// ResolveSnapshot reads the user row, the effective permission set and
// the system-role flag in one transaction. An unknown user returns the
// zero snapshot rather than an error.
func (r *ResolverRepository) ResolveSnapshot(ctx context.Context, userID string) (*resolver.Snapshot, error) {
	snap := &resolver.Snapshot{Permissions: []resolver.EffectivePermission{}}
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user struct {
			IsActive       bool
			OrganizationID *string
		}
		res := tx.Raw(`SELECT is_active, organization_id FROM users WHERE id = ?`, userID).Scan(&user)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || !user.IsActive {
			return nil
		}

		snap.UserActive = true
		snap.OrganizationID = user.OrganizationID

		rows, err := tx.Raw(effectivePermissionsQuery, userID, now).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var perm resolver.EffectivePermission
			if err := rows.Scan(&perm.Resource, &perm.Action, &perm.Name, &perm.Description); err != nil {
				return err
			}
			snap.Permissions = append(snap.Permissions, perm)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var systemRoles int64
		if err := tx.Raw(hasSystemRoleQuery, userID, now).Scan(&systemRoles).Error; err != nil {
			return err
		}
		snap.HasSystemRole = systemRoles > 0

		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// HasPermission existence-checks a single pair with tenant scoping
// applied in SQL: a nil org context passes, a matching organization
// passes, and any effective system role bypasses scoping.
func (r *ResolverRepository) HasPermission(ctx context.Context, userID, resource, action string, organizationID *string) (bool, error) {
	now := time.Now()

	var count int64
	err := r.db.WithContext(ctx).
		Raw(hasPermissionQuery, userID, resource, action, now, organizationID, organizationID, now).
		Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
