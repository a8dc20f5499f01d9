package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/admin"
	"github.com/frahmantamala/authz/internal/core/datamodel/rbac"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminRepository is the single write path into the entity store.
type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) admin.RepositoryAPI {
	return &AdminRepository{db: db}
}

// Transaction hands fn a repository bound to one database transaction;
// an error from fn rolls back everything it wrote.
func (r *AdminRepository) Transaction(ctx context.Context, fn func(admin.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&AdminRepository{db: tx})
	})
}

func (r *AdminRepository) CreateRole(ctx context.Context, role *admin.Role) error {
	model := rbac.Role{
		ID:             role.ID,
		Name:           role.Name,
		Description:    role.Description,
		IsSystemRole:   role.IsSystemRole,
		IsDefault:      role.IsDefault,
		OrganizationID: role.OrganizationID,
		CreatedBy:      role.CreatedBy,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicateRole
		}
		return err
	}
	role.CreatedAt = model.CreatedAt
	return nil
}

func (r *AdminRepository) GetRole(ctx context.Context, roleID string) (*admin.Role, error) {
	var model rbac.Role
	err := r.db.WithContext(ctx).First(&model, "id = ?", roleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return roleFromModel(model), nil
}

func (r *AdminRepository) GetRoleByName(ctx context.Context, name string, organizationID *string) (*admin.Role, error) {
	query := r.db.WithContext(ctx).Where("name = ?", name)
	if organizationID == nil {
		query = query.Where("organization_id IS NULL")
	} else {
		query = query.Where("organization_id = ?", *organizationID)
	}

	var model rbac.Role
	err := query.First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return roleFromModel(model), nil
}

// ListRoles returns every role visible in the given scope: all roles
// when organizationID is nil, otherwise that organization's roles plus
// global ones.
func (r *AdminRepository) ListRoles(ctx context.Context, organizationID *string) ([]admin.Role, error) {
	query := r.db.WithContext(ctx).Model(&rbac.Role{}).Order("name")
	if organizationID != nil {
		query = query.Where("organization_id = ? OR organization_id IS NULL", *organizationID)
	}

	var models []rbac.Role
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return rolesFromModels(models), nil
}

func (r *AdminRepository) ListDefaultRoles(ctx context.Context, organizationID *string) ([]admin.Role, error) {
	query := r.db.WithContext(ctx).Model(&rbac.Role{}).Where("is_default = ?", true)
	if organizationID == nil {
		query = query.Where("organization_id IS NULL")
	} else {
		query = query.Where("organization_id = ? OR organization_id IS NULL", *organizationID)
	}

	var models []rbac.Role
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return rolesFromModels(models), nil
}

func (r *AdminRepository) CreatePermission(ctx context.Context, permission *admin.Permission) error {
	model := rbac.Permission{
		ID:          permission.ID,
		Name:        permission.Name,
		Resource:    permission.Resource,
		Action:      permission.Action,
		Description: permission.Description,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicatePermission
		}
		return err
	}
	permission.CreatedAt = model.CreatedAt
	return nil
}

func (r *AdminRepository) GetPermissionByPair(ctx context.Context, resource, action string) (*admin.Permission, error) {
	var model rbac.Permission
	err := r.db.WithContext(ctx).
		Where("resource = ? AND action = ?", resource, action).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrPermissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return permissionFromModel(model), nil
}

func (r *AdminRepository) ListPermissions(ctx context.Context) ([]admin.Permission, error) {
	var models []rbac.Permission
	err := r.db.WithContext(ctx).Order("resource, action").Find(&models).Error
	if err != nil {
		return nil, err
	}

	permissions := make([]admin.Permission, 0, len(models))
	for _, m := range models {
		permissions = append(permissions, *permissionFromModel(m))
	}
	return permissions, nil
}

// AttachPermission links permission to role; an existing link is a
// no-op success.
func (r *AdminRepository) AttachPermission(ctx context.Context, roleID, permissionID string, grantedBy *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&rbac.Role{}).Where("id = ?", roleID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return internal.ErrRoleNotFound
		}
		if err := tx.Model(&rbac.Permission{}).Where("id = ?", permissionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return internal.ErrPermissionNotFound
		}

		link := rbac.RolePermissionLink{
			ID:           uuid.NewString(),
			RoleID:       roleID,
			PermissionID: permissionID,
			GrantedBy:    grantedBy,
		}
		if err := tx.Create(&link).Error; err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}
		return nil
	})
}

// DetachPermission removes the link; a missing link is a no-op success.
func (r *AdminRepository) DetachPermission(ctx context.Context, roleID, permissionID string) error {
	return r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&rbac.RolePermissionLink{}).Error
}

// UpsertGrant creates the user-role grant, or reactivates and restamps
// an existing row so provenance (assigned_by, assigned_at, expires_at)
// always reflects the latest grant.
func (r *AdminRepository) UpsertGrant(ctx context.Context, userID, roleID string, assignedBy *string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing rbac.UserRoleGrant
		err := tx.Where("user_id = ? AND role_id = ?", userID, roleID).First(&existing).Error
		if err == nil {
			return tx.Model(&rbac.UserRoleGrant{}).
				Where("id = ?", existing.ID).
				Updates(map[string]interface{}{
					"is_active":   true,
					"assigned_by": assignedBy,
					"assigned_at": time.Now(),
					"expires_at":  expiresAt,
				}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		grant := rbac.UserRoleGrant{
			ID:         uuid.NewString(),
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
			ExpiresAt:  expiresAt,
			IsActive:   true,
		}
		if err := tx.Create(&grant).Error; err != nil {
			// Concurrent grant of the same pair; the other writer won.
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}
		return nil
	})
}

// RevokeGrant deactivates the grant row; missing or already inactive
// rows are a no-op success.
func (r *AdminRepository) RevokeGrant(ctx context.Context, userID, roleID string) error {
	return r.db.WithContext(ctx).
		Model(&rbac.UserRoleGrant{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Update("is_active", false).Error
}

func (r *AdminRepository) ListUserRoles(ctx context.Context, userID string) ([]admin.UserRoleInfo, error) {
	rows, err := r.db.WithContext(ctx).Raw(`
		SELECT r.id, r.name, r.is_system_role, ur.is_active, ur.expires_at, ur.assigned_at
		FROM user_roles ur
		JOIN roles r ON ur.role_id = r.id
		WHERE ur.user_id = ?
		ORDER BY ur.assigned_at DESC`, userID).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []admin.UserRoleInfo{}
	for rows.Next() {
		var info admin.UserRoleInfo
		if err := rows.Scan(&info.RoleID, &info.RoleName, &info.IsSystemRole, &info.IsActive, &info.ExpiresAt, &info.AssignedAt); err != nil {
			return nil, err
		}
		grants = append(grants, info)
	}
	return grants, rows.Err()
}

// ListRoleUserIDs returns users currently holding an active grant of
// the role, for cache invalidation fan-out.
func (r *AdminRepository) ListRoleUserIDs(ctx context.Context, roleID string) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&rbac.UserRoleGrant{}).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *AdminRepository) CreateUser(ctx context.Context, user *admin.User) error {
	model := rbac.User{
		ID:             user.ID,
		Email:          user.Email,
		Username:       user.Username,
		IsActive:       user.IsActive,
		OrganizationID: user.OrganizationID,
		CreatedBy:      user.CreatedBy,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return internal.NewConflictError("user with this email or username already exists", internal.ErrCodeValidationFailed)
		}
		return err
	}
	user.CreatedAt = model.CreatedAt
	return nil
}

func (r *AdminRepository) GetUserOrganization(ctx context.Context, userID string) (*string, error) {
	var model rbac.User
	err := r.db.WithContext(ctx).Select("id", "organization_id").First(&model, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.OrganizationID, nil
}

func (r *AdminRepository) OrganizationExists(ctx context.Context, organizationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&rbac.Organization{}).
		Where("id = ?", organizationID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func roleFromModel(m rbac.Role) *admin.Role {
	return &admin.Role{
		ID:             m.ID,
		Name:           m.Name,
		Description:    m.Description,
		IsSystemRole:   m.IsSystemRole,
		IsDefault:      m.IsDefault,
		OrganizationID: m.OrganizationID,
		CreatedAt:      m.CreatedAt,
		CreatedBy:      m.CreatedBy,
	}
}

func rolesFromModels(models []rbac.Role) []admin.Role {
	roles := make([]admin.Role, 0, len(models))
	for _, m := range models {
		roles = append(roles, *roleFromModel(m))
	}
	return roles
}

func permissionFromModel(m rbac.Permission) *admin.Permission {
	return &admin.Permission{
		ID:          m.ID,
		Name:        m.Name,
		Resource:    m.Resource,
		Action:      m.Action,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

// isUniqueViolation matches both postgres (23505) and sqlite unique
// constraint failures, since tests run on sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
