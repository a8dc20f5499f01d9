package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/internal/audit"
	"github.com/frahmantamala/authz/internal/core/events"
	"github.com/frahmantamala/authz/internal/decision"
	"github.com/google/uuid"
)

// Service is the only writer of roles, permissions and grants. Each
// operation authorizes its caller through the decision point, runs one
// store transaction, synchronously invalidates affected resolver cache
// entries (via sync events) and emits one audit record.
type Service struct {
	repo        RepositoryAPI
	decider     AccessDecider
	recorder    audit.RecorderAPI
	auditReader audit.RepositoryAPI
	bus         *events.EventBus
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, decider AccessDecider, recorder audit.RecorderAPI, auditReader audit.RepositoryAPI, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		decider:     decider,
		recorder:    recorder,
		auditReader: auditReader,
		bus:         bus,
		logger:      logger,
	}
}

// CreateRole creates a role scoped to an organization, or a global or
// system role when OrganizationID is nil.
func (s *Service) CreateRole(ctx context.Context, actor internal.Actor, dto CreateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	// System roles apply across all tenants; only a system admin may
	// create one, so drop the org context from the authorization.
	authOrg := dto.OrganizationID
	if dto.IsSystemRole {
		authOrg = nil
	}
	if err := s.authorize(ctx, actor, "role", "create", authOrg); err != nil {
		return nil, err
	}
	if dto.OrganizationID != nil {
		if err := s.ensureOrganization(ctx, *dto.OrganizationID); err != nil {
			return nil, err
		}
	}

	role := &Role{
		ID:             uuid.NewString(),
		Name:           dto.Name,
		Description:    dto.Description,
		IsSystemRole:   dto.IsSystemRole,
		IsDefault:      dto.IsDefault,
		OrganizationID: dto.OrganizationID,
		CreatedBy:      &actor.UserID,
	}

	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	s.recordMutation(ctx, actor, audit.ActionRoleCreated, "role", role.ID, map[string]interface{}{
		"name":           role.Name,
		"is_system_role": role.IsSystemRole,
	})

	s.logger.Info("role created", "role_id", role.ID, "name", role.Name, "actor", actor.UserID)
	return role, nil
}

// CreatePermission adds a (resource, action) pair to the catalog.
// Normally only seeding does this; it is cross-organization by nature.
func (s *Service) CreatePermission(ctx context.Context, actor internal.Actor, dto CreatePermissionDTO) (*Permission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, "permission", "create", nil); err != nil {
		return nil, err
	}

	permission := &Permission{
		ID:          uuid.NewString(),
		Name:        dto.Name,
		Resource:    dto.Resource,
		Action:      dto.Action,
		Description: dto.Description,
	}

	if err := s.repo.CreatePermission(ctx, permission); err != nil {
		return nil, err
	}

	s.recordMutation(ctx, actor, audit.ActionPermissionCreated, "permission", permission.ID, map[string]interface{}{
		"name": permission.Name,
	})

	return permission, nil
}

// AttachPermission links a permission to a role. Attaching an already
// attached permission is a no-op success.
func (s *Service) AttachPermission(ctx context.Context, actor internal.Actor, roleID, permissionID string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, "role", "update", role.OrganizationID); err != nil {
		return err
	}

	if err := s.repo.AttachPermission(ctx, roleID, permissionID, &actor.UserID); err != nil {
		return err
	}

	s.invalidateRoleHolders(ctx, events.EventTypePermissionAttached, roleID, permissionID)
	s.recordMutation(ctx, actor, audit.ActionPermissionAttached, "role", roleID, map[string]interface{}{
		"permission_id": permissionID,
	})
	return nil
}

// DetachPermission removes a role-permission link; detaching a link
// that does not exist is a no-op success.
func (s *Service) DetachPermission(ctx context.Context, actor internal.Actor, roleID, permissionID string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, "role", "update", role.OrganizationID); err != nil {
		return err
	}

	// Invalidate before and after: holders must not keep answering from
	// a snapshot that still contains the detached permission.
	s.invalidateRoleHolders(ctx, events.EventTypePermissionDetached, roleID, permissionID)

	if err := s.repo.DetachPermission(ctx, roleID, permissionID); err != nil {
		return err
	}

	s.invalidateRoleHolders(ctx, events.EventTypePermissionDetached, roleID, permissionID)
	s.recordMutation(ctx, actor, audit.ActionPermissionDetached, "role", roleID, map[string]interface{}{
		"permission_id": permissionID,
	})
	return nil
}

// GrantRole upserts the user-role grant and reactivates it. A role
// scoped to another organization fails with ORG_MISMATCH unless the
// grantor is a system admin.
func (s *Service) GrantRole(ctx context.Context, actor internal.Actor, dto GrantRoleDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	role, err := s.repo.GetRole(ctx, dto.RoleID)
	if err != nil {
		return err
	}
	userOrg, err := s.repo.GetUserOrganization(ctx, dto.UserID)
	if err != nil {
		return err
	}

	authOrg := role.OrganizationID
	if role.IsSystemRole {
		authOrg = nil
	}
	if err := s.authorize(ctx, actor, "user_role", "grant", authOrg); err != nil {
		return err
	}

	if role.OrganizationID != nil && (userOrg == nil || *userOrg != *role.OrganizationID) {
		if !s.decider.Decide(ctx, actor.UserID, "system", "admin", nil).Allow {
			return internal.ErrOrgMismatch
		}
	}

	if err := s.repo.UpsertGrant(ctx, dto.UserID, dto.RoleID, &actor.UserID, dto.ExpiresAt); err != nil {
		return err
	}

	// Invalidate before returning so no stale snapshot outlives the grant.
	if err := s.bus.PublishSync(ctx, events.NewRoleGrantEvent(events.EventTypeRoleGranted, dto.UserID, dto.RoleID)); err != nil {
		s.logger.Error("grant invalidation failed", "error", err, "user_id", dto.UserID)
	}

	details := map[string]interface{}{"role_id": dto.RoleID, "granted_to": dto.UserID}
	if dto.ExpiresAt != nil {
		details["expires_at"] = dto.ExpiresAt.Format(time.RFC3339)
	}
	s.recordMutation(ctx, actor, audit.ActionRoleGranted, "user_role", dto.UserID, details)

	s.logger.Info("role granted", "user_id", dto.UserID, "role_id", dto.RoleID, "actor", actor.UserID)
	return nil
}

// RevokeRole deactivates the grant; the row stays for provenance.
// Revoking a missing or already revoked grant is a no-op success.
func (s *Service) RevokeRole(ctx context.Context, actor internal.Actor, userID, roleID string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	authOrg := role.OrganizationID
	if role.IsSystemRole {
		authOrg = nil
	}
	if err := s.authorize(ctx, actor, "user_role", "revoke", authOrg); err != nil {
		return err
	}

	if err := s.repo.RevokeGrant(ctx, userID, roleID); err != nil {
		return err
	}

	if err := s.bus.PublishSync(ctx, events.NewRoleGrantEvent(events.EventTypeRoleRevoked, userID, roleID)); err != nil {
		s.logger.Error("revoke invalidation failed", "error", err, "user_id", userID)
	}

	s.recordMutation(ctx, actor, audit.ActionRoleRevoked, "user_role", userID, map[string]interface{}{
		"role_id":      roleID,
		"revoked_from": userID,
	})

	s.logger.Info("role revoked", "user_id", userID, "role_id", roleID, "actor", actor.UserID)
	return nil
}

// RegisterUser creates a user record and auto-grants every matching
// default role. The user row and its default grants commit as one
// transaction: a failed grant leaves no user behind.
func (s *Service) RegisterUser(ctx context.Context, actor internal.Actor, dto RegisterUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, "user", "create", dto.OrganizationID); err != nil {
		return nil, err
	}
	if dto.OrganizationID != nil {
		if err := s.ensureOrganization(ctx, *dto.OrganizationID); err != nil {
			return nil, err
		}
	}

	user := &User{
		ID:             uuid.NewString(),
		Email:          dto.Email,
		Username:       dto.Username,
		IsActive:       true,
		OrganizationID: dto.OrganizationID,
		CreatedBy:      &actor.UserID,
	}
	var defaults []Role
	err := s.repo.Transaction(ctx, func(txRepo RepositoryAPI) error {
		if err := txRepo.CreateUser(ctx, user); err != nil {
			return err
		}
		var err error
		defaults, err = txRepo.ListDefaultRoles(ctx, dto.OrganizationID)
		if err != nil {
			return err
		}
		for _, role := range defaults {
			if err := txRepo.UpsertGrant(ctx, user.ID, role.ID, &actor.UserID, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordMutation(ctx, actor, audit.ActionUserRegistered, "user", user.ID, map[string]interface{}{
		"email":         user.Email,
		"default_roles": len(defaults),
	})
	return user, nil
}

// SeedDefaultCatalog installs the fixed permission catalog and the
// five system roles with their attachments, in one transaction: an
// interrupted seed leaves no partial catalog. Safe to run repeatedly:
// every insert is skipped when the unique key already exists and
// attachments are idempotent. Runs as a system action, outside the
// decision point.
func (s *Service) SeedDefaultCatalog(ctx context.Context) error {
	err := s.repo.Transaction(ctx, func(txRepo RepositoryAPI) error {
		permissionIDs := make(map[string]string, len(DefaultPermissions))

		for _, cp := range DefaultPermissions {
			existing, err := txRepo.GetPermissionByPair(ctx, cp.Resource, cp.Action)
			if err == nil {
				permissionIDs[cp.Name] = existing.ID
				continue
			}
			if !errors.Is(err, internal.ErrPermissionNotFound) {
				return err
			}

			permission := &Permission{
				ID:          uuid.NewString(),
				Name:        cp.Name,
				Resource:    cp.Resource,
				Action:      cp.Action,
				Description: cp.Description,
			}
			if err := txRepo.CreatePermission(ctx, permission); err != nil {
				return err
			}
			permissionIDs[cp.Name] = permission.ID
		}

		for _, cr := range DefaultRoles {
			role, err := txRepo.GetRoleByName(ctx, cr.Name, nil)
			if errors.Is(err, internal.ErrRoleNotFound) {
				role = &Role{
					ID:           uuid.NewString(),
					Name:         cr.Name,
					Description:  cr.Description,
					IsSystemRole: cr.IsSystemRole,
					IsDefault:    cr.IsDefault,
				}
				if err := txRepo.CreateRole(ctx, role); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			for _, permName := range cr.Permissions {
				permID, ok := permissionIDs[permName]
				if !ok {
					return fmt.Errorf("catalog role %q references unknown permission %q", cr.Name, permName)
				}
				if err := txRepo.AttachPermission(ctx, role.ID, permID, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	record := audit.Record{
		Action:       audit.ActionCatalogSeeded,
		ResourceType: "permission",
		Details: map[string]interface{}{
			"permissions": len(DefaultPermissions),
			"roles":       len(DefaultRoles),
		},
		Timestamp: time.Now(),
	}
	if err := s.recorder.Enqueue(ctx, record); err != nil {
		s.logger.Error("failed to enqueue seed audit record", "error", err)
	}

	s.logger.Info("default catalog seeded",
		"permissions", len(DefaultPermissions),
		"roles", len(DefaultRoles))
	return nil
}

func (s *Service) ListRoles(ctx context.Context, actor internal.Actor, organizationID *string) ([]Role, error) {
	if err := s.authorize(ctx, actor, "role", "read", organizationID); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx, organizationID)
}

func (s *Service) ListPermissions(ctx context.Context, actor internal.Actor) ([]Permission, error) {
	if err := s.authorize(ctx, actor, "permission", "read", actor.OrganizationID); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx)
}

func (s *Service) ListUserRoles(ctx context.Context, actor internal.Actor, userID string) ([]UserRoleInfo, error) {
	if err := s.authorize(ctx, actor, "user", "read", actor.OrganizationID); err != nil {
		return nil, err
	}
	return s.repo.ListUserRoles(ctx, userID)
}

func (s *Service) ListAuditRecords(ctx context.Context, actor internal.Actor, filter audit.ListFilter) ([]audit.Record, error) {
	if err := s.authorize(ctx, actor, "analytics", "admin", actor.OrganizationID); err != nil {
		return nil, err
	}
	return s.auditReader.List(ctx, filter)
}

// authorize gates an administration operation through the decision
// point. The operation-specific pair allows fine-grained delegation;
// system.admin always passes; for organization-scoped operations an
// organization admin (organization.update holder) passes too.
func (s *Service) authorize(ctx context.Context, actor internal.Actor, opResource, opAction string, organizationID *string) *internal.AppError {
	pairs := []decision.PermissionRef{
		{Resource: opResource, Action: opAction},
		{Resource: "system", Action: "admin"},
	}
	if organizationID != nil {
		pairs = append(pairs, decision.PermissionRef{Resource: "organization", Action: "update"})
	}

	d := s.decider.DecideAny(ctx, actor.UserID, pairs, organizationID)
	if !d.Allow {
		s.logger.Warn("administration operation denied",
			"actor", actor.UserID,
			"operation", opResource+"."+opAction,
			"reason", d.Reason)
		return internal.NewForbiddenError("insufficient permissions for administration operation", internal.ErrCodeInsufficientPerm)
	}
	return nil
}

func (s *Service) ensureOrganization(ctx context.Context, organizationID string) error {
	exists, err := s.repo.OrganizationExists(ctx, organizationID)
	if err != nil {
		return err
	}
	if !exists {
		return internal.ErrOrgNotFound
	}
	return nil
}

func (s *Service) invalidateRoleHolders(ctx context.Context, eventType, roleID, permissionID string) {
	userIDs, err := s.repo.ListRoleUserIDs(ctx, roleID)
	if err != nil {
		s.logger.Error("failed to list role holders for invalidation", "error", err, "role_id", roleID)
		return
	}
	if err := s.bus.PublishSync(ctx, events.NewRolePermissionEvent(eventType, roleID, permissionID, userIDs)); err != nil {
		s.logger.Error("role permission invalidation failed", "error", err, "role_id", roleID)
	}
}

func (s *Service) recordMutation(ctx context.Context, actor internal.Actor, action, resourceType, resourceID string, details map[string]interface{}) {
	origin := internal.OriginFromContext(ctx)
	record := audit.Record{
		ActorUserID:   &actor.UserID,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Details:       details,
		OriginAddress: origin.Address,
		OriginAgent:   origin.Agent,
		Timestamp:     time.Now(),
	}
	if err := s.recorder.Enqueue(ctx, record); err != nil {
		s.logger.Error("failed to enqueue mutation audit record",
			"error", err,
			"action", action,
			"resource_id", resourceID)
	}
}
